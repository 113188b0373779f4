package templates

import (
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jordanella.com/linemod/internal/logging"
	"jordanella.com/linemod/internal/testutil"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

// writeView stores a 32x24 textured view under dir/name_{color,depth,mask}.png
func writeView(t *testing.T, dir, name string, seed int64) {
	t.Helper()
	frame := testutil.TexturedScene(seed, 32, 24, 4)
	writePNG(t, filepath.Join(dir, name+"_color.png"), frame.Color)
	writePNG(t, filepath.Join(dir, name+"_depth.png"), frame.Depth)
	writePNG(t, filepath.Join(dir, name+"_mask.png"), testutil.RectMask(32, 24, image.Rect(4, 4, 28, 20)))
}

const cupManifest = `objects:
  - object_id: cup
    description: white mug
    views:
      - color: cup/000_color.png
        depth: cup/000_depth.png
        mask: cup/000_mask.png
        rotation: [1, 0, 0, 0, 1, 0, 0, 0, 1]
        translation: [0, 0, 0.6]
      - color: cup/001_color.png
        depth: cup/001_depth.png
        rotation: [0, -1, 0, 1, 0, 0, 0, 0, 1]
        translation: [0.1, 0, 0.6]
`

func setupManifests(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeView(t, filepath.Join(dir, "cup"), "000", 1)
	writeView(t, filepath.Join(dir, "cup"), "001", 2)
	writeView(t, filepath.Join(dir, "bowl"), "000", 3)

	bowl := `objects:
  - object_id: bowl
    views:
      - color: bowl/000_color.png
        depth: bowl/000_depth.png
        rotation: [1, 0, 0, 0, 1, 0, 0, 0, 1]
        translation: [0, 0, 1]
`
	if err := os.WriteFile(filepath.Join(dir, "b_cup.yaml"), []byte(cupManifest), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a_bowl.yml"), []byte(bowl), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatalf("Failed to write notes: %v", err)
	}
	return dir
}

func TestLoadFromDirectory(t *testing.T) {
	dir := setupManifests(t)
	reg := NewObjectRegistry(dir, logging.Discard())
	if err := reg.LoadFromDirectory(dir); err != nil {
		t.Fatalf("LoadFromDirectory failed: %v", err)
	}

	if got := reg.List(); len(got) != 2 || got[0] != "bowl" || got[1] != "cup" {
		t.Errorf("Expected objects in file order [bowl cup], got %v", got)
	}
	def, ok := reg.Get("cup")
	if !ok {
		t.Fatal("Expected cup to be registered")
	}
	if def.Description != "white mug" || len(def.Views) != 2 {
		t.Errorf("Unexpected definition: %+v", def)
	}
}

func TestObjectSetDecodesViews(t *testing.T) {
	dir := setupManifests(t)
	reg := NewObjectRegistry(dir, logging.Discard())
	if err := reg.LoadFromFile(filepath.Join(dir, "b_cup.yaml")); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	set, err := reg.ObjectSet("cup")
	if err != nil {
		t.Fatalf("ObjectSet failed: %v", err)
	}
	if set.ObjectID != "cup" || set.Len() != 2 {
		t.Fatalf("Expected 2 views of cup, got %d of %q", set.Len(), set.ObjectID)
	}
	if n := len(set.Depths) + len(set.Masks) + len(set.Rotations) + len(set.Translations); n != 8 {
		t.Errorf("Expected parallel sequences of length 2, got %d entries", n)
	}

	want := testutil.TexturedScene(1, 32, 24, 4)
	if got := set.Images[0].Bounds().Size(); got != image.Pt(32, 24) {
		t.Errorf("Expected 32x24 color, got %v", got)
	}
	if set.Images[0].RGBAAt(5, 5) != want.Color.RGBAAt(5, 5) {
		t.Error("Color pixels changed in the PNG round trip")
	}
	if set.Depths[0].Gray16At(10, 3) != want.Depth.Gray16At(10, 3) {
		t.Errorf("Depth pixel = %v, want %v", set.Depths[0].Gray16At(10, 3), want.Depth.Gray16At(10, 3))
	}

	// explicit mask for view 0, whole image for view 1
	if set.Masks[0].GrayAt(0, 0).Y != 0 || set.Masks[0].GrayAt(10, 10).Y == 0 {
		t.Error("Mask of view 0 not decoded")
	}
	for _, v := range set.Masks[1].Pix {
		if v == 0 {
			t.Fatal("View without mask should use the whole image")
		}
	}

	if got := set.Rotations[1].At(0, 1); got != -1 {
		t.Errorf("Expected rotation[0][1] = -1, got %v", got)
	}
	if got := set.Translations[1].AtVec(0); got != 0.1 {
		t.Errorf("Expected translation x = 0.1, got %v", got)
	}
}

func TestImageCacheSharesDecodes(t *testing.T) {
	dir := setupManifests(t)
	reg := NewObjectRegistry(dir, logging.Discard())
	if err := reg.LoadFromDirectory(dir); err != nil {
		t.Fatalf("LoadFromDirectory failed: %v", err)
	}

	if _, err := reg.ObjectSets(); err != nil {
		t.Fatalf("ObjectSets failed: %v", err)
	}
	first := reg.CacheStats()
	if first.Misses != 7 || first.Hits != 0 {
		t.Errorf("Expected 7 misses on first load, got %+v", first)
	}

	if _, err := reg.ObjectSets(); err != nil {
		t.Fatalf("ObjectSets failed: %v", err)
	}
	second := reg.CacheStats()
	if second.Hits != 7 || second.Misses != 7 {
		t.Errorf("Expected every image from cache, got %+v", second)
	}

	reg.UnloadAll()
	if got := reg.CacheStats().Unloads; got != 7 {
		t.Errorf("Expected 7 unloads, got %d", got)
	}
}

func TestWithoutImageCache(t *testing.T) {
	dir := setupManifests(t)
	reg := NewObjectRegistry(dir, logging.Discard()).WithoutImageCache()
	if err := reg.LoadFromDirectory(dir); err != nil {
		t.Fatalf("LoadFromDirectory failed: %v", err)
	}
	sets, err := reg.ObjectSets()
	if err != nil {
		t.Fatalf("ObjectSets failed: %v", err)
	}
	if len(sets) != 2 {
		t.Errorf("Expected 2 sets, got %d", len(sets))
	}
	if reg.ImageCache() != nil || reg.CacheStats() != (CacheStats{}) {
		t.Error("Expected no cache")
	}
}

func TestLoadFromFileRejectsInvalidManifests(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantErr  string
	}{
		{
			name:     "missing id",
			manifest: "objects:\n  - views: []\n",
			wantErr:  "object_id cannot be empty",
		},
		{
			name:     "no views",
			manifest: "objects:\n  - object_id: cup\n",
			wantErr:  "has no views",
		},
		{
			name: "short rotation",
			manifest: `objects:
  - object_id: cup
    views:
      - {color: c.png, depth: d.png, rotation: [1, 0, 0], translation: [0, 0, 0]}
`,
			wantErr: "rotation needs 9 values",
		},
		{
			name: "missing depth",
			manifest: `objects:
  - object_id: cup
    views:
      - {color: c.png, rotation: [1, 0, 0, 0, 1, 0, 0, 0, 1], translation: [0, 0, 0]}
`,
			wantErr: "color and depth paths are required",
		},
		{
			name: "duplicate object",
			manifest: `objects:
  - object_id: cup
    views:
      - {color: c.png, depth: d.png, rotation: [1, 0, 0, 0, 1, 0, 0, 0, 1], translation: [0, 0, 0]}
  - object_id: cup
    views:
      - {color: c.png, depth: d.png, rotation: [1, 0, 0, 0, 1, 0, 0, 0, 1], translation: [0, 0, 0]}
`,
			wantErr: "defined twice",
		},
		{
			name:     "bad yaml",
			manifest: "objects: [",
			wantErr:  "failed to unmarshal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "objects.yaml")
			if err := os.WriteFile(path, []byte(tt.manifest), 0644); err != nil {
				t.Fatalf("Failed to write manifest: %v", err)
			}
			reg := NewObjectRegistry(filepath.Dir(path), logging.Discard())
			err := reg.LoadFromFile(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Expected error containing %q, got %v", tt.wantErr, err)
			}
			if reg.Count() != 0 {
				t.Errorf("Rejected manifest registered %d objects", reg.Count())
			}
		})
	}
}

func TestObjectSetMissingImage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cup.yaml"), []byte(cupManifest), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
	reg := NewObjectRegistry(dir, logging.Discard())
	if err := reg.LoadFromDirectory(dir); err != nil {
		t.Fatalf("LoadFromDirectory failed: %v", err)
	}
	if _, err := reg.ObjectSets(); err == nil || !strings.Contains(err.Error(), "image not found") {
		t.Errorf("Expected missing image error, got %v", err)
	}
	if _, err := reg.ObjectSet("plate"); err == nil {
		t.Error("Expected error for unknown object")
	}
}

func TestDirectorySource(t *testing.T) {
	dir := t.TempDir()
	writeView(t, dir, "0002", 5)
	writeView(t, dir, "0001", 4)

	src, err := NewDirectorySource(dir)
	if err != nil {
		t.Fatalf("NewDirectorySource failed: %v", err)
	}
	if src.Len() != 2 {
		t.Fatalf("Expected 2 frames, got %d", src.Len())
	}

	first, err := src.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame failed: %v", err)
	}
	if err := first.Validate(); err != nil {
		t.Errorf("Frame is not co-registered: %v", err)
	}
	want := testutil.TexturedScene(4, 32, 24, 4)
	if first.Color.RGBAAt(1, 1) != want.Color.RGBAAt(1, 1) {
		t.Error("Expected frames in name order")
	}

	if _, err := src.NextFrame(); err != nil {
		t.Fatalf("NextFrame failed: %v", err)
	}
	if _, err := src.NextFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after the last frame, got %v", err)
	}
}

func TestDirectorySourceNeedsDepth(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "0001_color.png"), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if _, err := NewDirectorySource(dir); err == nil {
		t.Error("Expected error for a color frame without depth")
	}
}
