package cv

import (
	"errors"
	"image"
	"testing"
)

func TestNewStoreValidatesConfig(t *testing.T) {
	bad := []*MatchConfig{
		NewMatchConfig(WithSpread()),
		NewMatchConfig(WithSpread(4, 0)),
		NewMatchConfig(WithFeatures(0, 0)),
		NewMatchConfig(WithFocalLength(0)),
	}
	for i, cfg := range bad {
		if _, err := NewStore(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("config %d: got %v, want ErrInvalidConfig", i, err)
		}
	}

	s, err := NewStore(nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.PyramidLevels() != 2 {
		t.Errorf("default store has %d levels, want 2", s.PyramidLevels())
	}
}

func TestStoreAssignsIndicesPerObject(t *testing.T) {
	s, _ := NewStore(nil)
	f := edgeFrame(32, 32, 16, 200, 1000)

	for i, want := range []int{0, 1} {
		got, err := s.AddTemplate(f, nil, "a")
		if err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
		if got != want {
			t.Errorf("add %d: index %d, want %d", i, got, want)
		}
	}
	if got, _ := s.AddTemplate(f, nil, "b"); got != 0 {
		t.Errorf("first template of b has index %d", got)
	}

	if ids := s.ObjectIDs(); len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ObjectIDs = %v, want insertion order [a b]", ids)
	}
	if s.Count() != 3 || s.NumObjects() != 2 {
		t.Errorf("count %d objects %d", s.Count(), s.NumObjects())
	}
	tmpl, ok := s.Template("a", 1)
	if !ok || tmpl.ObjectID != "a" || tmpl.Index != 1 {
		t.Errorf("Template(a, 1) = %+v, %v", tmpl, ok)
	}
	if _, ok := s.Template("a", 2); ok {
		t.Error("index past the end should not resolve")
	}
	if _, ok := s.Template("missing", 0); ok {
		t.Error("unknown identity should not resolve")
	}
}

func TestStoreEmptyMaskGivesEmptyTemplate(t *testing.T) {
	s, _ := NewStore(nil)
	f := edgeFrame(32, 32, 16, 200, 1000)

	idx, err := s.AddTemplate(f, image.NewGray(image.Rect(0, 0, 32, 32)), "ghost")
	if err != nil {
		t.Fatal(err)
	}
	tmpl, _ := s.Template("ghost", idx)
	if !tmpl.Empty() || tmpl.NumFeatures() != 0 {
		t.Errorf("template from an empty mask has %d features", tmpl.NumFeatures())
	}
}

func TestStoreRejectsBadSources(t *testing.T) {
	s, _ := NewStore(nil)
	f := edgeFrame(32, 32, 16, 200, 1000)

	_, err := s.AddTemplate(f, image.NewGray(image.Rect(0, 0, 16, 16)), "a")
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("mask size: got %v", err)
	}

	sources := []TemplateSource{
		{Frame: f},
		{Frame: Frame{Color: f.Color}},
	}
	if _, err := s.AddTemplates("a", sources); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("missing depth: got %v", err)
	}
	if s.Has("a") || s.Count() != 0 {
		t.Error("a failed batch must not store anything")
	}
}

func TestStoreAddObjectRefusesExistingIdentity(t *testing.T) {
	s, _ := NewStore(nil)
	f := edgeFrame(32, 32, 16, 200, 1000)
	src := []TemplateSource{{Frame: f, Pose: IdentityPose()}, {Frame: f, Pose: IdentityPose()}}

	indices, err := s.AddObject("a", src)
	if err != nil {
		t.Fatal(err)
	}
	if len(indices) != 2 || indices[0] != 0 || indices[1] != 1 {
		t.Errorf("indices = %v, want [0 1]", indices)
	}

	if _, err := s.AddObject("a", src); !errors.Is(err, ErrObjectExists) {
		t.Errorf("second AddObject: got %v, want ErrObjectExists", err)
	}
	if len(s.Templates("a")) != 2 {
		t.Errorf("refused load changed the store: %d templates", len(s.Templates("a")))
	}

	// an empty batch does not register the identity
	if _, err := s.AddObject("b", nil); err != nil {
		t.Fatal(err)
	}
	if s.Has("b") || s.NumObjects() != 1 {
		t.Error("empty object was registered")
	}
}

func TestCropTemplateKeepsEvenOffset(t *testing.T) {
	tmpl := &Template{Levels: []TemplateLevel{
		{Features: []Feature{{X: 3, Y: 5}, {X: 9, Y: 11}}},
		{Features: []Feature{{X: 2, Y: 3}}},
	}}
	cropTemplate(tmpl)

	if tmpl.Offset != image.Pt(2, 4) {
		t.Errorf("offset = %v, want (2,4)", tmpl.Offset)
	}
	if tmpl.Width != 7 || tmpl.Height != 7 {
		t.Errorf("size = %dx%d, want 7x7", tmpl.Width, tmpl.Height)
	}
	if f := tmpl.Levels[0].Features[0]; f.X != 1 || f.Y != 1 {
		t.Errorf("base feature moved to (%d,%d)", f.X, f.Y)
	}
	if f := tmpl.Levels[1].Features[0]; f.X != 1 || f.Y != 1 {
		t.Errorf("level 1 feature moved to (%d,%d)", f.X, f.Y)
	}
	if got := tmpl.Region(image.Pt(10, 20)); got != NewRegion(10, 20, 17, 27) {
		t.Errorf("region = %+v", got)
	}
}

func TestMatchConfigOptions(t *testing.T) {
	cfg := NewMatchConfig(WithSpread(4), WithWorkers(3), WithGradientThresholds(5, 20))
	if len(cfg.SpreadT) != 1 || cfg.SpreadT[0] != 4 {
		t.Errorf("spread = %v", cfg.SpreadT)
	}
	if cfg.Workers != 3 || cfg.WeakThreshold != 5 || cfg.StrongThreshold != 20 {
		t.Errorf("options not applied: %+v", cfg)
	}
	if cfg.ColorFeatures != 63 {
		t.Errorf("untouched fields should keep defaults, got %d color features", cfg.ColorFeatures)
	}

	mods := cfg.Modalities()
	if mods[0].Name() != "ColorGradient" || mods[1].Name() != "DepthNormal" {
		t.Errorf("modality order = %s, %s", mods[0].Name(), mods[1].Name())
	}
}
