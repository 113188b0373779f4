// Package templates loads object template sets described by YAML manifests.
//
// A manifest lists objects, each with one or more views. Every view names a
// color PNG, a depth PNG (16-bit millimetres), an optional mask PNG and the
// pose the view was captured at:
//
//	objects:
//	  - object_id: cup
//	    description: white mug
//	    views:
//	      - color: cup/000_color.png
//	        depth: cup/000_depth.png
//	        mask: cup/000_mask.png
//	        rotation: [1, 0, 0, 0, 1, 0, 0, 0, 1]
//	        translation: [0, 0, 0.6]
package templates

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"jordanella.com/linemod/internal/cv"
	"jordanella.com/linemod/internal/logging"
)

// ObjectRegistry holds object definitions loaded from YAML manifests
type ObjectRegistry struct {
	mu         sync.RWMutex
	objects    map[string]ObjectDefinition
	order      []string
	basePath   string      // Base path for view image files
	imageCache *ImageCache // Optional: shares decoded images between loads
	logger     *logging.Logger
}

// ViewDefinition is one captured view of an object
type ViewDefinition struct {
	Color       string    `yaml:"color"`
	Depth       string    `yaml:"depth"`
	Mask        string    `yaml:"mask,omitempty"` // empty uses the whole image
	Rotation    []float64 `yaml:"rotation"`       // row-major 3x3
	Translation []float64 `yaml:"translation"`
	Preload     bool      `yaml:"preload,omitempty"`
}

// ObjectDefinition represents an object in the YAML file
type ObjectDefinition struct {
	ObjectID    string           `yaml:"object_id"`
	Description string           `yaml:"description,omitempty"`
	Views       []ViewDefinition `yaml:"views"`
}

// ObjectFile represents the structure of a manifest file
type ObjectFile struct {
	Objects []ObjectDefinition `yaml:"objects"`
}

// NewObjectRegistry creates a registry resolving image paths against basePath
func NewObjectRegistry(basePath string, logger *logging.Logger) *ObjectRegistry {
	if logger == nil {
		logger = logging.NewLogger("Templates")
	}
	return &ObjectRegistry{
		objects:    make(map[string]ObjectDefinition),
		basePath:   basePath,
		imageCache: NewImageCache(),
		logger:     logger,
	}
}

// WithoutImageCache disables image caching for this registry
func (r *ObjectRegistry) WithoutImageCache() *ObjectRegistry {
	r.imageCache = nil
	return r
}

// LoadFromFile loads object definitions from a YAML file. The file is
// rejected as a whole if any definition is invalid.
func (r *ObjectRegistry) LoadFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read manifest %s: %w", filePath, err)
	}

	var file ObjectFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal manifest YAML: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	for i, def := range file.Objects {
		if err := validateDefinition(def); err != nil {
			return fmt.Errorf("object %d: %w", i+1, err)
		}
		if _, ok := r.objects[def.ObjectID]; ok || seen[def.ObjectID] {
			return fmt.Errorf("object %d: %q is defined twice", i+1, def.ObjectID)
		}
		seen[def.ObjectID] = true
	}

	for _, def := range file.Objects {
		r.objects[def.ObjectID] = def
		r.order = append(r.order, def.ObjectID)

		if r.imageCache == nil {
			continue
		}
		for _, view := range def.Views {
			for _, p := range view.paths() {
				if err := r.imageCache.Register(r.resolve(p), view.Preload, false); err != nil {
					// Don't fail loading, the image is retried on demand
					r.logger.WarnWithContext("preload failed", map[string]interface{}{
						"object_id": def.ObjectID,
						"error":     err.Error(),
					})
				}
			}
		}
	}

	r.logger.InfoWithContext("loaded manifest", map[string]interface{}{
		"file":    filepath.Base(filePath),
		"objects": len(file.Objects),
	})
	return nil
}

// LoadFromDirectory loads all YAML files from a directory in name order
func (r *ObjectRegistry) LoadFromDirectory(dirPath string) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read manifest directory %s: %w", dirPath, err)
	}

	var loadErrors []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		// Only process .yaml and .yml files
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		fullPath := filepath.Join(dirPath, entry.Name())
		if err := r.LoadFromFile(fullPath); err != nil {
			loadErrors = append(loadErrors, fmt.Errorf("file %s: %w", entry.Name(), err))
		}
	}

	if len(loadErrors) > 0 {
		return fmt.Errorf("failed to load %d manifest files (first error): %w", len(loadErrors), loadErrors[0])
	}
	return nil
}

func validateDefinition(def ObjectDefinition) error {
	if def.ObjectID == "" {
		return fmt.Errorf("object_id cannot be empty")
	}
	if len(def.Views) == 0 {
		return fmt.Errorf("%q has no views", def.ObjectID)
	}
	for j, v := range def.Views {
		if v.Color == "" || v.Depth == "" {
			return fmt.Errorf("%q view %d: color and depth paths are required", def.ObjectID, j)
		}
		if len(v.Rotation) != 9 {
			return fmt.Errorf("%q view %d: rotation needs 9 values, got %d", def.ObjectID, j, len(v.Rotation))
		}
		if len(v.Translation) != 3 {
			return fmt.Errorf("%q view %d: translation needs 3 values, got %d", def.ObjectID, j, len(v.Translation))
		}
	}
	return nil
}

func (v ViewDefinition) paths() []string {
	if v.Mask == "" {
		return []string{v.Color, v.Depth}
	}
	return []string{v.Color, v.Depth, v.Mask}
}

func (r *ObjectRegistry) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.basePath, p)
}

// Get retrieves an object definition by identity
func (r *ObjectRegistry) Get(objectID string) (ObjectDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.objects[objectID]
	return def, ok
}

// Has checks if an object exists in the registry
func (r *ObjectRegistry) Has(objectID string) bool {
	_, ok := r.Get(objectID)
	return ok
}

// List returns all object identities in load order
func (r *ObjectRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Count returns the number of objects in the registry
func (r *ObjectRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.objects)
}

// ObjectSet decodes every view of one object into a template set
func (r *ObjectRegistry) ObjectSet(objectID string) (cv.ObjectSet, error) {
	def, ok := r.Get(objectID)
	if !ok {
		return cv.ObjectSet{}, fmt.Errorf("object '%s' not found in registry", objectID)
	}

	set := cv.ObjectSet{ObjectID: objectID}
	for j, view := range def.Views {
		color, depth, mask, err := r.loadView(view)
		if err != nil {
			return cv.ObjectSet{}, fmt.Errorf("%q view %d: %w", objectID, j, err)
		}
		set.Images = append(set.Images, color)
		set.Depths = append(set.Depths, depth)
		set.Masks = append(set.Masks, mask)
		set.Rotations = append(set.Rotations, mat.NewDense(3, 3, append([]float64(nil), view.Rotation...)))
		set.Translations = append(set.Translations, mat.NewVecDense(3, append([]float64(nil), view.Translation...)))
	}
	return set, nil
}

// ObjectSets returns the template set of every object in load order
func (r *ObjectRegistry) ObjectSets() ([]cv.ObjectSet, error) {
	ids := r.List()
	sets := make([]cv.ObjectSet, 0, len(ids))
	for _, id := range ids {
		set, err := r.ObjectSet(id)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func (r *ObjectRegistry) loadView(view ViewDefinition) (*image.RGBA, *image.Gray16, *image.Gray, error) {
	colorImg, err := r.image(view.Color)
	if err != nil {
		return nil, nil, nil, err
	}
	depthImg, err := r.image(view.Depth)
	if err != nil {
		return nil, nil, nil, err
	}
	depth, err := toDepth(depthImg)
	if err != nil {
		return nil, nil, nil, err
	}
	color := toRGBA(colorImg)

	var mask *image.Gray
	if view.Mask == "" {
		size := color.Bounds().Size()
		mask = image.NewGray(image.Rect(0, 0, size.X, size.Y))
		for i := range mask.Pix {
			mask.Pix[i] = 255
		}
	} else {
		maskImg, err := r.image(view.Mask)
		if err != nil {
			return nil, nil, nil, err
		}
		mask = toMask(maskImg)
	}
	return color, depth, mask, nil
}

func (r *ObjectRegistry) image(p string) (image.Image, error) {
	path := r.resolve(p)
	if r.imageCache == nil {
		return decodePNG(path)
	}
	return r.imageCache.Get(path)
}

// ImageCache returns the image cache (if enabled)
func (r *ObjectRegistry) ImageCache() *ImageCache {
	return r.imageCache
}

// CacheStats returns image cache statistics
func (r *ObjectRegistry) CacheStats() CacheStats {
	if r.imageCache == nil {
		return CacheStats{}
	}
	return r.imageCache.Stats()
}

// UnloadAll drops every cached image
func (r *ObjectRegistry) UnloadAll() {
	if r.imageCache != nil {
		r.imageCache.UnloadAll()
	}
}
