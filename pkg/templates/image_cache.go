package templates

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"sync"

	"golang.org/x/image/draw"
)

// cachedImage is one decoded PNG kept in memory
type cachedImage struct {
	path        string
	image       image.Image  // decoded image, nil until loaded
	mu          sync.RWMutex // protects image
	preload     bool
	unloadAfter bool
	useCount    int
}

// ImageCache decodes view images once and shares them between object sets
type ImageCache struct {
	images map[string]*cachedImage
	mu     sync.RWMutex
	stats  CacheStats
}

// CacheStats tracks cache performance
type CacheStats struct {
	Hits        int64 // Cache hits
	Misses      int64 // Cache misses (had to load)
	Loads       int64 // Total load operations
	Unloads     int64 // Total unload operations
	PreloadFail int64 // Failed preloads
}

// NewImageCache creates a new image cache
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]*cachedImage),
	}
}

// Register adds a path to the cache, decoding it right away when preload is set
func (ic *ImageCache) Register(path string, preload, unloadAfter bool) error {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	if _, ok := ic.images[path]; ok {
		return nil
	}
	cached := &cachedImage{
		path:        path,
		preload:     preload,
		unloadAfter: unloadAfter,
	}
	ic.images[path] = cached

	if preload {
		if err := cached.load(); err != nil {
			ic.stats.PreloadFail++
			return fmt.Errorf("failed to preload image %s: %w", path, err)
		}
		ic.stats.Loads++
	}
	return nil
}

// Get returns the decoded image at path, loading it if necessary. Paths that
// were never registered are registered on first use.
func (ic *ImageCache) Get(path string) (image.Image, error) {
	ic.mu.RLock()
	cached, ok := ic.images[path]
	ic.mu.RUnlock()

	if !ok {
		if err := ic.Register(path, false, false); err != nil {
			return nil, err
		}
		ic.mu.RLock()
		cached = ic.images[path]
		ic.mu.RUnlock()
	}

	img, hit, err := cached.getOrLoad()
	if err != nil {
		return nil, err
	}

	ic.mu.Lock()
	if hit {
		ic.stats.Hits++
	} else {
		ic.stats.Misses++
		ic.stats.Loads++
	}
	ic.mu.Unlock()

	return img, nil
}

// Release unloads an image if it was registered with unloadAfter
func (ic *ImageCache) Release(path string) error {
	ic.mu.RLock()
	cached, ok := ic.images[path]
	ic.mu.RUnlock()

	if !ok {
		return fmt.Errorf("image '%s' not found in cache", path)
	}

	if cached.unloadAfter && cached.unload() {
		ic.mu.Lock()
		ic.stats.Unloads++
		ic.mu.Unlock()
	}
	return nil
}

// PreloadAll loads every image marked for preloading
func (ic *ImageCache) PreloadAll() error {
	ic.mu.RLock()
	pending := make([]*cachedImage, 0, len(ic.images))
	for _, c := range ic.images {
		if c.preload {
			pending = append(pending, c)
		}
	}
	ic.mu.RUnlock()

	var errs []error
	for _, cached := range pending {
		err := cached.load()
		ic.mu.Lock()
		if err != nil {
			errs = append(errs, fmt.Errorf("image %s: %w", cached.path, err))
			ic.stats.PreloadFail++
		} else {
			ic.stats.Loads++
		}
		ic.mu.Unlock()
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to preload %d images: %w", len(errs), errs[0])
	}
	return nil
}

// UnloadAll drops every decoded image; paths stay registered
func (ic *ImageCache) UnloadAll() {
	ic.mu.RLock()
	all := make([]*cachedImage, 0, len(ic.images))
	for _, c := range ic.images {
		all = append(all, c)
	}
	ic.mu.RUnlock()

	for _, cached := range all {
		if cached.unload() {
			ic.mu.Lock()
			ic.stats.Unloads++
			ic.mu.Unlock()
		}
	}
}

// Stats returns cache statistics
func (ic *ImageCache) Stats() CacheStats {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	return ic.stats
}

// getOrLoad returns the image and whether it was already in memory
func (ci *cachedImage) getOrLoad() (image.Image, bool, error) {
	ci.mu.RLock()
	if ci.image != nil {
		defer ci.mu.RUnlock()
		return ci.image, true, nil
	}
	ci.mu.RUnlock()

	ci.mu.Lock()
	defer ci.mu.Unlock()

	// Double-check after acquiring write lock
	if ci.image != nil {
		return ci.image, true, nil
	}
	img, err := ci.loadUnsafe()
	return img, false, err
}

func (ci *cachedImage) load() error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	if ci.image != nil {
		return nil
	}
	_, err := ci.loadUnsafe()
	return err
}

// loadUnsafe decodes the PNG; caller holds the write lock
func (ci *cachedImage) loadUnsafe() (image.Image, error) {
	img, err := decodePNG(ci.path)
	if err != nil {
		return nil, err
	}
	ci.image = img
	ci.useCount++
	return img, nil
}

func (ci *cachedImage) unload() bool {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	if ci.image == nil {
		return false
	}
	ci.image = nil
	return true
}

func decodePNG(path string) (image.Image, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("image not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// toRGBA returns img as *image.RGBA anchored at the origin
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// toDepth reads a depth image in millimetres. 16-bit PNGs are taken as is;
// 8-bit grayscale values are used directly as millimetres.
func toDepth(img image.Image) (*image.Gray16, error) {
	b := img.Bounds()
	switch src := img.(type) {
	case *image.Gray16:
		if src.Rect.Min == (image.Point{}) {
			return src, nil
		}
		out := image.NewGray16(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
		return out, nil
	case *image.Gray:
		out := image.NewGray16(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				out.SetGray16(x, y, color.Gray16{Y: uint16(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)})
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("depth image must be grayscale, got %T", img)
	}
}

// toMask converts img to an 8-bit mask where every non-black pixel is set
func toMask(img image.Image) *image.Gray {
	b := img.Bounds()
	mask := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			if r|g|bl != 0 {
				mask.Pix[y*mask.Stride+x] = 255
			}
		}
	}
	return mask
}
