package templates

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"jordanella.com/linemod/internal/cv"
)

const (
	colorSuffix = "_color.png"
	depthSuffix = "_depth.png"
)

// DirectorySource replays recorded frames stored as <name>_color.png and
// <name>_depth.png pairs, in name order. Frames are decoded on demand and
// never cached.
type DirectorySource struct {
	dir   string
	names []string
	pos   int
}

// NewDirectorySource lists the frame pairs in dir. A color image without its
// depth partner is an error.
func NewDirectorySource(dir string) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory %s: %w", dir, err)
	}

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.Name()] = true
	}

	var names []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), colorSuffix)
		if e.IsDir() || !ok {
			continue
		}
		if !present[name+depthSuffix] {
			return nil, fmt.Errorf("frame %s has no depth image", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return &DirectorySource{dir: dir, names: names}, nil
}

// Len returns the number of frames in the directory
func (s *DirectorySource) Len() int {
	return len(s.names)
}

// NextFrame implements cv.FrameSource
func (s *DirectorySource) NextFrame() (cv.Frame, error) {
	if s.pos >= len(s.names) {
		return cv.Frame{}, io.EOF
	}
	name := s.names[s.pos]
	s.pos++

	colorImg, err := decodePNG(filepath.Join(s.dir, name+colorSuffix))
	if err != nil {
		return cv.Frame{}, err
	}
	depthImg, err := decodePNG(filepath.Join(s.dir, name+depthSuffix))
	if err != nil {
		return cv.Frame{}, err
	}
	depth, err := toDepth(depthImg)
	if err != nil {
		return cv.Frame{}, fmt.Errorf("frame %s: %w", name, err)
	}
	return cv.Frame{Color: toRGBA(colorImg), Depth: depth}, nil
}
