package cv

import "image"

// Region is an axis-aligned box in base-level frame coordinates, with
// exclusive X2/Y2.
type Region struct {
	X1, Y1, X2, Y2 int
}

// NewRegion creates a new region
func NewRegion(x1, y1, x2, y2 int) Region {
	return Region{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// Contains checks if a point is within the region
func (r Region) Contains(p image.Point) bool {
	return p.X >= r.X1 && p.X < r.X2 && p.Y >= r.Y1 && p.Y < r.Y2
}

// Width returns the width of the region
func (r Region) Width() int {
	return r.X2 - r.X1
}

// Height returns the height of the region
func (r Region) Height() int {
	return r.Y2 - r.Y1
}

// Center returns the region midpoint
func (r Region) Center() image.Point {
	return image.Point{X: (r.X1 + r.X2) / 2, Y: (r.Y1 + r.Y2) / 2}
}

// Rectangle converts the region for use with the image packages
func (r Region) Rectangle() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// Fits reports whether the region lies fully inside a frame of the given size
func (r Region) Fits(size image.Point) bool {
	return r.X1 >= 0 && r.Y1 >= 0 && r.X2 <= size.X && r.Y2 <= size.Y
}
