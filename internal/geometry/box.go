package geometry

import "math"

// Box is an axis-aligned bounding box. Coordinates are normalized to [0,1]
// relative to the frame unless stated otherwise.
type Box struct {
	X1 float64 `json:"x1"` // Left
	Y1 float64 `json:"y1"` // Top
	X2 float64 `json:"x2"` // Right
	Y2 float64 `json:"y2"` // Bottom
}

// Finite reports whether all four coordinates are finite numbers.
func (b Box) Finite() bool {
	for _, v := range [4]float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Valid reports whether the box is finite and not inverted.
func (b Box) Valid() bool {
	return b.Finite() && b.X2 >= b.X1 && b.Y2 >= b.Y1
}

// Width returns the box width, clamped to zero for inverted boxes.
func (b Box) Width() float64 {
	return math.Max(0, b.X2-b.X1)
}

// Height returns the box height, clamped to zero for inverted boxes.
func (b Box) Height() float64 {
	return math.Max(0, b.Y2-b.Y1)
}

// Area returns the box area, or 0 for malformed boxes.
func (b Box) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return b.Width() * b.Height()
}

// Center returns the box center point.
func (b Box) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Normalize converts a pixel-space box into [0,1] coordinates for a frame
// of the given size. Zero dimensions leave the box untouched.
func (b Box) Normalize(width, height int) Box {
	if width <= 0 || height <= 0 {
		return b
	}
	w, h := float64(width), float64(height)
	return Box{X1: b.X1 / w, Y1: b.Y1 / h, X2: b.X2 / w, Y2: b.Y2 / h}
}

// Scale converts a normalized box into pixel coordinates.
func (b Box) Scale(width, height int) Box {
	w, h := float64(width), float64(height)
	return Box{X1: b.X1 * w, Y1: b.Y1 * h, X2: b.X2 * w, Y2: b.Y2 * h}
}

// IsNormalized reports whether every coordinate lies within [0,1].
func (b Box) IsNormalized() bool {
	for _, v := range [4]float64{b.X1, b.Y1, b.X2, b.Y2} {
		if v < 0 || v > 1 {
			return false
		}
	}
	return b.Finite()
}

// IoU returns the intersection-over-union of a and b in [0,1].
// Zero-area, malformed or non-overlapping boxes yield 0.
func IoU(a, b Box) float64 {
	areaA, areaB := a.Area(), b.Area()
	if areaA <= 0 || areaB <= 0 {
		return 0
	}

	iw := math.Max(0, math.Min(a.X2, b.X2)-math.Max(a.X1, b.X1))
	ih := math.Max(0, math.Min(a.Y2, b.Y2)-math.Max(a.Y1, b.Y1))
	inter := iw * ih

	union := areaA + areaB - inter
	if union <= 0 || math.IsNaN(union) {
		return 0
	}

	iou := inter / union
	if math.IsNaN(iou) {
		return 0
	}
	return math.Min(1, math.Max(0, iou))
}

// CenterDistance returns the Euclidean distance between the centers of a and b,
// in the same units as the inputs. Malformed boxes are infinitely far apart.
func CenterDistance(a, b Box) float64 {
	if !a.Valid() || !b.Valid() {
		return math.Inf(1)
	}
	ax, ay := a.Center()
	bx, by := b.Center()
	return math.Hypot(ax-bx, ay-by)
}
