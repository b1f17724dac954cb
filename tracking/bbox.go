package tracking

import (
	"image"
	"math"
)

// BBox is an axis-aligned box in frame pixel coordinates (x1,y1 top-left, x2,y2 bottom-right).
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// FromRect converts an image rectangle into a BBox.
func FromRect(r image.Rectangle) BBox {
	return BBox{X1: float64(r.Min.X), Y1: float64(r.Min.Y), X2: float64(r.Max.X), Y2: float64(r.Max.Y)}
}

// FromXYWH builds a box from a top-left corner and size, the layout face detectors report.
func FromXYWH(x, y, w, h int) BBox {
	return BBox{X1: float64(x), Y1: float64(y), X2: float64(x + w), Y2: float64(y + h)}
}

func (b BBox) Width() float64  { return math.Max(0, b.X2-b.X1) }
func (b BBox) Height() float64 { return math.Max(0, b.Y2-b.Y1) }
func (b BBox) Area() float64   { return b.Width() * b.Height() }

// Empty reports whether the box has no area.
func (b BBox) Empty() bool {
	return b.X2 <= b.X1 || b.Y2 <= b.Y1
}

// Rect truncates the box to integer pixel coordinates.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}

// Clamp returns the integer rectangle of b limited to bounds. The result may be empty.
func (b BBox) Clamp(bounds image.Rectangle) image.Rectangle {
	return b.Rect().Intersect(bounds)
}

// IOU returns the intersection-over-union of two boxes, 0 when either is empty.
func IOU(a, b BBox) float64 {
	if a.Empty() || b.Empty() {
		return 0
	}

	x1 := math.Max(a.X1, b.X1)
	y1 := math.Max(a.Y1, b.Y1)
	x2 := math.Min(a.X2, b.X2)
	y2 := math.Min(a.Y2, b.Y2)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}
