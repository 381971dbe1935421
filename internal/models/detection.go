package models

import "time"

// BBox is an axis-aligned bounding box in pixel coordinates.
type BBox struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	W float32 `json:"w"`
	H float32 `json:"h"`
}

// Area returns the box area. Degenerate boxes have zero area.
func (b BBox) Area() float32 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// IoU computes Intersection-over-Union between two boxes.
// Returns 0 for disjoint or degenerate boxes.
func (b BBox) IoU(o BBox) float32 {
	x1 := maxF(b.X, o.X)
	y1 := maxF(b.Y, o.Y)
	x2 := minF(b.X+b.W, o.X+o.W)
	y2 := minF(b.Y+b.H, o.Y+o.H)

	iw := x2 - x1
	ih := y2 - y1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih

	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Detection is a single face found in one frame by the external detector.
type Detection struct {
	BBox       BBox          `json:"bbox"`
	Confidence float32       `json:"confidence"`
	Landmarks  [5][2]float32 `json:"-"` // eyes, nose, mouth corners (optional)
}

// Frame is one captured video frame. Data is the encoded JPEG; Width and
// Height are the decoded pixel dimensions.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
}

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
