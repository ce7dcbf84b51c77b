package domain

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// OverlayAnchor binds the overlay to the host element it tracks. ElementID is
// a weak back-reference; the host document owns the element and may remove it
// at any time, in which case the anchor is Lost.
type OverlayAnchor struct {
	ElementID          string
	BoundingRect       Rect
	ScrollOffsetAtBind Point
	Lost               bool
}
