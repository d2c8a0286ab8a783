package valueobjects

import "math"

// Rect is an axis-aligned rectangle in canvas coordinates.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Scale is a per-axis scale factor.
type Scale struct {
	X float64 `json:"scaleX"`
	Y float64 `json:"scaleY"`
}

// IdentityScale is the 1:1 scale.
var IdentityScale = Scale{X: 1, Y: 1}

// CropRecord is one crop-session snapshot: the crop box rectangle plus the
// scale of the image underneath it.
type CropRecord struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	ScaleX float64 `json:"scaleX"`
	ScaleY float64 `json:"scaleY"`
}

// NewCropRecord builds a record from live geometry.
func NewCropRecord(box Rect, scale Scale) CropRecord {
	return CropRecord{
		Left:   box.Left,
		Top:    box.Top,
		Width:  box.Width,
		Height: box.Height,
		ScaleX: scale.X,
		ScaleY: scale.Y,
	}
}

// Box returns the crop rectangle.
func (r CropRecord) Box() Rect {
	return Rect{Left: r.Left, Top: r.Top, Width: r.Width, Height: r.Height}
}

// Scale returns the image scale.
func (r CropRecord) Scale() Scale {
	return Scale{X: r.ScaleX, Y: r.ScaleY}
}

// SourceRect maps the crop box back into unscaled image pixels, given the
// image's top-left position on the canvas.
func (r CropRecord) SourceRect(imageLeft, imageTop float64) Rect {
	sx, sy := r.ScaleX, r.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	return Rect{
		Left:   (r.Left - imageLeft) / sx,
		Top:    (r.Top - imageTop) / sy,
		Width:  r.Width / sx,
		Height: r.Height / sy,
	}
}

// IsEmpty reports whether the crop box has no area.
func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Intersect returns the overlap of two rectangles.
func (r Rect) Intersect(o Rect) Rect {
	left := math.Max(r.Left, o.Left)
	top := math.Max(r.Top, o.Top)
	right := math.Min(r.Left+r.Width, o.Left+o.Width)
	bottom := math.Min(r.Top+r.Height, o.Top+o.Height)
	if right <= left || bottom <= top {
		return Rect{}
	}
	return Rect{Left: left, Top: top, Width: right - left, Height: bottom - top}
}
