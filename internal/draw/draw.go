// Package draw holds the value types exchanged between the layout engine and
// the scene renderer: pixel-space bounds and positioned, styled shapes.
package draw

import "image/color"

// Bounds is a rectangular sub-area of the output canvas in pixels.
type Bounds struct {
	Left   uint32 `json:"left"`
	Top    uint32 `json:"top"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// Right returns the x coordinate one past the right edge.
func (b Bounds) Right() uint32 {
	return b.Left + b.Width
}

// Bottom returns the y coordinate one past the bottom edge.
func (b Bounds) Bottom() uint32 {
	return b.Top + b.Height
}

// Crop returns b shifted and grown by the relative offset.
func (b Bounds) Crop(offset Bounds) Bounds {
	return Bounds{
		Left:   b.Left + offset.Left,
		Top:    b.Top + offset.Top,
		Width:  b.Width + offset.Width,
		Height: b.Height + offset.Height,
	}
}

// Rectangle is the only shape the layout engine produces.
type Rectangle struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// Point is a canvas position.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Fill paints a shape's interior.
type Fill struct {
	Color color.RGBA `json:"color"`
}

// Stroke outlines a shape's border inside its extent.
type Stroke struct {
	Width uint32     `json:"width"`
	Color color.RGBA `json:"color"`
}

// Style is the appearance of a drawing. Nil Fill or Stroke means none.
type Style struct {
	Fill   *Fill   `json:"fill,omitempty"`
	Stroke *Stroke `json:"stroke,omitempty"`
}

// Drawing is one record of the renderer's display list. It is built once and
// never mutated afterwards.
type Drawing struct {
	Shape    Rectangle `json:"shape"`
	Position Point     `json:"position"`
	Style    Style     `json:"style"`
}

// NewRect builds a rectangle drawing at (x, y).
func NewRect(width, height uint32, x, y float32, style Style) Drawing {
	return Drawing{
		Shape:    Rectangle{Width: width, Height: height},
		Position: Point{X: x, Y: y},
		Style:    style,
	}
}

// Fills is a convenience for a fill-only style.
func Fills(c color.RGBA) Style {
	return Style{Fill: &Fill{Color: c}}
}
