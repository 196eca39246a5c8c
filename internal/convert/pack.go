// Package convert packs a rendered canvas into 1bpp ink planes for
// black/red/white e-paper style screens.
package convert

import (
	"fmt"
	"image"
	"image/color"
)

// Panel is the target screen geometry in pixels.
type Panel struct {
	Width  int
	Height int
}

// Stride returns bytes per packed row.
func (p Panel) Stride() int {
	return (p.Width + 7) / 8
}

// PlaneSize returns bytes per packed plane.
func (p Panel) PlaneSize() int {
	return p.Stride() * p.Height
}

// Pack converts img into packed black and red planes for p.
//
//   - img width must equal p.Width; img height must be >= p.Height. Taller
//     images are center-cropped vertically.
//   - Pixels with alpha < 128 are white.
//   - Planes are y-major, MSB-first: byte = y*Stride + x>>3,
//     mask = 0x80 >> (x & 7). A set bit is white; ink clears it.
func Pack(img *image.NRGBA, p Panel) (black, red []byte, err error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if w != p.Width {
		return nil, nil, fmt.Errorf("convert: expected width %d, got %d", p.Width, w)
	}
	if h < p.Height {
		return nil, nil, fmt.Errorf("convert: expected height >= %d, got %d", p.Height, h)
	}

	startY := (h - p.Height) / 2
	stride := p.Stride()

	black = make([]byte, p.PlaneSize())
	red = make([]byte, p.PlaneSize())
	for i := range black {
		black[i] = 0xFF
		red[i] = 0xFF
	}

	for py := 0; py < p.Height; py++ {
		rowOff := (startY + py) * img.Stride

		for px := 0; px < p.Width; px++ {
			i := rowOff + px*4
			c := color.NRGBA{R: img.Pix[i], G: img.Pix[i+1], B: img.Pix[i+2], A: img.Pix[i+3]}
			if c.A < 128 {
				continue
			}

			idx := py*stride + px>>3
			mask := byte(0x80 >> (px & 7))

			switch Classify(c) {
			case InkBlack:
				black[idx] &^= mask
			case InkRed:
				red[idx] &^= mask
			}
		}
	}

	return black, red, nil
}

// Ink is the plane a pixel is drawn to.
type Ink int

const (
	InkWhite Ink = iota
	InkBlack
	InkRed
)

// Classify maps a color onto the three inks: dark pixels (luma < 64) are
// black, clearly red ones (R > 128 and R - max(G, B) > 32) are red, the rest
// white.
func Classify(c color.NRGBA) Ink {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)

	luma := 0.299*r + 0.587*g + 0.114*b
	if luma < 64 {
		return InkBlack
	}

	if r > 128 && r-max(g, b) > 32 {
		return InkRed
	}

	return InkWhite
}
