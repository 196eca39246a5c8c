// Package render rasterizes a display list of rectangles onto an RGBA canvas
// and encodes it as PNG.
package render

import (
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"castcal/internal/draw"
)

// Scene is a canvas size plus its display list. Drawings are painted in
// order, so later entries cover earlier ones.
type Scene struct {
	Width    int
	Height   int
	Drawings []draw.Drawing
}

// NewScene starts a scene whose first drawing is a full-canvas frame in the
// given style, then appends drawings.
func NewScene(width, height int, frame draw.Style, drawings ...draw.Drawing) Scene {
	list := make([]draw.Drawing, 0, len(drawings)+1)
	list = append(list, draw.NewRect(uint32(width), uint32(height), 0, 0, frame))
	list = append(list, drawings...)
	return Scene{Width: width, Height: height, Drawings: list}
}

// Rasterize paints the scene onto a new transparent canvas.
func Rasterize(s Scene) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, s.Width, s.Height))
	for _, d := range s.Drawings {
		paint(img, d)
	}
	return img
}

func paint(img *image.NRGBA, d draw.Drawing) {
	x := int(math.Round(float64(d.Position.X)))
	y := int(math.Round(float64(d.Position.Y)))
	r := image.Rect(x, y, x+int(d.Shape.Width), y+int(d.Shape.Height))

	if f := d.Style.Fill; f != nil {
		fill(img, r, f.Color)
	}

	if s := d.Style.Stroke; s != nil && s.Width > 0 {
		w := int(s.Width)
		// The stroke sits inside the rectangle.
		fill(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w), s.Color)
		fill(img, image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y), s.Color)
		fill(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y), s.Color)
		fill(img, image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y), s.Color)
	}
}

func fill(img *image.NRGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	imagedraw.Draw(img, r, image.NewUniform(c), image.Point{}, imagedraw.Over)
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("render: encode png: %w", err)
	}
	return nil
}

// WritePNG writes img to path atomically via a temp file + rename.
func WritePNG(path string, img image.Image) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".castcal-*.png")
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := EncodePNG(tmp, img); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return os.Rename(tmpName, path)
}
