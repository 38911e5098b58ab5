package imaging

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Box is a rectangle to draw on an overlay with an optional caption.
type Box struct {
	Rect  image.Rectangle
	Label string
}

// OverlayStyle controls how boxes are drawn.
type OverlayStyle struct {
	Color     color.RGBA
	LineWidth int
}

// DefaultOverlayStyle draws 2 pixel green boxes.
func DefaultOverlayStyle() OverlayStyle {
	return OverlayStyle{Color: color.RGBA{0, 255, 0, 255}, LineWidth: 2}
}

// DrawBoxes returns a copy of img with every box outlined and its label
// printed just above the top-left corner (or inside it when there is no
// room above). The source image is not modified.
func DrawBoxes(img image.Image, boxes []Box, style OverlayStyle) *image.NRGBA {
	out := imaging.Clone(img)
	lw := style.LineWidth
	if lw < 1 {
		lw = 1
	}
	for _, b := range boxes {
		DrawRect(out, b.Rect, style.Color, lw)
		if b.Label != "" {
			DrawLabel(out, b.Rect.Min.X, b.Rect.Min.Y, b.Label, style.Color)
		}
	}
	return out
}

// DrawRect outlines r with lines of the given width, drawn inward from the
// rectangle's edge and clipped to the image.
func DrawRect(img draw.Image, r image.Rectangle, c color.Color, width int) {
	src := image.NewUniform(c)
	sides := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), // top
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), // left
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, s := range sides {
		draw.Draw(img, s.Intersect(img.Bounds()), src, image.Point{}, draw.Src)
	}
}

// DrawLabel writes text with basicfont.Face7x13 so that its baseline sits a
// few pixels above (x, y).
func DrawLabel(img draw.Image, x, y int, text string, c color.Color) {
	face := basicfont.Face7x13
	metrics := face.Metrics()
	baseline := y - 4
	if baseline-metrics.Ascent.Ceil() < img.Bounds().Min.Y {
		baseline = y + metrics.Ascent.Ceil() + 2
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(baseline)},
	}
	d.DrawString(text)
}
