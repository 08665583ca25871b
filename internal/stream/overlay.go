package stream

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/NarenCandy/wild-animal-detection/internal/engine"
	"github.com/NarenCandy/wild-animal-detection/internal/geometry"
)

var (
	ColorEmit      = color.RGBA{255, 0, 0, 255}
	ColorDuplicate = color.RGBA{255, 176, 0, 255}
	ColorNearHuman = color.RGBA{0, 128, 255, 255}
	ColorHuman     = color.RGBA{255, 255, 255, 255}
)

// Overlay is one labeled box to draw, in normalized coordinates
type Overlay struct {
	Box   geometry.Box
	Label string
	Color color.RGBA
}

// OverlaysFor builds the overlays for one evaluated frame
func OverlaysFor(decisions []engine.Decision, humans []engine.Detection) []Overlay {
	overlays := make([]Overlay, 0, len(decisions)+len(humans))
	for _, h := range humans {
		overlays = append(overlays, Overlay{
			Box:   h.BBox,
			Label: fmt.Sprintf("%s %.0f%%", h.Class, h.Confidence*100),
			Color: ColorHuman,
		})
	}
	for _, d := range decisions {
		c := ColorEmit
		switch d.Reason {
		case engine.ReasonDuplicatePosition:
			c = ColorDuplicate
		case engine.ReasonHumanNearby:
			c = ColorNearHuman
		}
		overlays = append(overlays, Overlay{
			Box:   d.Detection.BBox,
			Label: fmt.Sprintf("%s %s %.0f%%", d.Detection.Class, d.Level, d.Detection.Confidence*100),
			Color: c,
		})
	}
	return overlays
}

// Annotate draws overlays on a JPEG frame. Boxes that are not finite are
// skipped.
func Annotate(jpegData []byte, overlays []Overlay) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	for _, o := range overlays {
		if !o.Box.Finite() {
			continue
		}
		px := o.Box.Scale(bounds.Dx(), bounds.Dy())
		x, y := int(px.X1), int(px.Y1)
		w, h := int(px.Width()), int(px.Height())
		drawBox(rgba, x, y, w, h, o.Color, 2)
		drawLabel(rgba, x, y-12, o.Label, o.Color)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// drawBox draws a rectangle outline clipped to the image
func drawBox(img *image.RGBA, x, y, w, h int, c color.RGBA, thickness int) {
	b := img.Bounds()
	set := func(px, py int) {
		if image.Pt(px, py).In(b) {
			img.Set(px, py, c)
		}
	}
	for t := 0; t < thickness; t++ {
		for i := x; i < x+w; i++ {
			set(i, y+t)
			set(i, y+h-t)
		}
		for j := y; j < y+h; j++ {
			set(x+t, j)
			set(x+w-t, j)
		}
	}
}

// drawLabel draws text on a dark background
func drawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	if y < 0 {
		y = 0
	}
	if x < 0 {
		x = 0
	}

	face := basicfont.Face7x13
	bg := image.Rect(x-2, y-2, x+font.MeasureString(face, label).Ceil()+2, y+12)
	draw.Draw(img, bg.Intersect(img.Bounds()), image.NewUniform(color.RGBA{0, 0, 0, 180}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}
