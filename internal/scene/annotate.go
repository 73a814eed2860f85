package scene

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"

	"github.com/neboloop/texbridge/internal/bridge"
)

// Annotation colors
var (
	overlayColor = color.NRGBA{R: 51, G: 153, B: 255, A: 38}
	outlineColor = color.NRGBA{R: 51, G: 153, B: 255, A: 200}
	pillBG       = color.NRGBA{R: 30, G: 30, B: 30, A: 220}
	pillText     = color.White
)

const (
	outlineWidth = 2.0
	pillPadX     = 4.0
	pillPadY     = 2.0
	pillRadius   = 4.0
)

// Annotation marks a region of a rendered scene. An empty Rect labels the
// top-left corner without an outline.
type Annotation struct {
	Rect  image.Rectangle
	Label string
}

// Annotate draws annotations over img and returns a new image; img is not
// modified.
func Annotate(img image.Image, anns []Annotation) image.Image {
	bounds := img.Bounds()
	dc := gg.NewContext(bounds.Dx(), bounds.Dy())
	dc.DrawImage(img, 0, 0)

	for _, a := range anns {
		r := a.Rect.Sub(bounds.Min).Intersect(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		x, y := float64(r.Min.X), float64(r.Min.Y)
		w, h := float64(r.Dx()), float64(r.Dy())
		if !r.Empty() {
			dc.SetColor(overlayColor)
			dc.DrawRectangle(x, y, w, h)
			dc.Fill()

			dc.SetColor(outlineColor)
			dc.SetLineWidth(outlineWidth)
			dc.DrawRectangle(x, y, w, h)
			dc.Stroke()
		}
		if a.Label != "" {
			drawLabelPill(dc, a.Label, x, y, float64(bounds.Dx()), float64(bounds.Dy()))
		}
	}
	return dc.Image()
}

// drawLabelPill places the label inside the top-left of the region, shifted
// back onto the canvas when it would overflow.
func drawLabelPill(dc *gg.Context, label string, x, y, imgW, imgH float64) {
	textW, textH := dc.MeasureString(label)
	pillW := textW + pillPadX*2
	pillH := textH + pillPadY*2

	px, py := x+2, y+2
	if px+pillW > imgW {
		px = max(0, imgW-pillW)
	}
	if py+pillH > imgH {
		py = max(0, imgH-pillH)
	}

	dc.SetColor(pillBG)
	dc.DrawRoundedRectangle(px, py, pillW, pillH, pillRadius)
	dc.Fill()

	dc.SetColor(pillText)
	dc.DrawString(label, px+pillPadX, py+pillPadY+textH*0.85)
}

// SaveAnnotatedPNG renders the scene, draws anns over it and writes a PNG.
func (s *Scene) SaveAnnotatedPNG(path string, anns []Annotation) error {
	img, err := s.Render()
	if err != nil {
		return err
	}
	if err := gg.SavePNG(path, Annotate(img, anns)); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Bounds returns where a texture is drawn on the canvas.
func (s *Scene) Bounds(id bridge.TextureID) (image.Rectangle, error) {
	var r image.Rectangle
	err := s.with(id, func(t *texture) {
		r = image.Rect(int(t.x), int(t.y), int(t.x)+t.width, int(t.y)+t.height)
	})
	return r, err
}
