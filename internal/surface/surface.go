// Package surface holds the CPU-side pixel buffer a browser paints into and
// the paint sink that keeps it in sync with the viewport.
package surface

import (
	"fmt"
	"image"
	"image/color"
	"strings"
)

// BytesPerPixel is fixed for every supported format.
const BytesPerPixel = 4

// Format is the channel order of a Surface.
type Format int

const (
	// FormatBGRA matches the B8G8R8A8 textures used by the CEF node.
	FormatBGRA Format = iota
	// FormatRGBA matches the R8G8B8A8 textures used by the legacy node.
	FormatRGBA
)

func (f Format) String() string {
	switch f {
	case FormatBGRA:
		return "bgra"
	case FormatRGBA:
		return "rgba"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat parses "bgra" or "rgba". Empty defaults to BGRA.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bgra", "b8g8r8a8":
		return FormatBGRA, nil
	case "rgba", "r8g8b8a8":
		return FormatRGBA, nil
	default:
		return FormatBGRA, fmt.Errorf("unknown pixel format: %q", s)
	}
}

// Viewport is the size of the target surface in pixels.
type Viewport struct {
	Width  uint32 `json:"width" yaml:"width"`
	Height uint32 `json:"height" yaml:"height"`
}

// Valid reports whether both dimensions are at least one pixel.
func (v Viewport) Valid() bool {
	return v.Width >= 1 && v.Height >= 1
}

func (v Viewport) String() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// Rect is a dirty rectangle reported by an engine.
type Rect struct {
	X, Y, Width, Height int
}

// Surface is a row-major pixel buffer. len(Pix) == Width*Height*4 always.
type Surface struct {
	Pix    []byte
	Width  int
	Height int
	Format Format
}

// New allocates a zeroed surface for a valid viewport.
func New(vp Viewport, format Format) *Surface {
	w, h := int(vp.Width), int(vp.Height)
	return &Surface{
		Pix:    make([]byte, w*h*BytesPerPixel),
		Width:  w,
		Height: h,
		Format: format,
	}
}

// Stride is the number of bytes per row.
func (s *Surface) Stride() int {
	return s.Width * BytesPerPixel
}

// Size returns the number of bytes in the buffer.
func (s *Surface) Size() int {
	return len(s.Pix)
}

// Snapshot is a read-only copy of a Surface handed to the texture scheduler.
type Snapshot struct {
	Pix    []byte
	Width  int
	Height int
	Format Format
	Seq    uint64
}

// Size returns the number of bytes in the snapshot.
func (s *Snapshot) Size() int {
	return len(s.Pix)
}

// Image returns the snapshot as an image.Image. RGBA snapshots are wrapped
// without copying; BGRA snapshots are swizzled into a new buffer.
func (s *Snapshot) Image() image.Image {
	rect := image.Rect(0, 0, s.Width, s.Height)
	if s.Format == FormatRGBA {
		return &image.NRGBA{Pix: s.Pix, Stride: s.Width * BytesPerPixel, Rect: rect}
	}
	out := image.NewNRGBA(rect)
	swizzle(out.Pix, s.Pix)
	return out
}

// At returns the color of a single pixel. Used by tests and debug overlays.
func (s *Snapshot) At(x, y int) color.NRGBA {
	i := (y*s.Width + x) * BytesPerPixel
	p := s.Pix[i : i+4 : i+4]
	if s.Format == FormatBGRA {
		return color.NRGBA{R: p[2], G: p[1], B: p[0], A: p[3]}
	}
	return color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
}

// swizzle swaps the first and third channel of every pixel. It converts in both
// directions between RGBA and BGRA.
func swizzle(dst, src []byte) {
	for i := 0; i+3 < len(src); i += 4 {
		dst[i+0] = src[i+2]
		dst[i+1] = src[i+1]
		dst[i+2] = src[i+0]
		dst[i+3] = src[i+3]
	}
}
