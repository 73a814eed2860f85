package surface

import (
	"image"
	"sync"

	"golang.org/x/image/draw"

	"github.com/neboloop/texbridge/internal/logging"
)

var log = logging.WithComponent("surface")

// PaintSink receives paint callbacks from an engine goroutine and keeps the
// current Surface plus its dirty flag. The surface is replaced, never resized,
// and every access happens under mu so a paint for the old dimensions cannot
// land in a freshly allocated buffer.
type PaintSink struct {
	mu      sync.Mutex
	surface *Surface
	format  Format
	offset  image.Point
	dirty   bool
	painted bool
	seq     uint64
	dropped uint64
}

// NewPaintSink returns a dormant sink. Call Reset with a valid viewport to
// allocate a surface.
func NewPaintSink(format Format) *PaintSink {
	return &PaintSink{format: format}
}

// Reset destroys the current surface and allocates a new one for vp. Frames
// are expected to be vp enlarged by offset; the top-left offset region is
// cropped away. An invalid viewport leaves the sink untouched and returns false.
func (s *PaintSink) Reset(vp Viewport, offset image.Point) bool {
	if !vp.Valid() {
		log.Warnf("ignoring reset to degenerate viewport %s", vp)
		return false
	}
	if offset.X < 0 {
		offset.X = 0
	}
	if offset.Y < 0 {
		offset.Y = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface = New(vp, s.format)
	s.offset = offset
	s.dirty = false
	return true
}

// Release frees the surface. The sink drops every paint until the next Reset.
func (s *PaintSink) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface = nil
	s.dirty = false
}

// Viewport returns the current surface size and whether a surface exists.
func (s *PaintSink) Viewport() (Viewport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.surface == nil {
		return Viewport{}, false
	}
	return Viewport{Width: uint32(s.surface.Width), Height: uint32(s.surface.Height)}, true
}

// FrameSize is the size the engine is expected to paint at.
func (s *PaintSink) FrameSize() (width, height int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.surface == nil {
		return 0, 0, false
	}
	return s.surface.Width + s.offset.X, s.surface.Height + s.offset.Y, true
}

// OnPaint copies a full frame of raw pixels into the surface. The dirty
// rectangles are accepted for interface compatibility but every paint is
// treated as a full-frame refresh. A frame whose size differs from the
// expected frame size is a stale callback from before a resize and is dropped.
func (s *PaintSink) OnPaint(rects []Rect, pix []byte, width, height int, format Format) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.acceptLocked(width, height) {
		return false
	}
	if len(pix) < width*height*BytesPerPixel {
		s.dropped++
		log.Warnf("short paint buffer: %d bytes for %dx%d", len(pix), width, height)
		return false
	}

	dst := s.surface
	srcStride := width * BytesPerPixel
	if s.offset == (image.Point{}) && format == dst.Format {
		copy(dst.Pix, pix[:len(dst.Pix)])
	} else {
		rowBytes := dst.Stride()
		for y := 0; y < dst.Height; y++ {
			so := (y+s.offset.Y)*srcStride + s.offset.X*BytesPerPixel
			do := y * rowBytes
			if format == dst.Format {
				copy(dst.Pix[do:do+rowBytes], pix[so:so+rowBytes])
			} else {
				swizzle(dst.Pix[do:do+rowBytes], pix[so:so+rowBytes])
			}
		}
	}
	s.markLocked()
	return true
}

// OnPaintImage is OnPaint for engines that deliver decoded frames.
func (s *PaintSink) OnPaintImage(rects []Rect, img image.Image) bool {
	b := img.Bounds()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.acceptLocked(b.Dx(), b.Dy()) {
		return false
	}

	dst := s.surface
	canvas := &image.NRGBA{
		Pix:    dst.Pix,
		Stride: dst.Stride(),
		Rect:   image.Rect(0, 0, dst.Width, dst.Height),
	}
	if dst.Format == FormatBGRA {
		canvas.Pix = make([]byte, len(dst.Pix))
	}
	draw.Draw(canvas, canvas.Rect, img, b.Min.Add(s.offset), draw.Src)
	if dst.Format == FormatBGRA {
		swizzle(dst.Pix, canvas.Pix)
	}
	s.markLocked()
	return true
}

func (s *PaintSink) acceptLocked(width, height int) bool {
	if s.surface == nil {
		s.dropped++
		log.Debugf("paint %dx%d without surface dropped", width, height)
		return false
	}
	wantW, wantH := s.surface.Width+s.offset.X, s.surface.Height+s.offset.Y
	if width != wantW || height != wantH {
		s.dropped++
		log.Warnf("texture size mismatch: paint %dx%d, surface expects %dx%d", width, height, wantW, wantH)
		return false
	}
	return true
}

func (s *PaintSink) markLocked() {
	s.dirty = true
	s.painted = true
	s.seq++
}

// TakeIfDirty returns a snapshot of the surface and clears the dirty flag, or
// false when nothing was painted since the last call.
func (s *PaintSink) TakeIfDirty() (*Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty || s.surface == nil {
		return nil, false
	}
	s.dirty = false
	pix := make([]byte, len(s.surface.Pix))
	copy(pix, s.surface.Pix)
	return &Snapshot{
		Pix:    pix,
		Width:  s.surface.Width,
		Height: s.surface.Height,
		Format: s.surface.Format,
		Seq:    s.seq,
	}, true
}

// Dirty reports whether a paint arrived since the last TakeIfDirty.
func (s *PaintSink) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Painted reports whether at least one frame was accepted since creation.
func (s *PaintSink) Painted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.painted
}

// Dropped returns the number of paints rejected so far.
func (s *PaintSink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
