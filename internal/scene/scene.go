// Package scene is a CPU compositor that plays the host renderer: it owns the
// textures bridges upload into and draws them onto one canvas with gogpu/gg.
package scene

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sort"
	"sync"

	"github.com/gogpu/gg"

	"github.com/neboloop/texbridge/internal/bridge"
	"github.com/neboloop/texbridge/internal/logging"
	"github.com/neboloop/texbridge/internal/surface"
)

var log = logging.WithComponent("scene")

// ErrUnknownTexture is returned for handles that were never created or have
// been released.
var ErrUnknownTexture = errors.New("unknown texture")

type texture struct {
	width, height int
	format        surface.Format
	img           *gg.ImageBuf
	seq           uint64
	uploads       int

	x, y    float64
	z       int
	hidden  bool
	opacity float64
	border  string
}

// Scene implements bridge.TextureScheduler.
type Scene struct {
	mu         sync.Mutex
	width      int
	height     int
	background gg.RGBA
	next       bridge.TextureID
	textures   map[bridge.TextureID]*texture
}

var _ bridge.TextureScheduler = (*Scene)(nil)

// New returns an empty scene of the given canvas size.
func New(width, height int) *Scene {
	return &Scene{
		width:      width,
		height:     height,
		background: gg.RGB(0, 0, 0),
		textures:   make(map[bridge.TextureID]*texture),
	}
}

// SetBackground sets the clear color in [0,1] components.
func (s *Scene) SetBackground(r, g, b, a float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.background = gg.RGBA2(r, g, b, a)
}

// CreateTexture allocates a texture placed at the origin.
func (s *Scene) CreateTexture(width, height int, format surface.Format) (bridge.TextureID, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("invalid texture size %dx%d", width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.textures[s.next] = &texture{
		width:   width,
		height:  height,
		format:  format,
		opacity: 1,
		z:       int(s.next),
	}
	log.Debugf("texture %d created (%dx%d %s)", s.next, width, height, format)
	return s.next, nil
}

// ScheduleTexUpload copies snap into the texture. The snapshot must match the
// texture size.
func (s *Scene) ScheduleTexUpload(id bridge.TextureID, snap *surface.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	s.mu.Lock()
	t, ok := s.textures[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("upload to texture %d: %w", id, ErrUnknownTexture)
	}
	if snap.Width != t.width || snap.Height != t.height {
		return fmt.Errorf("upload %dx%d into %dx%d texture %d", snap.Width, snap.Height, t.width, t.height, id)
	}

	img := gg.ImageBufFromImage(snap.Image())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.textures[id] != t {
		return fmt.Errorf("upload to texture %d: %w", id, ErrUnknownTexture)
	}
	t.img = img
	t.seq = snap.Seq
	t.uploads++
	return nil
}

// ReleaseTexture frees a texture. Unknown handles are ignored.
func (s *Scene) ReleaseTexture(id bridge.TextureID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.textures, id)
}

func (s *Scene) with(id bridge.TextureID, fn func(t *texture)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.textures[id]
	if !ok {
		return fmt.Errorf("texture %d: %w", id, ErrUnknownTexture)
	}
	fn(t)
	return nil
}

// Place moves a texture's top-left corner to x,y on the canvas.
func (s *Scene) Place(id bridge.TextureID, x, y float64) error {
	return s.with(id, func(t *texture) { t.x, t.y = x, y })
}

// Raise draws the texture above every other one.
func (s *Scene) Raise(id bridge.TextureID) error {
	s.mu.Lock()
	top := 0
	for _, t := range s.textures {
		top = max(top, t.z)
	}
	s.mu.Unlock()
	return s.with(id, func(t *texture) { t.z = top + 1 })
}

func (s *Scene) SetVisible(id bridge.TextureID, visible bool) error {
	return s.with(id, func(t *texture) { t.hidden = !visible })
}

// SetOpacity clamps opacity to (0,1].
func (s *Scene) SetOpacity(id bridge.TextureID, opacity float64) error {
	return s.with(id, func(t *texture) { t.opacity = min(max(opacity, 0.01), 1) })
}

// SetBorder outlines the texture with a hex color; empty removes it.
func (s *Scene) SetBorder(id bridge.TextureID, hex string) error {
	return s.with(id, func(t *texture) { t.border = hex })
}

// Uploads returns how many uploads a texture has received.
func (s *Scene) Uploads(id bridge.TextureID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.textures[id]; ok {
		return t.uploads
	}
	return 0
}

// Len returns the number of live textures.
func (s *Scene) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.textures)
}

type drawItem struct {
	img           *gg.ImageBuf
	x, y          float64
	width, height float64
	opacity       float64
	border        string
	z             int
}

// draw composites every visible texture, lowest first, into a new context.
// The caller closes it.
func (s *Scene) draw() (*gg.Context, error) {
	s.mu.Lock()
	bg := s.background
	items := make([]drawItem, 0, len(s.textures))
	for _, t := range s.textures {
		if t.hidden || t.img == nil {
			continue
		}
		items = append(items, drawItem{
			img: t.img, x: t.x, y: t.y,
			width: float64(t.width), height: float64(t.height),
			opacity: t.opacity, border: t.border, z: t.z,
		})
	}
	s.mu.Unlock()
	sort.Slice(items, func(i, j int) bool { return items[i].z < items[j].z })

	dc := gg.NewContext(s.width, s.height)
	dc.ClearWithColor(bg)
	for _, it := range items {
		dc.DrawImageEx(it.img, gg.DrawImageOptions{
			X:             it.x,
			Y:             it.y,
			Interpolation: gg.InterpNearest,
			Opacity:       it.opacity,
			BlendMode:     gg.BlendNormal,
		})
		if it.border != "" {
			dc.SetHexColor(it.border)
			dc.SetLineWidth(2)
			dc.DrawRectangle(it.x, it.y, it.width, it.height)
			if err := dc.Stroke(); err != nil {
				dc.Close()
				return nil, fmt.Errorf("stroke border: %w", err)
			}
		}
	}
	if err := dc.FlushGPU(); err != nil {
		dc.Close()
		return nil, fmt.Errorf("flush: %w", err)
	}
	return dc, nil
}

// Render composites the scene into an image.
func (s *Scene) Render() (image.Image, error) {
	dc, err := s.draw()
	if err != nil {
		return nil, err
	}
	defer dc.Close()
	return dc.Image(), nil
}

// EncodePNG renders the scene and writes it as PNG.
func (s *Scene) EncodePNG(w io.Writer) error {
	dc, err := s.draw()
	if err != nil {
		return err
	}
	defer dc.Close()
	return dc.EncodePNG(w)
}

// SavePNG renders the scene to a PNG file.
func (s *Scene) SavePNG(path string) error {
	dc, err := s.draw()
	if err != nil {
		return err
	}
	defer dc.Close()
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
