package scene

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"

	"github.com/neboloop/texbridge/internal/bridge"
	"github.com/neboloop/texbridge/internal/surface"
)

func solid(w, h int, px [4]byte, format surface.Format) *surface.Snapshot {
	pix := make([]byte, w*h*surface.BytesPerPixel)
	for i := 0; i < len(pix); i += 4 {
		copy(pix[i:i+4], px[:])
	}
	return &surface.Snapshot{Pix: pix, Width: w, Height: h, Format: format, Seq: 1}
}

func assertColor(t *testing.T, want color.RGBA, got color.Color) {
	t.Helper()
	r, g, b, a := got.RGBA()
	assert.InDelta(t, want.R, uint8(r>>8), 2)
	assert.InDelta(t, want.G, uint8(g>>8), 2)
	assert.InDelta(t, want.B, uint8(b>>8), 2)
	assert.InDelta(t, want.A, uint8(a>>8), 2)
}

func TestCreateUploadRender(t *testing.T) {
	s := New(4, 4)
	id, err := s.CreateTexture(2, 2, surface.FormatBGRA)
	require.NoError(t, err)
	require.NoError(t, s.Place(id, 2, 2))

	// BGRA red
	require.NoError(t, s.ScheduleTexUpload(id, solid(2, 2, [4]byte{0, 0, 255, 255}, surface.FormatBGRA)))
	assert.Equal(t, 1, s.Uploads(id))

	img, err := s.Render()
	require.NoError(t, err)
	assertColor(t, color.RGBA{0, 0, 0, 255}, img.At(0, 0))
	assertColor(t, color.RGBA{255, 0, 0, 255}, img.At(3, 3))
}

func TestUploadErrors(t *testing.T) {
	s := New(4, 4)
	_, err := s.CreateTexture(0, 2, surface.FormatRGBA)
	assert.Error(t, err)

	id, err := s.CreateTexture(2, 2, surface.FormatRGBA)
	require.NoError(t, err)
	assert.Error(t, s.ScheduleTexUpload(id, solid(3, 3, [4]byte{}, surface.FormatRGBA)))
	assert.Error(t, s.ScheduleTexUpload(id, nil))

	s.ReleaseTexture(id)
	s.ReleaseTexture(id)
	assert.ErrorIs(t, s.ScheduleTexUpload(id, solid(2, 2, [4]byte{}, surface.FormatRGBA)), ErrUnknownTexture)
	assert.ErrorIs(t, s.Place(id, 0, 0), ErrUnknownTexture)
	assert.Equal(t, 0, s.Len())
}

func TestHiddenAndStacking(t *testing.T) {
	s := New(2, 2)
	s.SetBackground(0, 0, 1, 1)

	low, err := s.CreateTexture(2, 2, surface.FormatRGBA)
	require.NoError(t, err)
	high, err := s.CreateTexture(2, 2, surface.FormatRGBA)
	require.NoError(t, err)
	require.NoError(t, s.ScheduleTexUpload(low, solid(2, 2, [4]byte{255, 0, 0, 255}, surface.FormatRGBA)))
	require.NoError(t, s.ScheduleTexUpload(high, solid(2, 2, [4]byte{0, 255, 0, 255}, surface.FormatRGBA)))

	img, err := s.Render()
	require.NoError(t, err)
	assertColor(t, color.RGBA{0, 255, 0, 255}, img.At(1, 1))

	require.NoError(t, s.Raise(low))
	img, err = s.Render()
	require.NoError(t, err)
	assertColor(t, color.RGBA{255, 0, 0, 255}, img.At(1, 1))

	require.NoError(t, s.SetVisible(low, false))
	require.NoError(t, s.SetVisible(high, false))
	img, err = s.Render()
	require.NoError(t, err)
	assertColor(t, color.RGBA{0, 0, 255, 255}, img.At(0, 0))
}

func TestEncodeAndSavePNG(t *testing.T) {
	s := New(3, 2)
	id, err := s.CreateTexture(3, 2, surface.FormatRGBA)
	require.NoError(t, err)
	require.NoError(t, s.ScheduleTexUpload(id, solid(3, 2, [4]byte{10, 20, 30, 255}, surface.FormatRGBA)))
	require.NoError(t, s.SetBorder(id, "#ffffff"))
	require.NoError(t, s.SetOpacity(id, 5))

	var buf bytes.Buffer
	require.NoError(t, s.EncodePNG(&buf))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 3, decoded.Bounds().Dx())
	assert.Equal(t, 2, decoded.Bounds().Dy())

	require.NoError(t, s.SavePNG(filepath.Join(t.TempDir(), "scene.png")))
}

func TestAnnotateOutlinesRegion(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	out := Annotate(img, []Annotation{{Rect: image.Rect(5, 5, 15, 15)}})
	require.Equal(t, img.Bounds(), out.Bounds())

	_, _, b, _ := out.At(10, 10).RGBA()
	assert.Greater(t, b>>8, uint32(20), "region is tinted")
	r, g, b, _ := out.At(1, 1).RGBA()
	assert.Equal(t, [3]uint32{0, 0, 0}, [3]uint32{r, g, b}, "outside the region untouched")
	r, g, b, _ = img.At(10, 10).RGBA()
	assert.Equal(t, [3]uint32{0, 0, 0}, [3]uint32{r, g, b}, "source image unchanged")
}

func TestAnnotateLabel(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 60, 24))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	out := Annotate(img, []Annotation{{Label: "hi"}})
	r, _, _, _ := out.At(4, 10).RGBA()
	assert.Less(t, r>>8, uint32(100), "label pill is dark")
	r, _, _, _ = out.At(55, 22).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestSaveAnnotatedPNG(t *testing.T) {
	s := New(8, 8)
	id, err := s.CreateTexture(4, 4, surface.FormatRGBA)
	require.NoError(t, err)
	require.NoError(t, s.ScheduleTexUpload(id, solid(4, 4, [4]byte{0, 0, 0, 255}, surface.FormatRGBA)))
	require.NoError(t, s.Place(id, 2, 2))

	r, err := s.Bounds(id)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(2, 2, 6, 6), r)
	_, err = s.Bounds(bridge.TextureID(99))
	assert.ErrorIs(t, err, ErrUnknownTexture)

	path := filepath.Join(t.TempDir(), "annotated.png")
	require.NoError(t, s.SaveAnnotatedPNG(path, []Annotation{{Rect: r}}))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), got.Bounds())
}
