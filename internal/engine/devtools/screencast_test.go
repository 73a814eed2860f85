package devtools

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/texbridge/internal/engine"
	"github.com/neboloop/texbridge/internal/surface"
)

type recordingTarget struct {
	mu     sync.Mutex
	images []image.Image
}

func (r *recordingTarget) FrameSize() (int, int, bool) { return 2, 2, true }

func (r *recordingTarget) OnPaint([]surface.Rect, []byte, int, int, surface.Format) bool {
	return false
}

func (r *recordingTarget) OnPaintImage(_ []surface.Rect, img image.Image) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = append(r.images, img)
	return true
}

func (r *recordingTarget) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.images)
}

func pngFrame(t *testing.T, c color.NRGBA) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecode(t *testing.T) {
	img, err := Decode(pngFrame(t, color.NRGBA{R: 255, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())

	_, err = Decode("not base64!")
	assert.Error(t, err)

	_, err = Decode(base64.StdEncoding.EncodeToString([]byte("nope")))
	assert.Error(t, err)
}

func TestWorkerAcksEveryFrame(t *testing.T) {
	target := &recordingTarget{}
	w := NewWorker(target)
	defer w.Stop()

	var mu sync.Mutex
	acks := 0
	ack := func() {
		mu.Lock()
		acks++
		mu.Unlock()
	}
	data := pngFrame(t, color.NRGBA{G: 255, A: 255})
	for i := 0; i < 5; i++ {
		w.Push(Frame{Data: data, Ack: ack})
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return acks == 5
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return target.count() >= 1 }, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, target.count(), 5)
}

func TestWorkerSkipsBadFrames(t *testing.T) {
	target := &recordingTarget{}
	w := NewWorker(target)

	acked := make(chan struct{}, 1)
	w.Push(Frame{Data: "garbage", Ack: func() { acked <- struct{}{} }})
	select {
	case <-acked:
	case <-time.After(time.Second):
		t.Fatal("frame was not acknowledged")
	}
	w.Stop()
	w.Stop()
	assert.Equal(t, 0, target.count())

	w.Push(Frame{Data: "ignored"})
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, f)

	f, err = ParseFormat(" JPG ")
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, f)

	_, err = ParseFormat("webp")
	assert.Error(t, err)
}

func TestEveryNthFrame(t *testing.T) {
	assert.Equal(t, 1, EveryNthFrame(0))
	assert.Equal(t, 1, EveryNthFrame(60))
	assert.Equal(t, 1, EveryNthFrame(120))
	assert.Equal(t, 2, EveryNthFrame(30))
	assert.Equal(t, 4, EveryNthFrame(15))
}

func TestModifiers(t *testing.T) {
	assert.Equal(t, int64(0), Modifiers(engine.ModCapsLock|engine.ModNumLock))
	assert.Equal(t, int64(8), Modifiers(engine.ModShift))
	assert.Equal(t, int64(1|2|4|8), Modifiers(engine.ModShift|engine.ModControl|engine.ModAlt|engine.ModCommand))
}

func TestText(t *testing.T) {
	assert.Equal(t, "", Text(0))
	assert.Equal(t, "a", Text('a'))
	assert.Equal(t, "é", Text(0xE9))
	assert.Equal(t, "�", Text(0xD83D))
}
