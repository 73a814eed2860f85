// Package devtools turns DevTools screencast frames into paints and encodes
// the commands shared by the CDP-speaking backends.
package devtools

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"sync"

	"github.com/neboloop/texbridge/internal/engine"
	"github.com/neboloop/texbridge/internal/logging"
)

var log = logging.WithComponent("devtools")

// Frame is one screencast frame as delivered by the engine. Ack must be called
// exactly once or the engine stops sending frames.
type Frame struct {
	Data string // base64 encoded jpeg or png
	Ack  func()
}

// Worker acknowledges and decodes frames off the engine's event goroutine.
// When frames arrive faster than they decode, every frame is acknowledged but
// only the newest is painted.
type Worker struct {
	target engine.PaintTarget

	mu      sync.Mutex
	pending []Frame
	stopped bool

	signal chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewWorker starts a worker painting into target.
func NewWorker(target engine.PaintTarget) *Worker {
	w := &Worker{
		target: target,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Push queues a frame and returns immediately.
func (w *Worker) Push(f Frame) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.pending = append(w.pending, f)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// Stop ends the worker and waits for an in-flight decode. Safe to call twice.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.pending = nil
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case <-w.signal:
		}

		w.mu.Lock()
		batch := w.pending
		w.pending = nil
		w.mu.Unlock()
		if len(batch) == 0 {
			continue
		}

		for _, f := range batch {
			if f.Ack != nil {
				f.Ack()
			}
		}

		img, err := Decode(batch[len(batch)-1].Data)
		if err != nil {
			log.Warnf("dropping frame: %v", err)
			continue
		}
		w.target.OnPaintImage(nil, img)
	}
}

// Decode decodes a base64 screencast payload.
func Decode(data string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode frame data: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode frame image: %w", err)
	}
	return img, nil
}

// Format is a screencast image format.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// ParseFormat accepts "jpeg", "jpg" or "png". Empty means png, which keeps
// alpha for transparent views.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	default:
		return "", fmt.Errorf("unsupported screencast format %q", s)
	}
}

// EveryNthFrame maps a target frame rate onto the frame skip of a 60 Hz
// compositor.
func EveryNthFrame(frameRate int) int {
	if frameRate <= 0 || frameRate >= engine.DefaultFrameRate {
		return 1
	}
	return engine.DefaultFrameRate / frameRate
}

// DevTools modifier bits.
const (
	modAlt   = 1
	modCtrl  = 2
	modMeta  = 4
	modShift = 8
)

// Modifiers converts native modifier bits to the DevTools bit set. Lock keys
// have no DevTools equivalent and are dropped.
func Modifiers(m engine.Modifiers) int64 {
	var out int64
	if m.Has(engine.ModAlt) {
		out |= modAlt
	}
	if m.Has(engine.ModControl) {
		out |= modCtrl
	}
	if m.Has(engine.ModCommand) {
		out |= modMeta
	}
	if m.Has(engine.ModShift) {
		out |= modShift
	}
	return out
}

// Text returns the DevTools text for a single UTF-16 code unit. Zero means no
// text. A lone surrogate is sent as the replacement character.
func Text(unit uint16) string {
	if unit == 0 {
		return ""
	}
	return string(rune(unit))
}
