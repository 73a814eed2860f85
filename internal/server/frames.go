package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"time"

	"github.com/neboloop/texbridge/internal/bridge"
	"github.com/neboloop/texbridge/internal/crashlog"
	"github.com/neboloop/texbridge/internal/events"
	"github.com/neboloop/texbridge/internal/surface"
)

// Frame is the last picture a bridge painted, kept raw for PNG export and
// JPEG-encoded for viewers.
type Frame struct {
	BridgeID string
	Seq      uint64
	Snapshot *surface.Snapshot
	JPEG     []byte
}

func (s *Server) runFrames(ctx context.Context) {
	s.mu.RLock()
	interval := time.Second / time.Duration(s.opts.FrameRate)
	s.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick pumps every bridge once, publishes state changes and fans out the
// frames painted since the last tick.
func (s *Server) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			crashlog.LogPanic("frames", r, nil)
		}
	}()
	s.mgr.Tick(ctx)
	for _, e := range s.mgr.List() {
		s.publishState(e)

		snap, ok := e.Bridge.Snapshot()
		if !ok {
			continue
		}
		f, err := s.encode(e.ID, snap)
		if err != nil {
			log.Warnf("%s encode frame: %v", e.ID, err)
			continue
		}
		s.mu.Lock()
		s.frames[e.ID] = f
		s.mu.Unlock()

		if err := events.TryEmit(s.bus, events.FrameTopic(e.ID), f); err != nil && !errors.Is(err, events.ErrClosed) {
			log.Debugf("%s frame %d dropped: %v", e.ID, f.Seq, err)
		}
	}
}

func (s *Server) encode(id string, snap *surface.Snapshot) (*Frame, error) {
	s.mu.RLock()
	quality := s.opts.JPEGQuality
	s.mu.RUnlock()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, snap.Image(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg: %w", err)
	}
	return &Frame{BridgeID: id, Seq: snap.Seq, Snapshot: snap, JPEG: buf.Bytes()}, nil
}

// lastFrame returns the most recent frame of a bridge.
func (s *Server) lastFrame(id string) (*Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.frames[id]
	return f, ok
}

// publishState emits a state status when the bridge changed state since the
// last tick.
func (s *Server) publishState(e *bridge.Entry) {
	state := e.Bridge.State()
	s.mu.Lock()
	prev, seen := s.states[e.ID]
	s.states[e.ID] = state
	s.mu.Unlock()
	if seen && prev == state {
		return
	}
	s.publish(Status{
		Type:   StatusState,
		ID:     e.ID,
		State:  state.String(),
		Reason: e.Bridge.DeadReason(),
		URL:    e.Bridge.URL(),
	})
}

func (s *Server) publish(st Status) {
	if err := events.Emit(s.bus, events.StatusTopic(st.ID), st); err != nil && !errors.Is(err, events.ErrClosed) {
		log.Warnf("%s status %s dropped: %v", st.ID, st.Type, err)
	}
}

// Forget drops everything the server kept for a closed bridge. It is safe to
// call more than once.
func (s *Server) Forget(id string) {
	s.mu.Lock()
	delete(s.frames, id)
	delete(s.states, id)
	s.mu.Unlock()
	s.bus.Forget(events.FrameTopic(id))
	s.bus.Forget(events.StatusTopic(id))
}
