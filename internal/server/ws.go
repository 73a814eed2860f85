package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/neboloop/texbridge/internal/bridge"
	"github.com/neboloop/texbridge/internal/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 32768 // 32KB

	// Outbound messages buffered per viewer. Frames beyond it are dropped.
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

var errViewerGone = errors.New("viewer disconnected")

type outbound struct {
	kind int
	data []byte
}

// viewer is one WebSocket connection watching a bridge.
type viewer struct {
	conn *websocket.Conn
	send chan outbound

	stopped  chan struct{}
	stopOnce sync.Once
}

func newViewer(conn *websocket.Conn) *viewer {
	return &viewer{
		conn:    conn,
		send:    make(chan outbound, sendBuffer),
		stopped: make(chan struct{}),
	}
}

// queue buffers a message without blocking and reports whether it fit.
func (v *viewer) queue(kind int, data []byte) bool {
	select {
	case v.send <- outbound{kind: kind, data: data}:
		return true
	default:
		return false
	}
}

func (v *viewer) queueJSON(st Status) {
	data, err := json.Marshal(st)
	if err != nil {
		log.Errorf("marshal status: %v", err)
		return
	}
	if !v.queue(websocket.TextMessage, data) {
		log.Warnf("%s viewer too slow, %s status dropped", st.ID, st.Type)
	}
}

// stop makes the write pump flush what is queued and close the connection.
func (v *viewer) stop() {
	v.stopOnce.Do(func() { close(v.stopped) })
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("%s websocket upgrade: %v", e.ID, err)
		return
	}
	v := newViewer(conn)

	v.queueJSON(Status{
		Type:   StatusState,
		ID:     e.ID,
		State:  e.Bridge.State().String(),
		Reason: e.Bridge.DeadReason(),
		URL:    e.Bridge.URL(),
	})
	frames := events.Subscribe(s.bus, events.FrameTopic(e.ID), func(_ context.Context, f *Frame) error {
		if !v.queue(websocket.BinaryMessage, f.JPEG) {
			log.Debugf("%s viewer too slow, frame %d dropped", e.ID, f.Seq)
		}
		return nil
	}, true)
	defer frames.Unsubscribe()
	statuses := events.Subscribe(s.bus, events.StatusTopic(e.ID), func(_ context.Context, st Status) error {
		v.queueJSON(st)
		if st.Type == StatusClosed {
			v.stop()
		}
		return nil
	})
	defer statuses.Unsubscribe()

	log.Infof("%s viewer connected from %s", e.ID, r.RemoteAddr)
	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return s.readPump(gctx, v, e) })
	g.Go(func() error { return v.writePump(gctx, s.done) })
	if err := g.Wait(); err != nil && !errors.Is(err, errViewerGone) {
		log.Warnf("%s viewer: %v", e.ID, err)
	}
	log.Infof("%s viewer from %s disconnected", e.ID, r.RemoteAddr)
}

// readPump applies viewer messages to the bridge until the connection
// closes. Rejected messages are answered with an error status.
func (s *Server) readPump(ctx context.Context, v *viewer, e *bridge.Entry) error {
	v.conn.SetReadLimit(maxMessageSize)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warnf("%s websocket read: %v", e.ID, err)
			}
			return errViewerGone
		}
		if err := s.handleMessage(ctx, e, data); err != nil {
			v.queueJSON(Status{Type: StatusError, ID: e.ID, Reason: err.Error()})
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, e *bridge.Entry, data []byte) error {
	m, err := decodeClientMessage(data)
	if err != nil {
		return err
	}
	switch {
	case m.isInput():
		ev, err := m.event()
		if err != nil {
			return err
		}
		return e.Bridge.HandleEvent(ctx, ev)
	case m.Type == "listen":
		if m.Cmd == "" {
			return errors.New("listen needs cmd")
		}
		s.forwardCommand(e, m.Cmd)
		return nil
	case m.Type == "listenClick":
		if m.ID == "" {
			return errors.New("listenClick needs id")
		}
		s.forwardClick(e, m.ID)
		return nil
	case m.Type == "send":
		return errPageOnly
	}
	return fmt.Errorf("unknown message type %q", m.Type)
}

// writePump writes queued messages and keeps the connection alive with pings.
// It owns closing the connection.
func (v *viewer) writePump(ctx context.Context, shutdown <-chan struct{}) error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case msg := <-v.send:
			if err := v.write(msg); err != nil {
				return err
			}
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-v.stopped:
			v.flush()
			return v.close(websocket.CloseNormalClosure, "bridge closed")
		case <-shutdown:
			return v.close(websocket.CloseGoingAway, "server shutting down")
		case <-ctx.Done():
			return nil
		}
	}
}

func (v *viewer) write(msg outbound) error {
	v.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return v.conn.WriteMessage(msg.kind, msg.data)
}

func (v *viewer) flush() {
	for {
		select {
		case msg := <-v.send:
			if v.write(msg) != nil {
				return
			}
		default:
			return
		}
	}
}

func (v *viewer) close(code int, text string) error {
	v.conn.SetWriteDeadline(time.Now().Add(writeWait))
	v.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
	return errViewerGone
}
