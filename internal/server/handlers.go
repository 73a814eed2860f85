package server

import (
	"errors"
	"image/png"
	"net/http"
	"strings"
	"time"

	"github.com/neboloop/texbridge/internal/bridge"
	"github.com/neboloop/texbridge/internal/crashlog"
	"github.com/neboloop/texbridge/internal/httputil"
	"github.com/neboloop/texbridge/internal/input"
	"github.com/neboloop/texbridge/internal/surface"
)

// BridgeInfo describes a bridge in API responses.
type BridgeInfo struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	Reason      string    `json:"reason,omitempty"`
	URL         string    `json:"url"`
	Width       uint32    `json:"width"`
	Height      uint32    `json:"height"`
	Zoom        int       `json:"zoom"`
	Transparent bool      `json:"transparent"`
	Volume      float64   `json:"volume"`
	CreatedAt   time.Time `json:"createdAt"`
}

func info(e *bridge.Entry) BridgeInfo {
	b := e.Bridge
	vp := b.Viewport()
	return BridgeInfo{
		ID:          e.ID,
		State:       b.State().String(),
		Reason:      b.DeadReason(),
		URL:         b.URL(),
		Width:       vp.Width,
		Height:      vp.Height,
		Zoom:        b.ZoomLevel(),
		Transparent: b.Transparent(),
		Volume:      b.Volume(),
		CreatedAt:   e.CreatedAt,
	}
}

// writeBridgeError maps bridge errors onto status codes.
func writeBridgeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bridge.ErrClosed):
		httputil.ErrorWithCode(w, http.StatusGone, err.Error())
	case errors.Is(err, bridge.ErrDead), errors.Is(err, bridge.ErrDormant):
		httputil.ErrorWithCode(w, http.StatusConflict, err.Error())
	default:
		httputil.InternalError(w, err.Error())
	}
}

// entry resolves the {id} path parameter or writes a 404.
func (s *Server) entry(w http.ResponseWriter, r *http.Request) (*bridge.Entry, bool) {
	e, err := s.mgr.Get(httputil.PathVar(r, "id"))
	if err != nil {
		httputil.NotFound(w, err.Error())
		return nil, false
	}
	return e, true
}

// live resolves the bridge and rejects dead or closed ones.
func (s *Server) live(w http.ResponseWriter, r *http.Request) (*bridge.Entry, bool) {
	e, ok := s.entry(w, r)
	if !ok {
		return nil, false
	}
	if err := e.Bridge.Err(); err != nil {
		writeBridgeError(w, err)
		return nil, false
	}
	return e, true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	delivered, dropped := s.bus.Stats()
	httputil.OkJSON(w, map[string]any{
		"status":    "ok",
		"bridges":   s.mgr.Len(),
		"delivered": delivered,
		"dropped":   dropped,
	})
}

// crashes lists recent renderer and plugin crashes, newest first.
func (s *Server) crashes(w http.ResponseWriter, r *http.Request) {
	httputil.OkJSON(w, crashlog.Recent(httputil.QueryInt(r, "limit", 50)))
}

func (s *Server) listBridges(w http.ResponseWriter, r *http.Request) {
	entries := s.mgr.List()
	out := make([]BridgeInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, info(e))
	}
	httputil.OkJSON(w, out)
}

type createRequest struct {
	URL string `json:"url"`
	// Width and Height default to the configured size; an explicit zero
	// creates a dormant bridge.
	Width       *uint32  `json:"width"`
	Height      *uint32  `json:"height"`
	Transparent *bool    `json:"transparent"`
	Zoom        *int     `json:"zoom"`
	Volume      *float64 `json:"volume"`
	// Commands are page commands forwarded to viewers as message statuses.
	Commands []string `json:"commands"`
	Owner    string   `json:"owner"`
}

func (s *Server) createBridge(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httputil.Parse(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	opts := s.defaults()
	opts.ID = ""
	opts.URL = req.URL
	if req.Width != nil {
		opts.Viewport.Width = *req.Width
	}
	if req.Height != nil {
		opts.Viewport.Height = *req.Height
	}
	if req.Transparent != nil {
		opts.Transparent = *req.Transparent
	}
	if req.Zoom != nil {
		opts.ZoomLevel = *req.Zoom
	}
	if req.Volume != nil {
		opts.Volume = *req.Volume
	}

	e, err := s.mgr.Create(r.Context(), opts, req.Owner)
	if err != nil {
		log.Errorf("create bridge: %v", err)
		httputil.InternalError(w, err.Error())
		return
	}
	s.watch(e)
	for _, cmd := range req.Commands {
		s.forwardCommand(e, cmd)
	}
	log.Infof("%s created for %s (%s)", e.ID, opts.URL, opts.Viewport)
	httputil.WriteJSON(w, http.StatusCreated, info(e))
}

// watch forwards a bridge's lifecycle callbacks to its viewers.
func (s *Server) watch(e *bridge.Entry) {
	id := e.ID
	b := e.Bridge
	b.OnLoadEnd(func() {
		s.publish(Status{Type: StatusLoad, ID: id, URL: b.URL()})
	})
	b.OnRendererCrash(func(reason string) {
		s.publish(Status{Type: StatusCrash, ID: id, Reason: reason})
	})
	b.OnPluginCrash(func(path string) {
		crashlog.LogWarn("plugin", path, map[string]string{"bridge": id, "url": b.URL()})
		s.publish(Status{Type: StatusCrash, ID: id, Reason: "plugin crashed: " + path})
	})
}

// forwardCommand publishes every avg.send(cmd, data) call of the page.
func (s *Server) forwardCommand(e *bridge.Entry, cmd string) {
	id := e.ID
	e.Bridge.AddJSCallback(cmd, func(data string) {
		s.publish(Status{Type: StatusMessage, ID: id, Cmd: cmd, Data: data})
	})
}

// forwardClick publishes clicks on the element with id domID.
func (s *Server) forwardClick(e *bridge.Entry, domID string) {
	id := e.ID
	e.Bridge.AddClickCallback(domID, func(clicked string) {
		s.publish(Status{Type: StatusClick, ID: id, Data: clicked})
	})
}

func (s *Server) getBridge(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	httputil.OkJSON(w, info(e))
}

func (s *Server) closeBridge(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	if err := s.mgr.Close(e.ID); err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	s.publish(Status{Type: StatusClosed, ID: e.ID})
	s.Forget(e.ID)
	w.WriteHeader(http.StatusNoContent)
}

type navigateRequest struct {
	URL string `json:"url"`
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := httputil.Parse(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "url is required")
		return
	}
	e, ok := s.live(w, r)
	if !ok {
		return
	}
	if err := e.Bridge.LoadURL(r.Context(), req.URL); err != nil {
		writeBridgeError(w, err)
		return
	}
	httputil.OkJSON(w, info(e))
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	e, ok := s.live(w, r)
	if !ok {
		return
	}
	if err := e.Bridge.Refresh(r.Context()); err != nil {
		writeBridgeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type jsRequest struct {
	Code string `json:"code"`
}

func (s *Server) executeJS(w http.ResponseWriter, r *http.Request) {
	var req jsRequest
	if err := httputil.Parse(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	e, ok := s.live(w, r)
	if !ok {
		return
	}
	if err := e.Bridge.ExecuteJS(r.Context(), req.Code); err != nil {
		httputil.ErrorWithCode(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type zoomRequest struct {
	// Level sets an absolute level; Step is added to the current one.
	Level *int `json:"level"`
	Step  int  `json:"step"`
}

func (s *Server) zoom(w http.ResponseWriter, r *http.Request) {
	var req zoomRequest
	if err := httputil.Parse(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	e, ok := s.live(w, r)
	if !ok {
		return
	}
	var level int
	var err error
	switch {
	case req.Level != nil:
		level, err = e.Bridge.Zoom(r.Context(), *req.Level)
	case req.Step > 0:
		level, err = e.Bridge.ZoomIn(r.Context())
	case req.Step < 0:
		level, err = e.Bridge.ZoomOut(r.Context())
	default:
		level = e.Bridge.ZoomLevel()
	}
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	httputil.OkJSON(w, map[string]int{"zoom": level})
}

type resizeRequest struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

func (s *Server) resize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if err := httputil.Parse(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	if err := e.Bridge.Resize(r.Context(), surface.Viewport{Width: req.Width, Height: req.Height}); err != nil {
		writeBridgeError(w, err)
		return
	}
	httputil.OkJSON(w, info(e))
}

func (s *Server) recreate(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	if err := e.Bridge.Recreate(r.Context()); err != nil {
		writeBridgeError(w, err)
		return
	}
	httputil.OkJSON(w, info(e))
}

type settingsRequest struct {
	Transparent   *bool    `json:"transparent"`
	MouseInput    *bool    `json:"mouseInput"`
	KeyboardInput *bool    `json:"keyboardInput"`
	Scrollbars    *bool    `json:"scrollbars"`
	Volume        *float64 `json:"volume"`
}

func (s *Server) settings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := httputil.Parse(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	e, ok := s.live(w, r)
	if !ok {
		return
	}
	b := e.Bridge
	ctx := r.Context()
	if req.MouseInput != nil {
		b.SetMouseInput(*req.MouseInput)
	}
	if req.KeyboardInput != nil {
		b.SetKeyboardInput(*req.KeyboardInput)
	}
	if req.Transparent != nil {
		if err := b.SetTransparent(ctx, *req.Transparent); err != nil {
			writeBridgeError(w, err)
			return
		}
	}
	if req.Scrollbars != nil {
		if err := b.SetScrollbars(ctx, *req.Scrollbars); err != nil {
			writeBridgeError(w, err)
			return
		}
	}
	if req.Volume != nil {
		if err := b.SetVolume(ctx, *req.Volume); err != nil {
			writeBridgeError(w, err)
			return
		}
	}
	httputil.OkJSON(w, info(e))
}

type keyRequest struct {
	Key  string   `json:"key"`
	Text string   `json:"text"`
	Mods []string `json:"mods"`
}

// sendKey injects a full key press, bypassing the event handler switch.
func (s *Server) sendKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := httputil.Parse(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	mods, err := input.ParseMods(req.Mods)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if req.Key == "" && req.Text == "" {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "key or text is required")
		return
	}
	e, ok := s.live(w, r)
	if !ok {
		return
	}
	for _, down := range []bool{true, false} {
		key := input.Key{Name: req.Key, Text: req.Text, Down: down, Mods: mods}
		if err := e.Bridge.SendKeyEvent(r.Context(), key); err != nil {
			writeBridgeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) framePNG(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	f, ok := s.lastFrame(e.ID)
	if !ok {
		httputil.NotFound(w, "no frame painted yet")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, f.Snapshot.Image()); err != nil {
		log.Warnf("%s write png: %v", e.ID, err)
	}
}
