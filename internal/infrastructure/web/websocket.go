package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/milestone/pkg/application"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client messages.
const (
	msgToggleSubtask   = "toggle_subtask"
	msgToggleAccordion = "toggle_accordion"
	msgSync            = "sync"
)

type clientMessage struct {
	Type      string `json:"type"`
	TaskID    int    `json:"task_id"`
	SubtaskID string `json:"subtask_id"`
}

type serverMessage struct {
	Type  string            `json:"type"`
	View  *application.View `json:"view,omitempty"`
	Error string            `json:"error,omitempty"`
}

type socketHandler struct {
	controller Controller
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// latestView holds the newest view not yet written. Older views are
// overwritten, never queued.
type latestView struct {
	mu    sync.Mutex
	view  *application.View
	ready chan struct{}
}

func newLatestView() *latestView {
	return &latestView{ready: make(chan struct{}, 1)}
}

func (l *latestView) put(v application.View) {
	l.mu.Lock()
	if l.view == nil || v.Revision > l.view.Revision {
		l.view = &v
	}
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *latestView) take() *application.View {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := l.view
	l.view = nil
	return v
}

func newSocketHandler(controller Controller, logger *slog.Logger) *socketHandler {
	return &socketHandler{
		controller: controller,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP upgrades the connection. The server pushes a view on connect and
// after every change; the client sends intents. Intent results arrive as
// regular view pushes.
func (h *socketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	views := newLatestView()
	unsubscribe := h.controller.Subscribe(views.put)
	defer unsubscribe()
	views.put(h.controller.View())

	out := make(chan serverMessage)
	go h.writeLoop(ctx, cancel, conn, views, out)
	h.readLoop(ctx, conn, out)
}

// writeLoop is the only writer on conn. A pending view is written before any
// reply so that a "synced" reply follows the view it produced.
func (h *socketHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, views *latestView, out <-chan serverMessage) {
	defer cancel()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	var last uint64
	write := func(msg serverMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg) == nil
	}
	flush := func() bool {
		v := views.take()
		if v == nil || (last != 0 && v.Revision <= last) {
			return true
		}
		last = v.Revision
		return write(serverMessage{Type: "view", View: v})
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-views.ready:
			if !flush() {
				return
			}
		case msg := <-out:
			if !flush() || !write(msg) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *socketHandler) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- serverMessage) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket closed", "err", err)
			}
			return
		}

		switch msg.Type {
		case msgToggleSubtask:
			h.controller.ToggleSubtask(msg.TaskID, msg.SubtaskID)
		case msgToggleAccordion:
			h.controller.ToggleAccordion(msg.TaskID)
		case msgSync:
			if err := h.controller.ForceSync(ctx); err != nil {
				h.reply(ctx, out, serverMessage{Type: "error", Error: err.Error()})
				continue
			}
			h.reply(ctx, out, serverMessage{Type: "synced"})
		default:
			h.reply(ctx, out, serverMessage{Type: "error", Error: "unknown message type: " + msg.Type})
		}
	}
}

func (h *socketHandler) reply(ctx context.Context, out chan<- serverMessage, msg serverMessage) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}
