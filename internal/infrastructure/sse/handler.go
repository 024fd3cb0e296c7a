// Package sse streams roadmap views via Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/felixgeelhaar/milestone/pkg/application"
)

// ViewSource is implemented by *application.SyncController.
type ViewSource interface {
	ID() string
	View() application.View
	Subscribe(fn func(application.View)) (unsubscribe func())
}

// Handler sends the current view on connect and every change after it.
type Handler struct {
	source ViewSource
	logger *slog.Logger
}

func NewHandler(source ViewSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{source: source, logger: logger}
}

type statsPayload struct {
	Stats    any    `json:"stats"`
	State    string `json:"state"`
	Revision uint64 `json:"revision"`
}

// ServeHTTP handles SSE connections. With ?only=stats the snapshot is left out.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	statsOnly := r.URL.Query().Get("only") == "stats"

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Buffered so the controller never blocks on a slow client.
	ch := make(chan application.View, 16)
	unsubscribe := h.source.Subscribe(func(v application.View) {
		select {
		case ch <- v:
		default:
			// Drop if client is slow; a later view supersedes it.
		}
	})
	defer unsubscribe()

	var last uint64
	send := func(v application.View) bool {
		if last != 0 && v.Revision <= last {
			return true
		}
		last = v.Revision

		var payload any = v
		if statsOnly {
			payload = statsPayload{Stats: v.Stats, State: string(v.State), Revision: v.Revision}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			h.logger.Warn("encode view", "err", err)
			return true
		}

		_, _ = fmt.Fprintf(w, "id: %s-%d\n", h.source.ID(), v.Revision)
		_, _ = fmt.Fprintf(w, "event: view\n")
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(h.source.View()) {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-ch:
			if !send(v) {
				return
			}
		}
	}
}
