// Package web serves the roadmap dashboard, its JSON API and live channels.
package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/milestone/internal/infrastructure/sse"
	"github.com/felixgeelhaar/milestone/pkg/application"
	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
)

//go:embed index.html
var indexHTML []byte

const maxImportBytes = 4 << 20

// Controller is the part of *application.SyncController the server drives.
type Controller interface {
	ID() string
	View() application.View
	Snapshot() roadmap.Snapshot
	Subscribe(fn func(application.View)) (unsubscribe func())
	ToggleSubtask(taskID int, subtaskID string) application.View
	ToggleAccordion(taskID int) application.View
	ForceSync(ctx context.Context) error
	Replace(snap roadmap.Snapshot) application.View
}

type Server struct {
	controller Controller
	transfer   *application.TransferService
	advisory   *application.AdvisoryService
	logger     *slog.Logger
	now        func() time.Time
	mux        *http.ServeMux
}

// NewServer registers every route. advisory may be nil, which disables /api/advise.
func NewServer(controller Controller, transfer *application.TransferService, advisory *application.AdvisoryService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if transfer == nil {
		transfer = application.NewTransferService(logger)
	}
	s := &Server{
		controller: controller,
		transfer:   transfer,
		advisory:   advisory,
		logger:     logger,
		now:        time.Now,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/view", s.handleView)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("POST /api/tasks/{id}/toggle", s.handleToggleTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/subtasks/{sid}/toggle", s.handleToggleSubtask)
	s.mux.HandleFunc("POST /api/sync", s.handleSync)
	s.mux.HandleFunc("GET /api/export", s.handleExport)
	s.mux.HandleFunc("POST /api/import", s.handleImport)
	s.mux.HandleFunc("POST /api/advise", s.handleAdvise)
	s.mux.Handle("GET /events", sse.NewHandler(s.controller, s.logger))
	s.mux.Handle("GET /ws", newSocketHandler(s.controller, s.logger))
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(indexHTML)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type statsResponse struct {
	roadmap.Stats
	Remaining int       `json:"remaining"`
	State     string    `json:"state"`
	Label     string    `json:"label"`
	Offline   bool      `json:"offline"`
	LastSync  time.Time `json:"lastSync"`
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.View())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	v := s.controller.View()
	writeJSON(w, http.StatusOK, statsResponse{
		Stats:     v.Stats,
		Remaining: v.Stats.Remaining(),
		State:     string(v.State),
		Label:     v.State.Label(),
		Offline:   v.Offline(),
		LastSync:  v.LastSync,
	})
}

func (s *Server) taskFromPath(w http.ResponseWriter, r *http.Request) (roadmap.Task, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return roadmap.Task{}, false
	}
	task, ok := s.controller.Snapshot().FindTask(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("task %d not found", id))
		return roadmap.Task{}, false
	}
	return task, true
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.controller.ToggleAccordion(task.ID))
}

func (s *Server) handleToggleSubtask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromPath(w, r)
	if !ok {
		return
	}
	sid := r.PathValue("sid")
	found := false
	for _, st := range task.Subtasks {
		if st.ID == sid {
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("subtask %q not found in task %d", sid, task.ID))
		return
	}
	writeJSON(w, http.StatusOK, s.controller.ToggleSubtask(task.ID, sid))
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.ForceSync(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": err.Error(),
			"view":  s.controller.View(),
		})
		return
	}
	writeJSON(w, http.StatusOK, s.controller.View())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", application.ExportFilename(s.now())))
	if err := s.transfer.Export(w, s.controller.Snapshot()); err != nil {
		s.logger.Warn("export failed", "err", err)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	snap, err := s.transfer.Import("upload", http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		if errors.Is(err, roadmap.ErrParse) {
			writeError(w, http.StatusBadRequest, "import file is not a roadmap array: "+err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Replace(snap))
}

func (s *Server) handleAdvise(w http.ResponseWriter, r *http.Request) {
	if s.advisory == nil {
		writeError(w, http.StatusServiceUnavailable, "advisory is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.advisory.Advise(r.Context(), s.controller.Snapshot()))
}
