package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pyrohost/pyrod/internal/bus"
	"github.com/pyrohost/pyrod/internal/egg"
	"github.com/pyrohost/pyrod/internal/files"
	"github.com/pyrohost/pyrod/internal/instance"
)

// ImageCounter reports how many images the engine holds, for the health
// endpoint.
type ImageCounter interface {
	ImageCount(ctx context.Context) (int, error)
}

type Server struct {
	eggs      *egg.Registry
	store     *instance.Store
	lifecycle Lifecycle
	commander Commander
	stats     StatsSource
	logs      LogSource
	files     *files.Service
	events    *bus.Bus
	images    ImageCounter
	logger    *slog.Logger
	mux       *http.ServeMux
}

func NewServer(
	eggs *egg.Registry,
	store *instance.Store,
	lifecycle Lifecycle,
	commander Commander,
	statsSource StatsSource,
	logs LogSource,
	fileService *files.Service,
	events *bus.Bus,
	images ImageCounter,
	logger *slog.Logger,
) *Server {
	s := &Server{
		eggs:      eggs,
		store:     store,
		lifecycle: lifecycle,
		commander: commander,
		stats:     statsSource,
		logs:      logs,
		files:     fileService,
		events:    events,
		images:    images,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.requestIDMiddleware(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /v1/eggs", s.handleListEggs)
	s.mux.HandleFunc("GET /v1/eggs/{id}", s.handleGetEgg)
	s.mux.HandleFunc("PUT /v1/eggs/{id}", s.handlePutEgg)
	s.mux.HandleFunc("DELETE /v1/eggs/{id}", s.handleDeleteEgg)

	s.mux.HandleFunc("GET /v1/servers", s.handleListServers)
	s.mux.HandleFunc("GET /v1/servers/{id}", s.handleGetServer)
	s.mux.HandleFunc("PUT /v1/servers/{id}", s.handleConfigure)
	s.mux.HandleFunc("DELETE /v1/servers/{id}", s.handleDeleteServer)

	s.mux.HandleFunc("POST /v1/servers/{id}/install", s.lifecycleHandler(s.lifecycle.Install))
	s.mux.HandleFunc("POST /v1/servers/{id}/reinstall", s.lifecycleHandler(s.lifecycle.Reinstall))
	s.mux.HandleFunc("POST /v1/servers/{id}/start", s.lifecycleHandler(s.lifecycle.Start))
	s.mux.HandleFunc("POST /v1/servers/{id}/stop", s.lifecycleHandler(s.lifecycle.Stop))
	s.mux.HandleFunc("POST /v1/servers/{id}/restart", s.lifecycleHandler(s.lifecycle.Restart))
	s.mux.HandleFunc("POST /v1/servers/{id}/kill", s.lifecycleHandler(s.lifecycle.Kill))

	s.mux.HandleFunc("POST /v1/servers/{id}/command", s.handleSendCommand)
	s.mux.HandleFunc("GET /v1/servers/{id}/stats", s.handleGetStats)
	s.mux.HandleFunc("GET /v1/servers/{id}/logs", s.handleGetLogs)

	s.mux.HandleFunc("GET /v1/servers/{id}/files", s.handleListFiles)
	s.mux.HandleFunc("GET /v1/servers/{id}/files/content", s.handleReadFile)
	s.mux.HandleFunc("POST /v1/servers/{id}/files/write", s.handleWriteFile)
	s.mux.HandleFunc("POST /v1/servers/{id}/files/update", s.handleUpdateFile)
	s.mux.HandleFunc("POST /v1/servers/{id}/files/delete", s.handleDeleteFile)
	s.mux.HandleFunc("POST /v1/servers/{id}/files/copy", s.handleCopyFile)
	s.mux.HandleFunc("POST /v1/servers/{id}/files/rename", s.handleRenameFile)

	s.mux.HandleFunc("GET /v1/servers/{id}/events", s.handleEvents)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	imageCount := 0
	if s.images != nil {
		if n, err := s.images.ImageCount(r.Context()); err == nil {
			imageCount = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"counts": map[string]int{
			"containers": s.lifecycle.ContainerCount(),
			"eggs":       s.eggs.Count(),
			"images":     imageCount,
		},
	})
}

// lifecycleHandler adapts a supervisor operation into an HTTP handler.
func (s *Server) lifecycleHandler(op func(ctx context.Context, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := op(r.Context(), id); err != nil {
			s.logger.Error("lifecycle operation", "instance_id", id, "error", err)
			writeAPIError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":    true,
			"state": s.lifecycle.State(id),
		})
	}
}
