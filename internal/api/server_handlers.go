package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pyrohost/pyrod/internal/instance"
)

// serverView is the instance config plus its live runtime state.
type serverView struct {
	*instance.Config
	State string `json:"state"`
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	configs, err := s.store.List()
	if err != nil {
		writeAPIError(w, err)
		return
	}

	views := make([]serverView, 0, len(configs))
	for _, cfg := range configs {
		views = append(views, serverView{Config: cfg, State: string(s.lifecycle.State(cfg.ID))})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cfg, err := s.store.Get(id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, serverView{Config: cfg, State: string(s.lifecycle.State(id))})
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var cfg instance.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeValidationError(w, "invalid json: "+err.Error())
		return
	}

	saved, err := s.store.Save(id, &cfg)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	s.logger.Info("instance configured", "instance_id", id, "egg_id", saved.EggID, "port", saved.Port)
	writeJSON(w, http.StatusOK, serverView{Config: saved, State: string(s.lifecycle.State(id))})
}

func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.lifecycle.Delete(r.Context(), id); err != nil {
		writeAPIError(w, err)
		return
	}
	s.logger.Info("instance deleted", "instance_id", id)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type commandRequest struct {
	Command string `json:"command"`
}

func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error())
		return
	}
	if req.Command == "" {
		writeValidationError(w, "command is required")
		return
	}

	if err := s.commander.Send(r.Context(), id, req.Command); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sample, ok := s.stats.Last(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, APIError{Code: ErrCodeNotFound, Message: "no stats for " + id})
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	lines := 100
	if v := r.URL.Query().Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeValidationError(w, "lines must be a positive integer")
			return
		}
		lines = n
	}

	records, err := s.logs.Tail(id, lines)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
