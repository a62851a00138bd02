package api

import (
	"encoding/json"
	"net/http"

	"github.com/pyrohost/pyrod/internal/egg"
)

func (s *Server) handleListEggs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eggs.List())
}

func (s *Server) handleGetEgg(w http.ResponseWriter, r *http.Request) {
	e, err := s.eggs.Get(r.PathValue("id"))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handlePutEgg(w http.ResponseWriter, r *http.Request) {
	var e egg.Egg
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeValidationError(w, "invalid json: "+err.Error())
		return
	}
	e.ID = r.PathValue("id")

	if err := s.eggs.Put(&e); err != nil {
		writeAPIError(w, err)
		return
	}
	s.logger.Info("egg saved", "egg_id", e.ID)
	writeJSON(w, http.StatusOK, &e)
}

func (s *Server) handleDeleteEgg(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.eggs.Delete(id); err != nil {
		writeAPIError(w, err)
		return
	}
	s.logger.Info("egg deleted", "egg_id", id)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
