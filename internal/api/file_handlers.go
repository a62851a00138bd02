package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"unicode/utf8"
)

type writeFileRequest struct {
	Path          string `json:"path"`
	Text          string `json:"text,omitempty"`
	ContentBase64 string `json:"content_base64,omitempty"`
}

func (r writeFileRequest) content() ([]byte, error) {
	if r.ContentBase64 != "" {
		return base64.StdEncoding.DecodeString(r.ContentBase64)
	}
	return []byte(r.Text), nil
}

func validateWriteFileRequest(req writeFileRequest) string {
	if req.Path == "" {
		return "path is required"
	}
	if req.Text != "" && req.ContentBase64 != "" {
		return "provide either 'text' or 'content_base64', not both"
	}
	return ""
}

type pathRequest struct {
	Path string `json:"path"`
}

type twoPathRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entries, err := s.files.List(id, r.URL.Query().Get("path"))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path := r.URL.Query().Get("path")
	if path == "" {
		writeValidationError(w, "path query parameter is required")
		return
	}

	data, err := s.files.Read(id, path)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	// Text comes back verbatim; binary content is base64.
	if utf8.Valid(data) {
		writeJSON(w, http.StatusOK, map[string]string{"path": path, "text": string(data)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"path":           path,
		"content_base64": base64.StdEncoding.EncodeToString(data),
	})
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	s.handleFileWrite(w, r, s.files.Write)
}

func (s *Server) handleUpdateFile(w http.ResponseWriter, r *http.Request) {
	s.handleFileWrite(w, r, s.files.Update)
}

func (s *Server) handleFileWrite(w http.ResponseWriter, r *http.Request, op func(id, rel string, content []byte) error) {
	id := r.PathValue("id")

	var req writeFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error())
		return
	}
	if msg := validateWriteFileRequest(req); msg != "" {
		writeValidationError(w, msg)
		return
	}

	content, err := req.content()
	if err != nil {
		writeValidationError(w, "invalid base64: "+err.Error())
		return
	}

	if err := op(id, req.Path, content); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error())
		return
	}
	if req.Path == "" {
		writeValidationError(w, "path is required")
		return
	}

	if err := s.files.Delete(id, req.Path); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCopyFile(w http.ResponseWriter, r *http.Request) {
	s.handleTwoPathOp(w, r, s.files.Copy)
}

func (s *Server) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	s.handleTwoPathOp(w, r, s.files.Rename)
}

func (s *Server) handleTwoPathOp(w http.ResponseWriter, r *http.Request, op func(id, from, to string) error) {
	id := r.PathValue("id")

	var req twoPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error())
		return
	}
	if req.From == "" || req.To == "" {
		writeValidationError(w, "from and to are required")
		return
	}

	if err := op(id, req.From, req.To); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
