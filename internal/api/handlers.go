package api

import (
	"encoding/json"
	"net/http"

	"github.com/Ashish-dwi99/Engram-sub002/internal/auth"
	"github.com/Ashish-dwi99/Engram-sub002/internal/logging"
	"github.com/Ashish-dwi99/Engram-sub002/internal/provenance"
	"github.com/Ashish-dwi99/Engram-sub002/internal/retrieval"
	"github.com/Ashish-dwi99/Engram-sub002/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "engram"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":     s.cfg.Version,
		"api_version": "v1",
	})
}

// handleCreateSession mints a capability token. Restricted to trusted local
// callers, optionally bearing the configured admin key.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if err := s.gate.EnforceSessionIssuer(r); err != nil {
		writeError(w, http.StatusForbidden, "session creation allowed only from local trusted clients")
		return
	}

	var req auth.IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	issued, err := s.sessions.Issue(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, issued)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req retrieval.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "query and user_id are required")
		return
	}

	resp, err := s.engine.Search(req)
	if err != nil {
		logging.L(logging.CategoryAPI).Errorw("search failed", "err", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type addMemoryRequest struct {
	UserID        string         `json:"user_id"`
	AgentID       string         `json:"agent_id,omitempty"`
	Content       string         `json:"content"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	SourceApp     string         `json:"source_app,omitempty"`
	SourceEventID string         `json:"source_event_id,omitempty"`
	Tool          string         `json:"tool,omitempty"`
}

type addMemoryResponse struct {
	ID         string            `json:"id"`
	Provenance provenance.Record `json:"provenance"`
}

// handleAddMemory is the governed-write path: every write is stamped with a
// provenance record before it reaches the store.
func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var req addMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "user_id and content are required")
		return
	}

	record := provenance.Build(provenance.Options{
		SourceApp:     req.SourceApp,
		SourceEventID: req.SourceEventID,
		AgentID:       req.AgentID,
		Tool:          req.Tool,
	})

	meta := req.Metadata
	if meta == nil {
		meta = make(map[string]any, 1)
	}
	meta["provenance"] = record

	id, err := s.store.AddMemory(req.UserID, req.AgentID, req.Content, meta)
	if err != nil {
		logging.L(logging.CategoryAPI).Errorw("memory write failed", "err", err)
		writeError(w, http.StatusInternalServerError, "memory write failed")
		return
	}
	writeJSON(w, http.StatusOK, addMemoryResponse{ID: id, Provenance: record})
}

// handleAddScene records an episodic scene.
func (s *Server) handleAddScene(w http.ResponseWriter, r *http.Request) {
	var scene store.Scene
	if err := json.NewDecoder(r.Body).Decode(&scene); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if scene.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	id, err := s.store.AddScene(scene)
	if err != nil {
		logging.L(logging.CategoryAPI).Errorw("scene write failed", "err", err)
		writeError(w, http.StatusInternalServerError, "scene write failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}
