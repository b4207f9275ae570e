package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/agentcore/orchestrator/internal/event"
	"github.com/agentcore/orchestrator/pkg/types"
)

// CreateSessionRequest represents the request body for creating a session.
type CreateSessionRequest struct {
	Directory string `json:"directory"`
	Title     string `json:"title,omitempty"`
}

// listSessions serves GET /session.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	// Only use explicitly provided directory query parameter
	// If not provided, list all sessions (directory = "")
	directory := r.URL.Query().Get("directory")

	sessions, err := s.sessionService.List(r.Context(), directory)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	if sessions == nil {
		sessions = []*types.Session{}
	}

	writeJSON(w, http.StatusOK, sessions)
}

// createSession serves POST /session.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	directory := req.Directory
	if directory == "" {
		directory = getDirectory(r.Context())
	}

	if directory == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "directory is required")
		return
	}

	session, err := s.sessionService.Create(r.Context(), directory, req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Publish the event
	event.Publish(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{Info: session},
	})

	writeJSON(w, http.StatusOK, session)
}

// getSession serves GET /session/{sessionID}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := s.sessionService.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// updateSession serves PATCH /session/{sessionID}.
func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	session, err := s.sessionService.Update(r.Context(), sessionID, updates)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Publish the event
	event.Publish(event.Event{
		Type: event.SessionUpdated,
		Data: event.SessionUpdatedData{Info: session},
	})

	writeJSON(w, http.StatusOK, session)
}

// deleteSession serves DELETE /session/{sessionID}.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	// Capture the session before deleting it; the event carries the full object
	session, _ := s.sessionService.Get(r.Context(), sessionID)

	if err := s.sessionService.Delete(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Publish the full session object
	event.Publish(event.Event{
		Type: event.SessionDeleted,
		Data: event.SessionDeletedData{Info: session},
	})

	writeSuccess(w)
}

// getSessionStatus serves GET /session/status.
func (s *Server) getSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "sessionID required")
		return
	}

	session, err := s.sessionService.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	status := "idle"
	if s.sessionService.IsProcessing(session.ID) {
		status = "processing"
	}

	statusBody := map[string]any{
		"sessionID": session.ID,
		"title":     session.Title,
		"status":    status,
	}

	writeJSON(w, http.StatusOK, statusBody)
}

// getChildren serves GET /session/{sessionID}/children.
func (s *Server) getChildren(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	children, err := s.sessionService.GetChildren(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, children)
}

// ForkSessionRequest represents the request body for forking a session.
type ForkSessionRequest struct {
	MessageID string `json:"messageID"`
}

// forkSession serves POST /session/{sessionID}/fork.
func (s *Server) forkSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req ForkSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	newSession, err := s.sessionService.Fork(r.Context(), sessionID, req.MessageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Publish the event
	event.Publish(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{Info: newSession},
	})

	writeJSON(w, http.StatusOK, newSession)
}

// abortSession serves POST /session/{sessionID}/abort.
func (s *Server) abortSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.sessionService.Abort(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeSuccess(w)
}

// shareSession serves POST /session/{sessionID}/share.
func (s *Server) shareSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	shareURL, err := s.sessionService.Share(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": shareURL})
}

// unshareSession serves DELETE /session/{sessionID}/share.
func (s *Server) unshareSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.sessionService.Unshare(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeSuccess(w)
}

// summarizeSession serves POST /session/{sessionID}/summarize.
func (s *Server) summarizeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	summary, err := s.sessionService.Summarize(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// initSession serves POST /session/{sessionID}/init.
func (s *Server) initSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := s.sessionService.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// getDiff serves GET /session/{sessionID}/diff.
func (s *Server) getDiff(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	diffs, err := s.sessionService.GetDiffs(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, diffs)
}

// getTodo serves GET /session/{sessionID}/todo.
func (s *Server) getTodo(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	todos, err := s.sessionService.GetTodos(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, todos)
}

// RevertSessionRequest represents the request body for reverting a session.
type RevertSessionRequest struct {
	MessageID string  `json:"messageID"`
	PartID    *string `json:"partID,omitempty"`
}

// revertSession serves POST /session/{sessionID}/revert.
func (s *Server) revertSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req RevertSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if err := s.sessionService.Revert(r.Context(), sessionID, req.MessageID, req.PartID); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeSuccess(w)
}

// unrevertSession serves POST /session/{sessionID}/unrevert.
func (s *Server) unrevertSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.sessionService.Unrevert(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeSuccess(w)
}

// SendCommandRequest represents the request body for sending a command.
type SendCommandRequest struct {
	Command string `json:"command"`
}

// sendCommand serves POST /session/{sessionID}/command.
func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req SendCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	result, err := s.sessionService.ExecuteCommand(r.Context(), sessionID, req.Command)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// RunShellRequest represents the request body for running a shell command.
type RunShellRequest struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

// runShell serves POST /session/{sessionID}/shell.
func (s *Server) runShell(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req RunShellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	result, err := s.sessionService.RunShell(r.Context(), sessionID, req.Command, req.Timeout)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// PermissionResponse represents the response body for permission.
type PermissionResponse struct {
	Granted bool `json:"granted"`
}

// respondPermission serves POST /session/{sessionID}/permissions/{permissionID}.
func (s *Server) respondPermission(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	permissionID := chi.URLParam(r, "permissionID")

	var req PermissionResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if err := s.sessionService.RespondPermission(r.Context(), sessionID, permissionID, req.Granted); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Convert granted bool to the wire response string
	response := "reject"
	if req.Granted {
		response = "once"
	}

	// Publish the reply
	event.Publish(event.Event{
		Type: event.PermissionReplied,
		Data: event.PermissionRepliedData{
			PermissionID: permissionID,
			SessionID:    sessionID,
			Response:     response,
		},
	})

	writeSuccess(w)
}

// generateID generates a new ULID.
func generateID() string {
	return ulid.Make().String()
}

// nowMillis returns current time in milliseconds.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
