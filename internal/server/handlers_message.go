package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentcore/orchestrator/internal/event"
	"github.com/agentcore/orchestrator/internal/session"
	"github.com/agentcore/orchestrator/pkg/types"
)

// TextPartInput is one text part of an incoming message body.
type TextPartInput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendMessageRequest represents the request to send a message.
// Supports both the legacy "content" field and the "parts" array format.
type SendMessageRequest struct {
	Content string           `json:"content"`
	Parts   []TextPartInput  `json:"parts,omitempty"`
	Agent   string           `json:"agent,omitempty"`
	Model   *types.ModelRef  `json:"model,omitempty"`
	Tools   map[string]bool  `json:"tools,omitempty"`
	Files   []types.FilePart `json:"files,omitempty"`
}

// GetContent returns the message content from either Content or Parts.
func (r *SendMessageRequest) GetContent() string {
	if r.Content != "" {
		return r.Content
	}
	// Extract text from structured parts
	for _, part := range r.Parts {
		if part.Type == "text" && part.Text != "" {
			return part.Text
		}
	}
	return ""
}

// MessageResponse represents a message with its parts.
type MessageResponse struct {
	Info  *types.Message `json:"info"`
	Parts []types.Part   `json:"parts"`
}

// SessionMessagesResponse is the POST /session/{id}/message payload:
// the transcript as of scheduling, plus the running flag. The sampling
// loop's own output arrives over SSE, not in this response.
type SessionMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
	Running  bool              `json:"running"`
}

// sendMessage serves POST /session/{sessionID}/message.
// The sampling loop is scheduled on its own goroutine; the response goes
// out immediately with the current transcript and running=true. A second
// POST while the session is running is rejected with 409.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	content := req.GetContent()
	if content == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "content is required")
		return
	}

	sess, err := s.sessionService.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	if s.sessionService.IsProcessing(sessionID) {
		writeError(w, http.StatusConflict, ErrCodeConflict, "session is already processing a message")
		return
	}

	// Append the user message before scheduling, so the returned
	// transcript already carries it.
	userMsg := &types.Message{
		ID:        generateID(),
		SessionID: sessionID,
		Role:      "user",
		Agent:     req.Agent,
		Model:     req.Model,
		Tools:     req.Tools,
		Time: types.MessageTime{
			Created: nowMillis(),
		},
	}
	if err := s.sessionService.AddMessage(r.Context(), sessionID, userMsg); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	textPart := &types.TextPart{
		ID:   generateID(),
		Type: "text",
		Text: content,
	}
	if err := s.sessionService.SavePart(r.Context(), userMsg.ID, textPart); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	for _, file := range req.Files {
		file.ID = generateID()
		file.Type = "file"
		if err := s.sessionService.SavePart(r.Context(), userMsg.ID, &file); err != nil {
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
	}

	event.Publish(event.Event{
		Type: "message.created",
		Data: event.MessageCreatedData{Info: userMsg},
	})

	// Schedule the sampling loop; it runs detached from this request and
	// reports through the event bus. ProcessMessageAsync holds the
	// session's busy reservation until the loop ends.
	err = s.sessionService.ProcessMessageAsync(sess, content, req.Model, func(msg *types.Message, parts []types.Part) {
		event.Publish(event.Event{
			Type: "message.updated",
			Data: event.MessageUpdatedData{Info: msg},
		})
	})
	if err == session.ErrSessionBusy {
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SessionMessagesResponse{
		Messages: s.collectMessages(r.Context(), sessionID),
		Running:  true,
	})
}

// collectMessages assembles the session's transcript with parts attached,
// never nil.
func (s *Server) collectMessages(ctx context.Context, sessionID string) []MessageResponse {
	messages, err := s.sessionService.GetMessages(ctx, sessionID)
	if err != nil {
		return []MessageResponse{}
	}
	result := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		parts, _ := s.sessionService.GetParts(ctx, msg.ID)
		if parts == nil {
			parts = []types.Part{}
		}
		result = append(result, MessageResponse{Info: msg, Parts: parts})
	}
	return result
}

// getMessages serves GET /session/{sessionID}/message.
func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	writeJSON(w, http.StatusOK, s.collectMessages(r.Context(), sessionID))
}

// getMessage serves GET /session/{sessionID}/message/{messageID}.
func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	messageID := chi.URLParam(r, "messageID")

	msg, err := s.sessionService.GetMessage(r.Context(), sessionID, messageID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Message not found")
		return
	}

	parts, _ := s.sessionService.GetParts(r.Context(), messageID)
	if parts == nil {
		parts = []types.Part{}
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Info:  msg,
		Parts: parts,
	})
}
