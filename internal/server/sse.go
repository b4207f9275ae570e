// Package server provides HTTP handlers for the UI bridge.
//
// SSE Implementation Note:
// This file contains a custom Server-Sent Events (SSE) implementation rather
// than using a third-party package like r3labs/sse: it integrates directly
// with the internal event bus, needs session-scoped filtering the generic
// packages don't provide, and stays small enough that the extra dependency
// wouldn't earn its keep.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentcore/orchestrator/internal/event"
	"github.com/agentcore/orchestrator/internal/logging"
)

// WireEvent is one SSE frame; a struct keeps JSON field order stable:
// {"type": "...", "properties": {...}}.
type WireEvent struct {
	Type       event.EventType `json:"type"`
	Properties any             `json:"properties"`
}

// SSEHeartbeatInterval paces keepalive comments so idle proxies don't
// drop the connection.
const SSEHeartbeatInterval = 30 * time.Second

// sseSubscriberBuffer bounds each subscriber's queue; overflow drops
// the frame rather than stalling the bus.
const sseSubscriberBuffer = 10

// sseWriter adapts an http.ResponseWriter to the SSE wire format.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

// writeEvent emits one "event:/data:" frame and flushes it out.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}

	// ResponseController flushes through middleware wrappers; fall back
	// to the plain Flusher if it can't.
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

// writeHeartbeat emits a comment line, invisible to EventSource clients.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// streamEvents is the shared SSE pump: subscribe to the bus, forward
// frames that pass the filter, heartbeat on the interval, and stop when
// the client goes away. greet controls the initial server.connected
// frame.
func (srv *Server) streamEvents(w http.ResponseWriter, r *http.Request, label string, greet bool, filter func(event.Event) bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Push headers out before the first event arrives.
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	if greet {
		connected := WireEvent{Type: "server.connected", Properties: map[string]any{}}
		if err := sse.writeEvent("message", connected); err != nil {
			return
		}
	}

	events := make(chan event.Event, sseSubscriberBuffer)
	unsub := event.SubscribeAll(func(e event.Event) {
		if filter != nil && !filter(e) {
			return
		}
		select {
		case events <- e:
		default:
			logging.Warn().
				Str("eventType", string(e.Type)).
				Str("stream", label).
				Msg("SSE event dropped: channel full")
		}
	})
	defer unsub()

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			frame := WireEvent{Type: e.Type, Properties: e.Data}
			if err := sse.writeEvent("message", frame); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// allEvents serves the main unfiltered stream the web UI connects to.
func (srv *Server) allEvents(w http.ResponseWriter, r *http.Request) {
	srv.streamEvents(w, r, "all", true, nil)
}

// globalEvents serves an unfiltered stream without the greeting frame.
func (srv *Server) globalEvents(w http.ResponseWriter, r *http.Request) {
	srv.streamEvents(w, r, "global", false, nil)
}

// sessionEvents serves a stream filtered to one session's events.
func (srv *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "sessionID required")
		return
	}
	srv.streamEvents(w, r, "session:"+sessionID, false, func(e event.Event) bool {
		return srv.eventBelongsToSession(e, sessionID)
	})
}

// eventBelongsToSession routes typed event payloads to their session.
func (srv *Server) eventBelongsToSession(e event.Event, sessionID string) bool {
	switch data := e.Data.(type) {
	case event.MessageUpdatedData:
		return data.Info != nil && data.Info.SessionID == sessionID
	case event.MessageCreatedData:
		return data.Info != nil && data.Info.SessionID == sessionID
	case event.MessagePartUpdatedData:
		return data.Part != nil && data.Part.PartSessionID() == sessionID
	case event.SessionUpdatedData:
		return data.Info != nil && data.Info.ID == sessionID
	case event.SessionCreatedData:
		return data.Info != nil && data.Info.ID == sessionID
	case event.SessionDeletedData:
		return data.Info != nil && data.Info.ID == sessionID
	case event.SessionDiffData:
		return data.SessionID == sessionID
	case event.PermissionUpdatedData:
		return data.SessionID == sessionID
	case event.PermissionRepliedData:
		return data.SessionID == sessionID
	case event.FileEditedData:
		return true // file events are not scoped to a session
	case event.SessionIdleData:
		return data.SessionID == sessionID
	case event.SessionErrorData:
		return data.SessionID == sessionID
	}
	return false
}
