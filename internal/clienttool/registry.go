// Package clienttool tracks tools that live on the other side of the
// HTTP API: a connected client registers them, the model calls them, and
// the result travels back through the client.
package clienttool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/agentcore/orchestrator/internal/event"
)

// ToolDefinition describes one client-registered tool.
type ToolDefinition struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ExecutionRequest is a call waiting for the owning client to run it.
type ExecutionRequest struct {
	Type      string         `json:"type"`
	RequestID string         `json:"requestID"`
	SessionID string         `json:"sessionID"`
	MessageID string         `json:"messageID"`
	CallID    string         `json:"callID"`
	Tool      string         `json:"tool"`
	Input     map[string]any `json:"input"`
}

// ToolResult is a successful execution outcome.
type ToolResult struct {
	Status   string         `json:"status"` // "success"
	Title    string         `json:"title"`
	Output   string         `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToolResponse is the raw answer a client posts back.
type ToolResponse struct {
	Status   string         `json:"status"`
	Title    string         `json:"title,omitempty"`
	Output   string         `json:"output,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// inflight is one call parked until its client answers or times out.
type inflight struct {
	request  ExecutionRequest
	clientID string
	result   chan ToolResponse
	timeout  *time.Timer
}

// Registry tracks client tools and in-flight executions.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]map[string]ToolDefinition // clientID -> toolID -> definition
	pending map[string]*inflight                 // requestID -> waiting call
}

// globalRegistry serves the package-level functions.
var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]map[string]ToolDefinition),
		pending: make(map[string]*inflight),
	}
}

// Register adds a client's tools on the global registry, returning the
// prefixed IDs they are reachable under.
func Register(clientID string, tools []ToolDefinition) []string {
	return globalRegistry.Register(clientID, tools)
}

func (r *Registry) Register(clientID string, tools []ToolDefinition) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tools[clientID] == nil {
		r.tools[clientID] = make(map[string]ToolDefinition)
	}

	registered := make([]string, 0, len(tools))
	for _, tool := range tools {
		toolID := prefixToolID(clientID, tool.ID)
		r.tools[clientID][toolID] = ToolDefinition{
			ID:          toolID,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		}
		registered = append(registered, toolID)
	}

	event.Publish(event.Event{
		Type: event.ClientToolRegistered,
		Data: event.ClientToolRegisteredData{ClientID: clientID, ToolIDs: registered},
	})
	return registered
}

// Unregister removes tools on the global registry; an empty toolIDs list
// removes everything the client registered.
func Unregister(clientID string, toolIDs []string) []string {
	return globalRegistry.Unregister(clientID, toolIDs)
}

func (r *Registry) Unregister(clientID string, toolIDs []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	clientTools := r.tools[clientID]
	if clientTools == nil {
		return nil
	}

	var unregistered []string
	if len(toolIDs) == 0 {
		for id := range clientTools {
			unregistered = append(unregistered, id)
		}
		delete(r.tools, clientID)
	} else {
		for _, id := range toolIDs {
			fullID := id
			if !IsClientTool(id) {
				fullID = prefixToolID(clientID, id)
			}
			if _, ok := clientTools[fullID]; ok {
				delete(clientTools, fullID)
				unregistered = append(unregistered, fullID)
			}
		}
	}

	if len(unregistered) > 0 {
		event.Publish(event.Event{
			Type: event.ClientToolUnregistered,
			Data: event.ClientToolUnregisteredData{ClientID: clientID, ToolIDs: unregistered},
		})
	}
	return unregistered
}

// GetTools lists one client's tools from the global registry.
func GetTools(clientID string) []ToolDefinition {
	return globalRegistry.GetTools(clientID)
}

func (r *Registry) GetTools(clientID string) []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clientTools := r.tools[clientID]
	if clientTools == nil {
		return nil
	}
	tools := make([]ToolDefinition, 0, len(clientTools))
	for _, t := range clientTools {
		tools = append(tools, t)
	}
	return tools
}

// GetAllTools lists every registered tool across clients.
func GetAllTools() map[string]ToolDefinition {
	return globalRegistry.GetAllTools()
}

func (r *Registry) GetAllTools() map[string]ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make(map[string]ToolDefinition)
	for _, clientTools := range r.tools {
		for id, tool := range clientTools {
			all[id] = tool
		}
	}
	return all
}

// Execute dispatches a call via the global registry.
func Execute(ctx context.Context, clientID string, req ExecutionRequest, timeout time.Duration) (*ToolResult, error) {
	return globalRegistry.Execute(ctx, clientID, req, timeout)
}

// Execute hands the request to the owning client over SSE and blocks
// until the client answers, the timeout fires, or ctx is cancelled.
func (r *Registry) Execute(ctx context.Context, clientID string, req ExecutionRequest, timeout time.Duration) (*ToolResult, error) {
	req.Type = "client-tool-request"

	resultCh := make(chan ToolResponse, 1)
	timer := time.NewTimer(timeout)

	r.mu.Lock()
	r.pending[req.RequestID] = &inflight{
		request:  req,
		clientID: clientID,
		result:   resultCh,
		timeout:  timer,
	}
	r.mu.Unlock()

	drop := func() {
		r.mu.Lock()
		delete(r.pending, req.RequestID)
		r.mu.Unlock()
	}

	event.Publish(event.Event{
		Type: event.ClientToolRequest,
		Data: event.ClientToolRequestData{ClientID: clientID, Request: req},
	})
	r.publishStatus(event.ClientToolExecuting, req, clientID, "", false)

	select {
	case resp := <-resultCh:
		timer.Stop()
		drop()

		if resp.Status == "error" {
			r.publishStatus(event.ClientToolFailed, req, clientID, resp.Error, false)
			return nil, errors.New(resp.Error)
		}

		r.publishStatus(event.ClientToolCompleted, req, clientID, "", true)
		return &ToolResult{
			Status:   resp.Status,
			Title:    resp.Title,
			Output:   resp.Output,
			Metadata: resp.Metadata,
		}, nil

	case <-timer.C:
		drop()
		r.publishStatus(event.ClientToolFailed, req, clientID, "timeout", false)
		return nil, errors.New("client tool execution timed out")

	case <-ctx.Done():
		timer.Stop()
		drop()
		return nil, ctx.Err()
	}
}

// publishStatus emits one lifecycle event for an execution.
func (r *Registry) publishStatus(t event.EventType, req ExecutionRequest, clientID, errText string, success bool) {
	event.Publish(event.Event{
		Type: t,
		Data: event.ClientToolStatusData{
			SessionID: req.SessionID,
			MessageID: req.MessageID,
			CallID:    req.CallID,
			Tool:      req.Tool,
			ClientID:  clientID,
			Error:     errText,
			Success:   success,
		},
	})
}

// SubmitResult delivers a client's answer on the global registry; false
// means no call is waiting under that request ID.
func SubmitResult(requestID string, resp ToolResponse) bool {
	return globalRegistry.SubmitResult(requestID, resp)
}

func (r *Registry) SubmitResult(requestID string, resp ToolResponse) bool {
	r.mu.RLock()
	pending := r.pending[requestID]
	r.mu.RUnlock()

	if pending == nil {
		return false
	}
	select {
	case pending.result <- resp:
		return true
	default:
		return false
	}
}

// Cleanup drops a disconnected client: cancels its in-flight calls and
// unregisters its tools. Global-registry variant.
func Cleanup(clientID string) {
	globalRegistry.Cleanup(clientID)
}

func (r *Registry) Cleanup(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for reqID, pending := range r.pending {
		if pending.clientID == clientID {
			pending.timeout.Stop()
			close(pending.result)
			delete(r.pending, reqID)
		}
	}

	tools := r.tools[clientID]
	if tools == nil {
		return
	}
	toolIDs := make([]string, 0, len(tools))
	for id := range tools {
		toolIDs = append(toolIDs, id)
	}
	delete(r.tools, clientID)

	if len(toolIDs) > 0 {
		event.Publish(event.Event{
			Type: event.ClientToolUnregistered,
			Data: event.ClientToolUnregisteredData{ClientID: clientID, ToolIDs: toolIDs},
		})
	}
}

// FindClientForTool reports which client owns a tool, or "".
func FindClientForTool(toolID string) string {
	return globalRegistry.FindClientForTool(toolID)
}

func (r *Registry) FindClientForTool(toolID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for clientID, tools := range r.tools {
		if _, ok := tools[toolID]; ok {
			return clientID
		}
	}
	return ""
}

// GetTool looks a tool definition up by its prefixed ID.
func GetTool(toolID string) (ToolDefinition, bool) {
	return globalRegistry.GetTool(toolID)
}

func (r *Registry) GetTool(toolID string) (ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, tools := range r.tools {
		if tool, ok := tools[toolID]; ok {
			return tool, true
		}
	}
	return ToolDefinition{}, false
}

// IsClientTool reports whether an ID carries the client prefix.
func IsClientTool(toolID string) bool {
	return strings.HasPrefix(toolID, "client_")
}

// prefixToolID namespaces a tool under its client.
func prefixToolID(clientID, toolID string) string {
	return "client_" + clientID + "_" + toolID
}

// Reset empties the global registry. Test-only.
func Reset() {
	globalRegistry.Reset()
}

func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pending := range r.pending {
		pending.timeout.Stop()
		close(pending.result)
	}
	r.tools = make(map[string]map[string]ToolDefinition)
	r.pending = make(map[string]*inflight)
}
