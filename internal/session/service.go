// Package session provides session management functionality.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentcore/orchestrator/internal/command"
	"github.com/agentcore/orchestrator/internal/contextmgr"
	"github.com/agentcore/orchestrator/internal/coordinator"
	"github.com/agentcore/orchestrator/internal/event"
	"github.com/agentcore/orchestrator/internal/hook"
	"github.com/agentcore/orchestrator/internal/metrics"
	"github.com/agentcore/orchestrator/internal/orchestrator"
	"github.com/agentcore/orchestrator/internal/permission"
	"github.com/agentcore/orchestrator/internal/provider"
	"github.com/agentcore/orchestrator/internal/rule"
	"github.com/agentcore/orchestrator/internal/selfimprove"
	"github.com/agentcore/orchestrator/internal/storage"
	"github.com/agentcore/orchestrator/internal/tool"
	"github.com/agentcore/orchestrator/pkg/types"
)

// Service manages session operations.
type Service struct {
	storage *storage.Storage

	// Active session processing
	mu       sync.RWMutex
	active   map[string]*ActiveSession
	abortChs map[string]chan struct{}

	// Processor for agentic loop
	processor *Processor

	// metrics is nil when the service was built with NewService (no
	// processor, nothing to instrument).
	metrics *metrics.Metrics

	// orchestrator is nil unless WithOrchestrator is called. When set, the
	// CEO/Orchestrator classifies and optionally decomposes each incoming
	// message before the primary sampling loop runs.
	orchestrator *orchestrator.Orchestrator

	// commands is nil unless WithCommands is called. Backs ExecuteCommand.
	commands *command.Executor

	// permChecker is nil unless the service was built with
	// NewServiceWithProcessor. Backs RespondPermission.
	permChecker *permission.Checker

	// selfImprove is nil unless WithSelfImprovement is called. When set,
	// ProcessMessage captures a post-task knowledge entry unconditionally
	// after every sampling-loop termination.
	selfImprove *selfimprove.Hooks
}

// WithCommands attaches the slash-command executor. Returns the service for
// chaining.
func (s *Service) WithCommands(e *command.Executor) *Service {
	s.commands = e
	return s
}

// WithOrchestrator attaches the planning orchestrator.
// When set, ProcessMessage asks it to classify each message's complexity
// and, for strategic work, to decompose and run specialist subtasks before
// the primary sampling loop sees the message, injecting their aggregated
// summaries as delegation context. Returns the service for chaining.
func (s *Service) WithOrchestrator(o *orchestrator.Orchestrator) *Service {
	s.orchestrator = o
	return s
}

// WithSelfImprovement attaches the self-improvement capture hooks.
// When set, ProcessMessage captures a post-task knowledge entry after every
// sampling-loop termination, regardless of outcome. Returns the service for
// chaining.
func (s *Service) WithSelfImprovement(h *selfimprove.Hooks) *Service {
	s.selfImprove = h
	return s
}

// ActiveSession tracks an active processing session.
type ActiveSession struct {
	SessionID string
	AbortCh   chan struct{}
	StartTime time.Time
}

// NewService creates a new session service.
func NewService(store *storage.Storage) *Service {
	return &Service{
		storage:  store,
		active:   make(map[string]*ActiveSession),
		abortChs: make(map[string]chan struct{}),
	}
}

// NewServiceWithProcessor creates a new session service with processor dependencies.
func NewServiceWithProcessor(
	store *storage.Storage,
	providerReg *provider.Registry,
	toolReg *tool.Registry,
	permChecker *permission.Checker,
	defaultProviderID string,
	defaultModelID string,
) *Service {
	m := metrics.New()
	s := &Service{
		storage:     store,
		active:      make(map[string]*ActiveSession),
		abortChs:    make(map[string]chan struct{}),
		metrics:     m,
		permChecker: permChecker,
	}
	s.processor = NewProcessor(providerReg, toolReg, store, permChecker, defaultProviderID, defaultModelID).
		WithHooks(hook.NewManager()).
		WithRules(rule.NewEngine(nil)).
		WithContextManager(contextmgr.New(contextmgr.DefaultConfig)).
		WithSchemaValidator(tool.NewSchemaValidator()).
		WithMetrics(m)
	return s
}

// Metrics returns the Prometheus instruments backing this service's
// processor, or nil if the service was built without one.
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// GetProcessor returns the session processor.
func (s *Service) GetProcessor() *Processor {
	return s.processor
}

// ErrSessionBusy is returned when a session already has a sampling loop
// in flight; the HTTP layer maps it to 409.
var ErrSessionBusy = errors.New("session is already processing a message")

// IsProcessing reports whether sessionID currently has an in-flight
// sampling loop — either reserved by ProcessMessageAsync (covering the
// window before the processor registers the run) or registered by the
// processor itself — so HTTP handlers can reject a concurrent request
// with 409 instead of silently queuing behind it.
func (s *Service) IsProcessing(sessionID string) bool {
	s.mu.RLock()
	_, reserved := s.active[sessionID]
	s.mu.RUnlock()
	if reserved {
		return true
	}
	if s.processor == nil {
		return false
	}
	return s.processor.IsProcessing(sessionID)
}

// ProcessMessageAsync reserves the session and schedules ProcessMessage on
// its own goroutine, returning as soon as the reservation holds. The
// sampling loop runs detached from the request context; progress and
// errors reach clients over the event bus, and the reservation is released
// when the run ends. A session with a run already in flight gets
// ErrSessionBusy instead of a second loop.
func (s *Service) ProcessMessageAsync(
	session *types.Session,
	content string,
	model *types.ModelRef,
	onUpdate func(msg *types.Message, parts []types.Part),
) error {
	s.mu.Lock()
	if _, busy := s.active[session.ID]; busy {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	if s.processor != nil && s.processor.IsProcessing(session.ID) {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	s.active[session.ID] = &ActiveSession{
		SessionID: session.ID,
		StartTime: time.Now(),
	}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.active, session.ID)
			s.mu.Unlock()
		}()

		// Detached from the HTTP request on purpose: the loop may run
		// for minutes after the response went out.
		ctx := context.Background()
		finalMsg, _, err := s.ProcessMessage(ctx, session, content, model, onUpdate)
		if err != nil {
			msgError := types.NewUnknownError(err.Error())
			if finalMsg != nil {
				finalMsg.Error = msgError
				event.Publish(event.Event{
					Type: event.MessageUpdated,
					Data: event.MessageUpdatedData{Info: finalMsg},
				})
			}
			event.Publish(event.Event{
				Type: event.SessionError,
				Data: event.SessionErrorData{
					SessionID: session.ID,
					Error:     msgError,
				},
			})
		}
	}()
	return nil
}

// Create creates a new session.
func (s *Service) Create(ctx context.Context, directory string, title string) (*types.Session, error) {
	now := time.Now().UnixMilli()
	projectID := hashDirectory(directory)

	// Use default title if not provided
	if title == "" {
		title = "New Session"
	}

	session := &types.Session{
		ID:        generateID(),
		ProjectID: projectID,
		Directory: directory,
		Title:     title,
		Version:   "1",
		Summary: types.SessionSummary{
			Additions: 0,
			Deletions: 0,
			Files:     0,
		},
		Time: types.SessionTime{
			Created: now,
			Updated: now,
		},
	}

	if err := s.storage.Put(ctx, []string{"session", projectID, session.ID}, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// Get retrieves a session by ID.
func (s *Service) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	// Try to find in any project
	projects, err := s.storage.List(ctx, []string{"session"})
	if err != nil {
		return nil, err
	}

	for _, projectID := range projects {
		var session types.Session
		if err := s.storage.Get(ctx, []string{"session", projectID, sessionID}, &session); err == nil {
			return &session, nil
		}
	}

	return nil, storage.ErrNotFound
}

// Update updates a session with the given updates.
func (s *Service) Update(ctx context.Context, sessionID string, updates map[string]any) (*types.Session, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Apply updates
	if title, ok := updates["title"].(string); ok {
		session.Title = title
	}

	session.Time.Updated = time.Now().UnixMilli()

	if err := s.storage.Put(ctx, []string{"session", session.ProjectID, session.ID}, session); err != nil {
		return nil, err
	}

	return session, nil
}

// Delete deletes a session.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := s.storage.Delete(ctx, []string{"session", session.ProjectID, sessionID}); err != nil {
		return err
	}

	messages, _ := s.GetMessages(ctx, sessionID)
	for _, msg := range messages {
		s.storage.Delete(ctx, []string{"message", sessionID, msg.ID})
	}

	return nil
}

// List lists sessions for a directory.
// If directory is empty, lists all sessions across all projects.
func (s *Service) List(ctx context.Context, directory string) ([]*types.Session, error) {
	var sessions []*types.Session

	if directory == "" {
		// List ALL sessions across all projects
		projects, err := s.storage.List(ctx, []string{"session"})
		if err != nil {
			return nil, err
		}

		for _, projectID := range projects {
			err := s.storage.Scan(ctx, []string{"session", projectID}, func(key string, data json.RawMessage) error {
				var session types.Session
				if err := json.Unmarshal(data, &session); err != nil {
					return err
				}
				sessions = append(sessions, &session)
				return nil
			})
			if err != nil {
				return nil, err
			}
		}

		return sessions, nil
	}

	// List sessions for a specific directory/project
	projectID := hashDirectory(directory)
	err := s.storage.Scan(ctx, []string{"session", projectID}, func(key string, data json.RawMessage) error {
		var session types.Session
		if err := json.Unmarshal(data, &session); err != nil {
			return err
		}
		sessions = append(sessions, &session)
		return nil
	})

	return sessions, err
}

// GetChildren returns child sessions (forks).
func (s *Service) GetChildren(ctx context.Context, sessionID string) ([]*types.Session, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	all, err := s.List(ctx, session.Directory)
	if err != nil {
		return nil, err
	}

	var children []*types.Session
	for _, sess := range all {
		if sess.ParentID != nil && *sess.ParentID == sessionID {
			children = append(children, sess)
		}
	}

	return children, nil
}

// Fork creates a fork of a session at a specific message.
func (s *Service) Fork(ctx context.Context, sessionID, messageID string) (*types.Session, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Create new session with fork title
	newSession, err := s.Create(ctx, session.Directory, session.Title+" (fork)")
	if err != nil {
		return nil, err
	}

	newSession.ParentID = &sessionID

	// Copy messages up to the fork point
	messages, err := s.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	for _, msg := range messages {
		// Copy message
		newMsg := *msg
		newMsg.SessionID = newSession.ID
		s.AddMessage(ctx, newSession.ID, &newMsg)

		if msg.ID == messageID {
			break
		}
	}

	if err := s.storage.Put(ctx, []string{"session", newSession.ProjectID, newSession.ID}, newSession); err != nil {
		return nil, err
	}

	return newSession, nil
}

// Abort aborts an active session.
func (s *Service) Abort(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.abortChs[sessionID]; ok {
		close(ch)
		delete(s.abortChs, sessionID)
	}

	return nil
}

// Share shares a session and returns a share URL.
func (s *Service) Share(ctx context.Context, sessionID string) (string, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}

	// Generate a share URL (placeholder)
	shareURL := fmt.Sprintf("https://share.orchestrator.local/%s", sessionID)

	session.Share = &types.SessionShare{URL: shareURL}
	session.Time.Updated = time.Now().UnixMilli()

	if err := s.storage.Put(ctx, []string{"session", session.ProjectID, session.ID}, session); err != nil {
		return "", err
	}

	return shareURL, nil
}

// Unshare removes sharing from a session.
func (s *Service) Unshare(ctx context.Context, sessionID string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	session.Share = nil
	session.Time.Updated = time.Now().UnixMilli()

	return s.storage.Put(ctx, []string{"session", session.ProjectID, session.ID}, session)
}

// Summarize generates a summary of the session.
func (s *Service) Summarize(ctx context.Context, sessionID string) (*types.SessionSummary, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &session.Summary, nil
}

// GetDiffs returns diffs for a session.
func (s *Service) GetDiffs(ctx context.Context, sessionID string) ([]types.FileDiff, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return session.Summary.Diffs, nil
}

// GetTodos returns todos for a session, as written by the TodoWrite tool.
func (s *Service) GetTodos(ctx context.Context, sessionID string) ([]map[string]any, error) {
	todos, err := GetTodos(ctx, s.storage, sessionID)
	if err != nil {
		return nil, err
	}
	result := make([]map[string]any, len(todos))
	for i, t := range todos {
		result[i] = map[string]any{
			"id":       t.ID,
			"content":  t.Content,
			"status":   t.Status,
			"priority": t.Priority,
		}
	}
	return result, nil
}

// Revert reverts a session to a specific message.
func (s *Service) Revert(ctx context.Context, sessionID, messageID string, partID *string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	session.Revert = &types.SessionRevert{
		MessageID: messageID,
		PartID:    partID,
	}
	session.Time.Updated = time.Now().UnixMilli()

	return s.storage.Put(ctx, []string{"session", session.ProjectID, session.ID}, session)
}

// Unrevert removes the revert state from a session.
func (s *Service) Unrevert(ctx context.Context, sessionID string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	session.Revert = nil
	session.Time.Updated = time.Now().UnixMilli()

	return s.storage.Put(ctx, []string{"session", session.ProjectID, session.ID}, session)
}

// ExecuteCommand expands a slash command template and runs the resulting
// prompt through the session's sampling loop, the same way a typed user
// message would be processed.
func (s *Service) ExecuteCommand(ctx context.Context, sessionID, cmdAndArgs string) (map[string]any, error) {
	if s.commands == nil {
		return nil, fmt.Errorf("no command executor configured")
	}

	name, args, _ := strings.Cut(strings.TrimSpace(cmdAndArgs), " ")
	result, err := s.commands.Execute(ctx, name, args)
	if err != nil {
		return nil, err
	}

	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var model *types.ModelRef
	if result.Model != "" {
		providerID, modelID, ok := strings.Cut(result.Model, "/")
		if ok {
			model = &types.ModelRef{ProviderID: providerID, ModelID: modelID}
		}
	}

	msg, _, err := s.ProcessMessage(ctx, session, result.Prompt, model, nil)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"commandName": result.CommandName,
		"agent":       result.Agent,
		"model":       result.Model,
		"subtask":     result.Subtask,
		"messageID":   msg.ID,
	}, nil
}

// RunShell runs a shell command directly in the session's working
// directory, outside of the sampling loop, the same way the bash tool
// executes commands on the agent's behalf.
func (s *Service) RunShell(ctx context.Context, sessionID, cmd string, timeout int) (map[string]any, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	bashTool := tool.NewBashTool(session.Directory, tool.WithPermissionChecker(s.permChecker))
	input, err := json.Marshal(tool.BashInput{
		Command:     cmd,
		Timeout:     timeout,
		Description: "session shell command",
	})
	if err != nil {
		return nil, err
	}

	result, err := bashTool.Execute(ctx, input, &tool.Context{SessionID: sessionID, WorkDir: session.Directory})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"output":   result.Output,
		"title":    result.Title,
		"metadata": result.Metadata,
	}, nil
}

// RespondPermission delivers a user's grant/deny decision to the pending
// permission request, unblocking whichever tool call is waiting on it.
func (s *Service) RespondPermission(ctx context.Context, sessionID, permissionID string, granted bool) error {
	if s.permChecker == nil {
		return fmt.Errorf("no permission checker configured")
	}

	action := "reject"
	if granted {
		action = "once"
	}
	s.permChecker.Respond(permissionID, action)
	return nil
}

// AddMessage adds a message to a session.
func (s *Service) AddMessage(ctx context.Context, sessionID string, msg *types.Message) error {
	return s.storage.Put(ctx, []string{"message", sessionID, msg.ID}, msg)
}

// GetMessage returns a single message by session and message ID.
func (s *Service) GetMessage(ctx context.Context, sessionID, messageID string) (*types.Message, error) {
	var msg types.Message
	if err := s.storage.Get(ctx, []string{"message", sessionID, messageID}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SavePart saves a part for a message.
func (s *Service) SavePart(ctx context.Context, messageID string, part types.Part) error {
	return s.storage.Put(ctx, []string{"part", messageID, part.PartID()}, part)
}

// GetMessages returns all messages for a session.
func (s *Service) GetMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	var messages []*types.Message
	err := s.storage.Scan(ctx, []string{"message", sessionID}, func(key string, data json.RawMessage) error {
		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		messages = append(messages, &msg)
		return nil
	})
	return messages, err
}

// GetParts returns all parts for a message.
func (s *Service) GetParts(ctx context.Context, messageID string) ([]types.Part, error) {
	var parts []types.Part
	err := s.storage.Scan(ctx, []string{"part", messageID}, func(key string, data json.RawMessage) error {
		part, err := types.UnmarshalPart(data)
		if err != nil {
			return err
		}
		parts = append(parts, part)
		return nil
	})
	return parts, err
}

// ProcessMessage processes a user message and generates an assistant response.
// This is the main agentic loop.
func (s *Service) ProcessMessage(
	ctx context.Context,
	session *types.Session,
	content string,
	model *types.ModelRef,
	onUpdate func(msg *types.Message, parts []types.Part),
) (*types.Message, []types.Part, error) {
	// CEO/Orchestrator pass: classify the task and, for strategic work,
	// decompose it across specialist subagents before the primary sampling
	// loop ever sees the message. Their aggregated summaries are appended
	// to the user's text so the primary loop's own LLM call can synthesize
	// a final answer grounded in what delegation already found, rather
	// than rediscovering it. Planning/delegation failures never block the
	// message itself from being processed directly.
	turnContent := content
	if s.orchestrator != nil {
		if plan, err := s.orchestrator.Plan(ctx, session.ProjectID, content, s.recentProjects(ctx)); err == nil && plan.Complex {
			if results, err := s.orchestrator.Execute(ctx, session.ID, plan); err == nil {
				if appendix := formatDelegationAppendix(plan, results); appendix != "" {
					turnContent = content + "\n\n" + appendix
				}
			}
		}
	}

	// First, save the user message
	userMsg := &types.Message{
		ID:        generateID(),
		SessionID: session.ID,
		Role:      "user",
		Time: types.MessageTime{
			Created: time.Now().UnixMilli(),
		},
	}
	if model != nil {
		userMsg.Model = model
	}

	if err := s.AddMessage(ctx, session.ID, userMsg); err != nil {
		return nil, nil, err
	}

	// Save user's text content as a part. turnContent carries the original
	// content plus any delegation appendix; the transcript sees only this
	// one user-role message, keeping message pairing simple.
	userPart := &types.TextPart{
		ID:   generateID(),
		Type: "text",
		Text: turnContent,
	}
	if err := s.storage.Put(ctx, []string{"part", userMsg.ID, userPart.ID}, userPart); err != nil {
		return nil, nil, err
	}

	// Use processor if available
	if s.processor != nil {
		var finalMsg *types.Message
		var finalParts []types.Part

		err := s.processor.Process(ctx, session.ID, DefaultAgent(), func(msg *types.Message, parts []types.Part) {
			finalMsg = msg
			finalParts = parts
			if onUpdate != nil {
				onUpdate(msg, parts)
			}
		})

		// Self-improvement post-task capture fires
		// unconditionally after every sampling-loop termination, regardless
		// of outcome, so it runs before either return below.
		s.captureOutcome(ctx, session, content, userMsg, finalMsg, err)

		if err != nil {
			return finalMsg, finalParts, err
		}

		return finalMsg, finalParts, nil
	}

	// Fallback: Create placeholder assistant message if no processor
	assistantMsg := &types.Message{
		ID:        generateID(),
		SessionID: session.ID,
		Role:      "assistant",
		Time: types.MessageTime{
			Created: time.Now().UnixMilli(),
		},
	}

	if model != nil {
		assistantMsg.ProviderID = model.ProviderID
		assistantMsg.ModelID = model.ModelID
	}

	parts := []types.Part{
		&types.TextPart{
			ID:   generateID(),
			Type: "text",
			Text: "Processor not initialized. Please configure providers.",
		},
	}

	if err := s.AddMessage(ctx, session.ID, assistantMsg); err != nil {
		return nil, nil, err
	}

	// Notify of update
	if onUpdate != nil {
		onUpdate(assistantMsg, parts)
	}

	return assistantMsg, parts, nil
}

// recentProjects aggregates every stored session into per-project
// last-active timestamps, feeding the orchestrator's pre-task knowledge
// retrieval. Retrieval itself truncates to the 10 most recent, so this
// returns the full aggregation unordered.
func (s *Service) recentProjects(ctx context.Context) []selfimprove.RecentProject {
	sessions, err := s.List(ctx, "")
	if err != nil {
		return nil
	}

	lastActive := make(map[string]int64)
	for _, sess := range sessions {
		if sess.ProjectID == "" {
			continue
		}
		at := sess.Time.Updated
		if at == 0 {
			at = sess.Time.Created
		}
		if at > lastActive[sess.ProjectID] {
			lastActive[sess.ProjectID] = at
		}
	}

	out := make([]selfimprove.RecentProject, 0, len(lastActive))
	for name, at := range lastActive {
		out = append(out, selfimprove.RecentProject{Name: name, LastActive: at})
	}
	return out
}

// captureOutcome runs the Self-Improvement Hooks' unconditional post-task
// capture after a sampling-loop termination. A nil
// selfImprove is a no-op: capture is only wired when the caller attaches it
// via WithSelfImprovement.
func (s *Service) captureOutcome(ctx context.Context, session *types.Session, taskText string, userMsg, finalMsg *types.Message, runErr error) {
	if s.selfImprove == nil {
		return
	}

	reason := selfimprove.TerminationCompleted
	errorClass := ""
	var toolsUsed []string
	iterations := 0

	if finalMsg != nil {
		if finalMsg.Error != nil {
			errorClass = finalMsg.Error.Name
			switch finalMsg.Error.Name {
			case "AbortError":
				reason = selfimprove.TerminationCancelled
			case "MaxStepsError":
				reason = selfimprove.TerminationCapReached
			default:
				reason = selfimprove.TerminationError
			}
		}

		var parts []types.Part
		if finalParts, partsErr := s.GetParts(ctx, finalMsg.ID); partsErr == nil {
			parts = finalParts
		}
		seen := make(map[string]bool, len(parts))
		for _, p := range parts {
			switch tp := p.(type) {
			case *types.ToolPart:
				if !seen[tp.Tool] {
					seen[tp.Tool] = true
					toolsUsed = append(toolsUsed, tp.Tool)
				}
			case *types.StepStartPart:
				iterations++
			}
		}
	} else if runErr != nil {
		reason = selfimprove.TerminationError
		errorClass = runErr.Error()
	}

	durationMillis := int64(0)
	if finalMsg != nil && userMsg != nil {
		durationMillis = finalMsg.Time.Created - userMsg.Time.Created
		if durationMillis < 0 {
			durationMillis = 0
		}
	}

	s.selfImprove.Capture(ctx, selfimprove.TaskOutcome{
		Project:        session.ProjectID,
		Title:          taskText,
		ToolsUsed:      toolsUsed,
		DurationMillis: durationMillis,
		Iterations:     iterations,
		Reason:         reason,
		ErrorClass:     errorClass,
	})
}

// formatDelegationAppendix renders the CEO/Orchestrator's planning document
// and each specialist's aggregated summary as a block to append to the
// user's message, or "" if the plan produced nothing usable.
func formatDelegationAppendix(plan *orchestrator.Plan, results []coordinator.SubagentResult) string {
	if plan == nil || len(results) == 0 {
		return ""
	}
	var b strings.Builder
	if plan.Document != "" {
		b.WriteString(plan.Document)
		b.WriteString("\n")
	}
	b.WriteString("## Delegation results\n\n")
	for i, res := range results {
		role := ""
		if i < len(plan.Subtasks) {
			role = plan.Subtasks[i].Role
		}
		status := "ok"
		if !res.Success {
			status = "failed: " + res.Error
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", role, status, res.Summary)
	}
	return b.String()
}

// generateID generates a new ULID.
func generateID() string {
	return ulid.Make().String()
}

// hashDirectory creates a project ID from a directory path.
func hashDirectory(directory string) string {
	h := sha256.New()
	h.Write([]byte(directory))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
