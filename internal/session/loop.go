package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/agentcore/orchestrator/internal/contextmgr"
	"github.com/agentcore/orchestrator/internal/event"
	"github.com/agentcore/orchestrator/internal/provider"
	"github.com/agentcore/orchestrator/internal/tracing"
	"github.com/agentcore/orchestrator/pkg/types"
)

const (
	// MaxSteps is the fallback iteration cap used when an agent doesn't set
	// its own MaxSteps. DefaultAgent sets 25 explicitly per the iteration
	// cap default; this is the last-resort floor for agents that leave
	// MaxSteps unset entirely.
	MaxSteps = 50
	// MaxRetries is the maximum number of retries for API errors.
	MaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime is the maximum total time for retries.
	RetryMaxElapsedTime = 60 * time.Second
	// MaxContextTokens is the threshold for triggering context compaction.
	MaxContextTokens = 150000
	// HardLoopDeadline bounds the wall-clock duration of a single sampling
	// loop run; exceeding it terminates the run with cap_reached the same
	// way the iteration cap does.
	HardLoopDeadline = 15 * time.Minute
)

// newRetryBackoff creates a new exponential backoff with jitter for API retries.
// Uses cenkalti/backoff for better retry behavior including jitter to prevent
// thundering herd problems and context-aware cancellation.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5 // Add jitter
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// runLoop executes the agentic loop.
func (p *Processor) runLoop(
	ctx context.Context,
	sessionID string,
	state *sessionState,
	agent *Agent,
	callback ProcessCallback,
) error {
	// Load session
	var session types.Session
	if err := p.storage.Get(ctx, []string{"session", sessionID}, &session); err != nil {
		// Try to find session in any project
		session, err := p.findSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("session not found: %w", err)
		}
		_ = session
	}

	messages, err := p.loadMessages(ctx, sessionID)
	if err != nil {
		return err
	}

	if len(messages) == 0 {
		return fmt.Errorf("no messages in session")
	}

	lastMsg := messages[len(messages)-1]
	if lastMsg.Role != "user" {
		return fmt.Errorf("expected user message, got %s", lastMsg.Role)
	}

	providerID := "anthropic"
	modelID := "claude-sonnet-4-20250514"

	if lastMsg.Model != nil {
		providerID = lastMsg.Model.ProviderID
		modelID = lastMsg.Model.ModelID
	}

	prov, err := p.providerRegistry.Get(providerID)
	if err != nil {
		return fmt.Errorf("provider not found: %w", err)
	}

	model, err := p.providerRegistry.GetModel(providerID, modelID)
	if err != nil {
		return fmt.Errorf("model not found: %w", err)
	}

	// Create assistant message
	now := time.Now().UnixMilli()
	assistantMsg := &types.Message{
		ID:         generatePartID(),
		SessionID:  sessionID,
		Role:       "assistant",
		ProviderID: providerID,
		ModelID:    modelID,
		Time: types.MessageTime{
			Created: now,
		},
	}
	state.message = assistantMsg

	if err := p.storage.Put(ctx, []string{"message", sessionID, assistantMsg.ID}, assistantMsg); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	// Notify callback
	callback(assistantMsg, nil)

	// Publish event
	event.Publish(event.Event{
		Type: event.MessageCreated,
		Data: event.MessageCreatedData{Info: assistantMsg},
	})

	if agent == nil {
		agent = DefaultAgent()
	}

	maxSteps := agent.MaxSteps
	if maxSteps <= 0 {
		maxSteps = MaxSteps
	}

	step := 0
	retryBackoff := newRetryBackoff(ctx)

	for {
		// Check context cancellation. A deadline expiry (the hard loop
		// deadline, not cooperative Abort) is reported as cap_reached with
		// a warning event, matching the iteration-cap branch below.
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				assistantMsg.Error = types.NewMaxStepsError("Hard loop deadline reached")
				p.saveMessage(ctx, sessionID, assistantMsg)
				event.PublishSync(event.Event{
					Type: event.SessionError,
					Data: event.SessionErrorData{SessionID: sessionID, Error: assistantMsg.Error},
				})
				if p.metrics != nil {
					p.metrics.LoopIterations.WithLabelValues("deadline").Inc()
				}
				return ctx.Err()
			}
			assistantMsg.Error = types.NewAbortError("Processing aborted")
			p.saveMessage(ctx, sessionID, assistantMsg)
			return ctx.Err()
		default:
		}

		// Check step limit: terminal state is cap_reached, with a warning
		// event rather than a silent failure.
		if step >= maxSteps {
			assistantMsg.Error = types.NewMaxStepsError("Maximum steps reached")
			p.saveMessage(ctx, sessionID, assistantMsg)
			event.PublishSync(event.Event{
				Type: event.SessionError,
				Data: event.SessionErrorData{SessionID: sessionID, Error: assistantMsg.Error},
			})
			if p.metrics != nil {
				p.metrics.LoopIterations.WithLabelValues("max_steps").Inc()
			}
			return fmt.Errorf("max steps exceeded")
		}

		// Check for context overflow and compact if needed
		if p.shouldCompact(messages) {
			if err := p.compactMessages(ctx, sessionID, messages); err != nil {
				// Log but don't fail
			}
			// Reload messages
			messages, _ = p.loadMessages(ctx, sessionID)
		}

		// Trim old image attachments independently of token-based compaction.
		p.maybeCompactImages(ctx, messages)

		// Ask the Smart Selector for this iteration's model tier and
		// thinking budget; a retry attempt escalates tier/budget per its
		// contract. A mapped tier swaps in a different provider/model for
		// this iteration only; the session's stored provider/model is
		// otherwise left untouched.
		iterProv, iterModel := prov, model
		if p.smartSelector != nil {
			sel, selErr := p.smartSelector.Select(ctx, p.lastUserText(ctx, messages), "", state.retries)
			if selErr == nil {
				if tm, ok := p.tierModels[sel.ModelTier]; ok {
					if swappedProv, err := p.providerRegistry.Get(tm.ProviderID); err == nil {
						if swappedModel, err := p.providerRegistry.GetModel(tm.ProviderID, tm.ModelID); err == nil {
							iterProv, iterModel = swappedProv, swappedModel
						}
					}
				}
			}
		}

		// Build completion request
		req, err := p.buildCompletionRequest(ctx, sessionID, messages, assistantMsg, agent, iterModel)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}

		// Call LLM with streaming
		spanCtx, span := tracing.StartLLMSpan(ctx, iterProv.ID(), iterModel.ID)
		llmStart := time.Now()
		stream, err := iterProv.CreateCompletion(spanCtx, req)
		tracing.EndSpan(span, err)
		if p.metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			p.metrics.LLMRequestDuration.WithLabelValues(iterProv.ID(), iterModel.ID).Observe(time.Since(llmStart).Seconds())
			p.metrics.LLMRequestCounter.WithLabelValues(iterProv.ID(), iterModel.ID, status).Inc()
		}
		if err != nil {
			// Use exponential backoff with jitter for retries
			nextInterval := retryBackoff.NextBackOff()
			if nextInterval == backoff.Stop {
				assistantMsg.Error = types.NewAPIError(err.Error())
				p.saveMessage(ctx, sessionID, assistantMsg)
				return err
			}
			time.Sleep(nextInterval)
			continue
		}

		// Process stream
		finishReason, err := p.processStream(ctx, stream, state, callback)
		stream.Close()

		if err != nil {
			// Use exponential backoff with jitter for retries
			nextInterval := retryBackoff.NextBackOff()
			if nextInterval == backoff.Stop {
				assistantMsg.Error = types.NewAPIError(err.Error())
				p.saveMessage(ctx, sessionID, assistantMsg)
				return err
			}
			time.Sleep(nextInterval)
			continue
		}

		// Reset backoff on success
		retryBackoff.Reset()

		// Check finish reason
		switch finishReason {
		case "stop", "end_turn":
			// Normal completion
			finish := "stop"
			assistantMsg.Finish = &finish
			p.saveMessage(ctx, sessionID, assistantMsg)
			if p.metrics != nil {
				p.metrics.LoopIterations.WithLabelValues("completed").Inc()
			}
			return nil

		case "tool_use", "tool_calls":
			// Execute tools and continue loop
			if err := p.executeToolCalls(ctx, state, agent, callback); err != nil {
				// Tool execution errors don't stop the loop
				// The error is captured in the tool part
			}
			step++
			continue

		case "max_tokens", "length":
			// Output limit reached
			finish := "max_tokens"
			assistantMsg.Finish = &finish
			assistantMsg.Error = types.NewOutputLengthError("Output length limit reached")
			p.saveMessage(ctx, sessionID, assistantMsg)
			return nil

		case "error":
			// Use exponential backoff with jitter for retries
			nextInterval := retryBackoff.NextBackOff()
			if nextInterval == backoff.Stop {
				return fmt.Errorf("stream error: max retries exceeded")
			}
			time.Sleep(nextInterval)
			continue

		default:
			// Unknown finish reason, treat as stop
			assistantMsg.Finish = &finishReason
			p.saveMessage(ctx, sessionID, assistantMsg)
			return nil
		}
	}
}

// findSession finds a session by ID across all projects.
func (p *Processor) findSession(ctx context.Context, sessionID string) (*types.Session, error) {
	projects, err := p.storage.List(ctx, []string{"session"})
	if err != nil {
		return nil, err
	}

	for _, projectID := range projects {
		var session types.Session
		if err := p.storage.Get(ctx, []string{"session", projectID, sessionID}, &session); err == nil {
			return &session, nil
		}
	}

	return nil, fmt.Errorf("session not found: %s", sessionID)
}

// loadMessages loads all messages for a session.
func (p *Processor) loadMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	var messages []*types.Message
	err := p.storage.Scan(ctx, []string{"message", sessionID}, func(key string, data json.RawMessage) error {
		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		messages = append(messages, &msg)
		return nil
	})
	return messages, err
}

// saveMessage saves an assistant message.
func (p *Processor) saveMessage(ctx context.Context, sessionID string, msg *types.Message) error {
	now := time.Now().UnixMilli()
	msg.Time.Updated = &now

	if err := p.storage.Put(ctx, []string{"message", sessionID, msg.ID}, msg); err != nil {
		return err
	}

	event.Publish(event.Event{
		Type: event.MessageUpdated,
		Data: event.MessageUpdatedData{Info: msg},
	})

	return nil
}

// savePart saves a part for a message.
func (p *Processor) savePart(ctx context.Context, messageID string, part types.Part) error {
	return p.storage.Put(ctx, []string{"part", messageID, part.PartID()}, part)
}

// shouldCompact checks if messages should be compacted.
func (p *Processor) shouldCompact(messages []*types.Message) bool {
	totalTokens := 0
	for _, msg := range messages {
		if msg.Tokens != nil {
			totalTokens += msg.Tokens.Input + msg.Tokens.Output
		}
	}
	return totalTokens > MaxContextTokens
}

// lastUserText returns the concatenated text parts of the most recent
// user message, for feeding the Smart Selector's task classifier.
func (p *Processor) lastUserText(ctx context.Context, messages []*types.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role != "user" {
			continue
		}
		parts, err := p.loadParts(ctx, msg.ID)
		if err != nil {
			continue
		}
		var text strings.Builder
		for _, part := range parts {
			if tp, ok := part.(*types.TextPart); ok {
				text.WriteString(tp.Text)
			}
		}
		return text.String()
	}
	return ""
}

// maybeCompactImages trims the oldest image attachments once the image
// count exceeds contextmgr's configured maximum, independent of the
// token-threshold summarization compaction above: this keeps the request
// payload sendable even mid-conversation, without calling the LLM.
func (p *Processor) maybeCompactImages(ctx context.Context, messages []*types.Message) {
	if p.contextMgr == nil || len(messages) == 0 {
		return
	}

	entries := make([]contextmgr.MessageParts, len(messages))
	for i, msg := range messages {
		parts, err := p.loadParts(ctx, msg.ID)
		if err != nil {
			continue
		}
		entries[i] = contextmgr.MessageParts{MessageIndex: i, Parts: parts}
	}

	_, replacedIDs, did := p.contextMgr.MaybeCompact(entries)
	if !did {
		return
	}

	replacedSet := make(map[string]bool, len(replacedIDs))
	for _, id := range replacedIDs {
		replacedSet[id] = true
	}

	for _, entry := range entries {
		for _, part := range entry.Parts {
			if !replacedSet[part.PartID()] {
				continue
			}
			if err := p.savePart(ctx, part.PartMessageID(), part); err != nil {
				continue
			}
			event.PublishSync(event.Event{
				Type: event.MessagePartUpdated,
				Data: event.MessagePartUpdatedData{Part: part},
			})
		}
	}
}

// buildCompletionRequest builds an LLM completion request.
func (p *Processor) buildCompletionRequest(
	ctx context.Context,
	sessionID string,
	messages []*types.Message,
	currentMsg *types.Message,
	agent *Agent,
	model *types.Model,
) (*provider.CompletionRequest, error) {
	// Build system prompt
	session, _ := p.findSession(ctx, sessionID)
	systemPrompt := NewSystemPrompt(session, agent, currentMsg.ProviderID, currentMsg.ModelID)

	// Convert messages to Eino format
	var einoMessages []*schema.Message

	einoMessages = append(einoMessages, &schema.Message{
		Role:    schema.System,
		Content: systemPrompt.Build(),
	})

	for _, msg := range messages {
		// Skip errored messages without content
		if msg.Error != nil && !p.hasUsableContent(ctx, msg) {
			continue
		}

		parts, err := p.loadParts(ctx, msg.ID)
		if err != nil {
			continue
		}

		einoMsg := p.convertMessage(msg, parts)
		einoMessages = append(einoMessages, einoMsg)
	}

	tools, err := p.resolveTools(agent, model)
	if err != nil {
		return nil, err
	}

	// Build request
	maxTokens := model.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	req := &provider.CompletionRequest{
		Model:       model.ID,
		Messages:    einoMessages,
		Tools:       tools,
		MaxTokens:   maxTokens,
		Temperature: agent.Temperature,
		TopP:        agent.TopP,
	}

	return req, nil
}

// loadParts loads all parts for a message.
func (p *Processor) loadParts(ctx context.Context, messageID string) ([]types.Part, error) {
	var parts []types.Part
	err := p.storage.Scan(ctx, []string{"part", messageID}, func(key string, data json.RawMessage) error {
		part, err := types.UnmarshalPart(data)
		if err != nil {
			return err
		}
		parts = append(parts, part)
		return nil
	})
	return parts, err
}

// hasUsableContent checks if a message has content worth including.
func (p *Processor) hasUsableContent(ctx context.Context, msg *types.Message) bool {
	parts, err := p.loadParts(ctx, msg.ID)
	if err != nil {
		return false
	}
	return len(parts) > 0
}

// convertMessage converts a types.Message to schema.Message.
func (p *Processor) convertMessage(msg *types.Message, parts []types.Part) *schema.Message {
	role := schema.Assistant
	switch msg.Role {
	case "user":
		role = schema.User
	case "system":
		role = schema.System
	case "tool":
		role = schema.Tool
	}

	// Build content from parts
	var content string
	var toolCalls []schema.ToolCall
	var toolCallID string

	for _, part := range parts {
		switch pt := part.(type) {
		case *types.TextPart:
			content += pt.Text
		case *types.ToolPart:
			if msg.Role == "assistant" {
				inputJSON, _ := json.Marshal(pt.State.Input)
				toolCalls = append(toolCalls, schema.ToolCall{
					ID: pt.CallID,
					Function: schema.FunctionCall{
						Name:      pt.Tool,
						Arguments: string(inputJSON),
					},
				})
			} else {
				// Tool result
				toolCallID = pt.CallID
				if pt.State.Output != "" {
					content = pt.State.Output
				} else if pt.State.Error != "" {
					content = "Error: " + pt.State.Error
				}
			}
		}
	}

	einoMsg := &schema.Message{
		Role:      role,
		Content:   content,
		ToolCalls: toolCalls,
	}

	if toolCallID != "" {
		einoMsg.ToolCallID = toolCallID
	}

	return einoMsg
}

// resolveTools returns tools enabled for the agent.
func (p *Processor) resolveTools(agent *Agent, model *types.Model) ([]*schema.ToolInfo, error) {
	if !model.SupportsTools {
		return nil, nil
	}

	allTools := p.toolRegistry.List()

	var result []*schema.ToolInfo

	for _, t := range allTools {
		if !agent.ToolEnabled(t.ID()) {
			continue
		}

		params := parseJSONSchemaToParams(t.Parameters())
		result = append(result, &schema.ToolInfo{
			Name:        t.ID(),
			Desc:        t.Description(),
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}

	return result, nil
}

// parseJSONSchemaToParams converts JSON Schema to Eino ParameterInfo.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}

	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool)
	for _, r := range jsonSchema.Required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo)
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}

		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: requiredSet[name],
		}
	}

	return params
}

// generatePartID generates a new ULID for parts.
func generatePartID() string {
	return ulid.Make().String()
}

// ptr returns a pointer to the given value.
func ptr[T any](v T) *T {
	return &v
}

// processStream is defined in stream.go

// Stub for io.EOF check - the actual implementation is in stream.go
var _ = io.EOF
