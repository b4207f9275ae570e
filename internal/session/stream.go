package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/agentcore/orchestrator/internal/event"
	"github.com/agentcore/orchestrator/internal/provider"
	"github.com/agentcore/orchestrator/pkg/types"
)

// processStream drains one model response stream into message parts:
// text and reasoning deltas, tool-call assembly, and token accounting.
// It returns the normalized finish reason.
func (p *Processor) processStream(
	ctx context.Context,
	stream *provider.CompletionStream,
	state *sessionState,
	callback ProcessCallback,
) (string, error) {
	var currentTextPart *types.TextPart
	var currentReasoningPart *types.ReasoningPart
	var finishReason string
	var accumulatedContent string
	currentToolParts := make(map[string]*types.ToolPart)
	accumulatedToolInputs := make(map[string]string)

	// step-start brackets the inference in the transcript.
	stepStartPart := &types.StepStartPart{
		ID:        generatePartID(),
		SessionID: state.message.SessionID,
		MessageID: state.message.ID,
		Type:      "step-start",
	}
	state.parts = append(state.parts, stepStartPart)
	p.savePart(ctx, state.message.ID, stepStartPart)
	event.Publish(event.Event{
		Type: event.MessagePartUpdated,
		Data: event.MessagePartUpdatedData{Part: stepStartPart},
	})
	callback(state.message, state.parts)

	chunkCount := 0
	var lastEventTime time.Time // throttling clock for delta events

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("stream cancelled")
			return "error", ctx.Err()
		default:
		}

		msg, err := stream.Recv()
		if err == io.EOF {
			log.Debug().Int("chunks", chunkCount).Msg("stream drained")
			break
		}
		if err != nil {
			log.Debug().Err(err).Msg("stream receive failed")
			return "error", err
		}
		chunkCount++

		finishReason = p.processMessageChunk(ctx, msg, state, callback,
			&currentTextPart, &currentReasoningPart, currentToolParts,
			&accumulatedContent, accumulatedToolInputs, &lastEventTime)
		if finishReason != "" {
			break
		}
	}

	// Stamp end times on whatever parts are still open.
	if currentTextPart != nil {
		now := time.Now().UnixMilli()
		currentTextPart.Time.End = &now
		p.savePart(ctx, state.message.ID, currentTextPart)
	}
	if currentReasoningPart != nil {
		now := time.Now().UnixMilli()
		currentReasoningPart.Time.End = &now
		p.savePart(ctx, state.message.ID, currentReasoningPart)
	}

	// Tool parts move to running; the dispatch loop takes them from here.
	for key, toolPart := range currentToolParts {
		if accInput, ok := accumulatedToolInputs[key]; ok && toolPart.State.Input == nil {
			var input map[string]any
			if err := json.Unmarshal([]byte(accInput), &input); err == nil {
				toolPart.State.Input = input
			}
		}
		toolPart.State.Status = "running"
		p.savePart(ctx, state.message.ID, toolPart)
	}

	if finishReason == "" {
		if len(currentToolParts) > 0 {
			finishReason = "tool-calls"
		} else {
			finishReason = "stop"
		}
	}
	// Providers disagree on the spelling ("tool-calls" vs "tool_use").
	if finishReason == "tool_use" {
		finishReason = "tool-calls"
	}

	// step-finish closes the bracket with cost and usage.
	stepFinishPart := &types.StepFinishPart{
		ID:        generatePartID(),
		SessionID: state.message.SessionID,
		MessageID: state.message.ID,
		Type:      "step-finish",
		Reason:    finishReason,
		Cost:      state.message.Cost,
		Tokens:    state.message.Tokens,
	}
	state.parts = append(state.parts, stepFinishPart)
	p.savePart(ctx, state.message.ID, stepFinishPart)
	event.Publish(event.Event{
		Type: event.MessagePartUpdated,
		Data: event.MessagePartUpdatedData{Part: stepFinishPart},
	})
	callback(state.message, state.parts)

	log.Debug().
		Str("reason", finishReason).
		Int("parts", len(state.parts)).
		Msg("stream finished")

	return finishReason, nil
}

// MinEventInterval spaces streaming delta events far enough apart that
// the web client renders them individually instead of batching them.
const MinEventInterval = 20 * time.Millisecond

// throttledPublish publishes, sleeping first if the previous delta went
// out less than MinEventInterval ago.
func throttledPublish(e event.Event, lastEventTime *time.Time) {
	if lastEventTime != nil && !lastEventTime.IsZero() {
		if elapsed := time.Since(*lastEventTime); elapsed < MinEventInterval {
			time.Sleep(MinEventInterval - elapsed)
		}
	}
	event.Publish(e)
	if lastEventTime != nil {
		*lastEventTime = time.Now()
	}
}

// processMessageChunk folds one stream chunk into the open parts and
// returns the finish reason when the chunk carries one.
func (p *Processor) processMessageChunk(
	ctx context.Context,
	msg *schema.Message,
	state *sessionState,
	callback ProcessCallback,
	currentTextPart **types.TextPart,
	currentReasoningPart **types.ReasoningPart,
	currentToolParts map[string]*types.ToolPart,
	accumulatedContent *string,
	accumulatedToolInputs map[string]string,
	lastEventTime *time.Time,
) string {
	var finishReason string

	if msg.Content != "" {
		if *currentTextPart == nil {
			now := time.Now().UnixMilli()
			*currentTextPart = &types.TextPart{
				ID:        generatePartID(),
				SessionID: state.message.SessionID,
				MessageID: state.message.ID,
				Type:      "text",
				Text:      msg.Content,
				Time:      types.PartTime{Start: &now},
			}
			state.parts = append(state.parts, *currentTextPart)
			*accumulatedContent = msg.Content

			// The first chunk is its own delta.
			throttledPublish(event.Event{
				Type: event.MessagePartUpdated,
				Data: event.MessagePartUpdatedData{
					Part:  *currentTextPart,
					Delta: msg.Content,
				},
			}, lastEventTime)
			callback(state.message, state.parts)
		} else {
			// Some providers stream accumulated text, others stream
			// pure deltas; detect which by prefix.
			var delta string
			if strings.HasPrefix(msg.Content, *accumulatedContent) {
				delta = msg.Content[len(*accumulatedContent):]
				(*currentTextPart).Text = msg.Content
				*accumulatedContent = msg.Content
			} else {
				delta = msg.Content
				*accumulatedContent += msg.Content
				(*currentTextPart).Text = *accumulatedContent
			}

			throttledPublish(event.Event{
				Type: event.MessagePartUpdated,
				Data: event.MessagePartUpdatedData{
					Part:  *currentTextPart,
					Delta: delta,
				},
			}, lastEventTime)
			callback(state.message, state.parts)
		}
	}

	if msg.ReasoningContent != "" {
		if *currentReasoningPart == nil {
			now := time.Now().UnixMilli()
			*currentReasoningPart = &types.ReasoningPart{
				ID:        generatePartID(),
				SessionID: state.message.SessionID,
				MessageID: state.message.ID,
				Type:      "reasoning",
				Text:      msg.ReasoningContent,
				Time:      types.PartTime{Start: &now},
			}
			state.parts = append(state.parts, *currentReasoningPart)
		} else {
			(*currentReasoningPart).Text = msg.ReasoningContent
		}
		callback(state.message, state.parts)
	}

	// Tool calls arrive in two shapes: a start chunk carrying Index, ID,
	// and Name, then argument deltas carrying only Index and a JSON
	// fragment. Index keys the assembly; ID is the fallback.
	for _, tc := range msg.ToolCalls {
		var lookupKey string
		switch {
		case tc.Index != nil:
			lookupKey = fmt.Sprintf("idx:%d", *tc.Index)
		case tc.ID != "":
			lookupKey = tc.ID
		default:
			log.Debug().Msg("tool call chunk without index or ID, skipping")
			continue
		}

		toolPart, exists := currentToolParts[lookupKey]

		if !exists && tc.ID != "" && tc.Function.Name != "" {
			now := time.Now().UnixMilli()
			toolPart = &types.ToolPart{
				ID:        generatePartID(),
				SessionID: state.message.SessionID,
				MessageID: state.message.ID,
				Type:      "tool",
				CallID:    tc.ID,
				Tool:      tc.Function.Name,
				State: types.ToolPartState{
					Status: "pending",
					Input:  make(map[string]any),
					Time:   types.PartTime{Start: &now},
				},
			}
			log.Debug().Str("tool", toolPart.Tool).Str("callID", toolPart.CallID).Msg("tool call opened")
			currentToolParts[lookupKey] = toolPart
			accumulatedToolInputs[lookupKey] = ""
			state.parts = append(state.parts, toolPart)
			callback(state.message, state.parts)
		}

		if tc.Function.Arguments != "" && toolPart != nil {
			accumulatedToolInputs[lookupKey] += tc.Function.Arguments

			// Reparse on each fragment; it only sticks once the JSON
			// becomes complete.
			var input map[string]any
			if err := json.Unmarshal([]byte(accumulatedToolInputs[lookupKey]), &input); err == nil {
				toolPart.State.Input = input
			}

			// Async publish, so the SSE select loop keeps draining.
			event.Publish(event.Event{
				Type: event.MessagePartUpdated,
				Data: event.MessagePartUpdatedData{Part: toolPart},
			})
			callback(state.message, state.parts)
		}
	}

	if msg.ResponseMeta != nil {
		if state.message.Tokens == nil {
			state.message.Tokens = &types.TokenUsage{}
		}
		if msg.ResponseMeta.Usage != nil {
			state.message.Tokens.Input = msg.ResponseMeta.Usage.PromptTokens
			state.message.Tokens.Output = msg.ResponseMeta.Usage.CompletionTokens
		}
		if msg.ResponseMeta.FinishReason != "" {
			finishReason = msg.ResponseMeta.FinishReason
		}
	}

	return finishReason
}
