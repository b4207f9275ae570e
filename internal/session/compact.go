package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/agentcore/orchestrator/internal/event"
	"github.com/agentcore/orchestrator/internal/provider"
	"github.com/agentcore/orchestrator/pkg/types"
)

// CompactionPart is a synthetic part attached to a user message that requests
// an explicit (user-triggered) compaction, as opposed to the automatic
// token-threshold compaction in compactMessages.
type CompactionPart struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // always "compaction"
	Summary string `json:"summary,omitempty"`
	Count   int    `json:"count,omitempty"`
	Auto    bool   `json:"auto,omitempty"`
}

func (p *CompactionPart) PartType() string { return "compaction" }
func (p *CompactionPart) PartID() string   { return p.ID }

// CompactionConfig tunes when and how conversations summarize down.
type CompactionConfig struct {
	// MinMessagesToKeep is how many recent messages always survive.
	MinMessagesToKeep int

	// SummaryMaxTokens bounds the summary completion.
	SummaryMaxTokens int

	// ContextThreshold is the context-usage fraction that triggers
	// automatic compaction.
	ContextThreshold float64
}

// DefaultCompactionConfig is the shipped tuning.
var DefaultCompactionConfig = CompactionConfig{
	MinMessagesToKeep: 4,
	SummaryMaxTokens:  2000,
	ContextThreshold:  0.75,
}

// compactionSystemPrompt steers the summarization call.
const compactionSystemPrompt = `You are a conversation summarizer. Create a concise summary of the conversation that preserves key context for continuing the discussion.

Focus on:
1. What was accomplished
2. Current work in progress
3. Files involved
4. Next steps
5. Any key user requests or constraints

Be concise but detailed enough that work can continue seamlessly.`

// markCompacting stamps the session as mid-compaction and returns the
// func that clears the stamp.
func (p *Processor) markCompacting(ctx context.Context, session *types.Session) func() {
	now := time.Now().UnixMilli()
	session.Time.Compacting = &now
	p.storage.Put(ctx, []string{"session", session.ProjectID, session.ID}, session)

	return func() {
		session.Time.Compacting = nil
		p.storage.Put(ctx, []string{"session", session.ProjectID, session.ID}, session)
	}
}

// summarize runs one summarization completion and streams the text to
// onDelta (which may be nil).
func (p *Processor) summarize(ctx context.Context, prov provider.Provider, modelID, summaryPrompt string, onDelta func(delta string)) (string, error) {
	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model: modelID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: compactionSystemPrompt},
			{Role: schema.User, Content: summaryPrompt},
		},
		MaxTokens: DefaultCompactionConfig.SummaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var summary strings.Builder
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		summary.WriteString(msg.Content)
		if onDelta != nil {
			onDelta(msg.Content)
		}
	}
	return summary.String(), nil
}

// compactMessages is the automatic path: summarize everything but the
// newest MinMessagesToKeep messages and record the summary on the
// session, where the prompt builder injects it.
func (p *Processor) compactMessages(
	ctx context.Context,
	sessionID string,
	messages []*types.Message,
) error {
	if len(messages) <= DefaultCompactionConfig.MinMessagesToKeep {
		return nil
	}

	session, err := p.findSession(ctx, sessionID)
	if err != nil {
		return err
	}
	defer p.markCompacting(ctx, session)()

	compactEnd := len(messages) - DefaultCompactionConfig.MinMessagesToKeep
	toCompact := messages[:compactEnd]

	model, err := p.providerRegistry.DefaultModel()
	if err != nil {
		return err
	}
	prov, err := p.providerRegistry.Get(model.ProviderID)
	if err != nil {
		return err
	}

	summary, err := p.summarize(ctx, prov, model.ID, buildSummaryPrompt(ctx, p, toCompact), nil)
	if err != nil {
		return err
	}

	for _, msg := range toCompact {
		p.storage.Put(ctx, []string{"message", sessionID, msg.ID}, msg)
	}

	// The summary rides on the session under a reserved diff slot; the
	// prompt builder folds it into future requests.
	session.Summary.Diffs = append(session.Summary.Diffs, types.FileDiff{
		File:  "__compaction__",
		After: summary,
	})
	p.storage.Put(ctx, []string{"session", session.ProjectID, session.ID}, session)

	return nil
}

// buildSummaryPrompt flattens messages (text plus truncated tool
// outputs) into the summarizer's input.
func buildSummaryPrompt(ctx context.Context, p *Processor, messages []*types.Message) string {
	var prompt strings.Builder

	prompt.WriteString("Please summarize the following conversation, focusing on:\n")
	prompt.WriteString("1. Key decisions and outcomes\n")
	prompt.WriteString("2. Files that were modified\n")
	prompt.WriteString("3. Important context for continuing the work\n\n")
	prompt.WriteString("---\n\n")

	for _, msg := range messages {
		if msg.Role == "user" {
			prompt.WriteString("USER:\n")
		} else {
			prompt.WriteString("ASSISTANT:\n")
		}

		parts, err := p.loadParts(ctx, msg.ID)
		if err != nil {
			continue
		}
		for _, part := range parts {
			switch pt := part.(type) {
			case *types.TextPart:
				prompt.WriteString(pt.Text)
				prompt.WriteString("\n")
			case *types.ToolPart:
				fmt.Fprintf(&prompt, "[Tool: %s]\n", pt.Tool)
				if pt.State.Output != "" {
					output := pt.State.Output
					if len(output) > 500 {
						output = output[:500] + "..."
					}
					prompt.WriteString(output)
					prompt.WriteString("\n")
				}
			}
		}
		prompt.WriteString("\n")
	}
	return prompt.String()
}

// estimateTokens approximates at ~4 characters per token.
func estimateTokens(text string) int {
	return len(text) / 4
}

// processCompaction is the explicit path: a user-requested compaction
// becomes a streamed assistant summary message flagged IsSummary, so
// the transcript itself records what the conversation collapsed to.
func (p *Processor) processCompaction(
	ctx context.Context,
	sessionID string,
	messages []*types.Message,
	compactionPart *CompactionPart,
	callback ProcessCallback,
) error {
	session, err := p.findSession(ctx, sessionID)
	if err != nil {
		return err
	}

	lastMsg := messages[len(messages)-1]

	providerID := p.defaultProviderID
	modelID := p.defaultModelID
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

	defer p.markCompacting(ctx, session)()
	now := time.Now().UnixMilli()

	// Everything except the compaction request itself gets summarized.
	summaryPrompt := buildSummaryPrompt(ctx, p, messages[:len(messages)-1])
	summaryPrompt += "\n\nSummarize our conversation above. This summary will be the only context available when the conversation continues, so preserve critical information including: what was accomplished, current work in progress, files involved, next steps, and any key user requests or constraints. Be concise but detailed enough that work can continue seamlessly."

	assistantMsg := &types.Message{
		ID:         generatePartID(),
		SessionID:  sessionID,
		Role:       "assistant",
		ParentID:   lastMsg.ID,
		ProviderID: providerID,
		ModelID:    modelID,
		Mode:       lastMsg.Agent,
		IsSummary:  true,
		Path: &types.MessagePath{
			Cwd:  session.Directory,
			Root: session.Directory,
		},
		Time:   types.MessageTime{Created: now},
		Tokens: &types.TokenUsage{},
	}
	if err := p.storage.Put(ctx, []string{"message", sessionID, assistantMsg.ID}, assistantMsg); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	callback(assistantMsg, nil)
	event.PublishSync(event.Event{
		Type: event.MessageCreated,
		Data: event.MessageCreatedData{Info: assistantMsg},
	})

	textPart := &types.TextPart{
		ID:        generatePartID(),
		SessionID: sessionID,
		MessageID: assistantMsg.ID,
		Type:      "text",
	}
	if err := p.storage.Put(ctx, []string{"part", assistantMsg.ID, textPart.ID}, textPart); err != nil {
		return fmt.Errorf("failed to save part: %w", err)
	}
	event.PublishSync(event.Event{
		Type: event.MessagePartUpdated,
		Data: event.MessagePartUpdatedData{Part: textPart},
	})

	summary, err := p.summarize(ctx, prov, model.ID, summaryPrompt, func(delta string) {
		textPart.Text += delta
		p.storage.Put(ctx, []string{"part", assistantMsg.ID, textPart.ID}, textPart)
		event.PublishSync(event.Event{
			Type: event.MessagePartUpdated,
			Data: event.MessagePartUpdatedData{
				Part:  textPart,
				Delta: delta,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("stream error: %w", err)
	}

	// Providers don't report usage on this path; estimate both sides.
	assistantMsg.Tokens = &types.TokenUsage{
		Input:  estimateTokens(summaryPrompt),
		Output: estimateTokens(summary),
	}
	p.storage.Put(ctx, []string{"message", sessionID, assistantMsg.ID}, assistantMsg)

	event.PublishSync(event.Event{
		Type: event.MessageUpdated,
		Data: event.MessageUpdatedData{Info: assistantMsg},
	})
	event.PublishSync(event.Event{
		Type: event.SessionCompacted,
		Data: event.SessionCompactedData{SessionID: sessionID},
	})

	// Automatic compactions append a nudge so the loop picks the work
	// back up with the fresh context.
	if compactionPart.Auto {
		continueMsg := &types.Message{
			ID:        generatePartID(),
			SessionID: sessionID,
			Role:      "user",
			Agent:     lastMsg.Agent,
			Model:     lastMsg.Model,
			Time:      types.MessageTime{Created: time.Now().UnixMilli()},
		}
		p.storage.Put(ctx, []string{"message", sessionID, continueMsg.ID}, continueMsg)

		continuePart := &types.TextPart{
			ID:        generatePartID(),
			SessionID: sessionID,
			MessageID: continueMsg.ID,
			Type:      "text",
			Text:      "Continue if you have next steps",
		}
		p.storage.Put(ctx, []string{"part", continueMsg.ID, continuePart.ID}, continuePart)

		event.PublishSync(event.Event{
			Type: event.MessageCreated,
			Data: event.MessageCreatedData{Info: continueMsg},
		})
		event.PublishSync(event.Event{
			Type: event.MessagePartUpdated,
			Data: event.MessagePartUpdatedData{Part: continuePart},
		})
	}

	return nil
}
