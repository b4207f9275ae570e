package session

import (
	"context"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/agentcore/orchestrator/internal/event"
	"github.com/agentcore/orchestrator/internal/provider"
	"github.com/agentcore/orchestrator/pkg/types"
)

const titleSystemPrompt = `You are a title generator. You output ONLY a thread title. Nothing else.

Generate a brief title that would help the user find this conversation later.

Rules:
- A single line, ≤50 characters
- No explanations
- Use -ing verbs for actions (Debugging, Implementing, Analyzing)
- Keep exact: technical terms, numbers, filenames
- Remove: the, this, my, a, an
- Always output something meaningful

Examples:
"debug 500 errors in production" → Debugging production 500 errors
"refactor user service" → Refactoring user service
"implement rate limiting" → Implementing rate limiting`

const defaultTitlePrefix = "New Session"

// isDefaultTitle reports whether the session still wears the
// placeholder name.
func isDefaultTitle(title string) bool {
	return title == defaultTitlePrefix || strings.HasPrefix(title, defaultTitlePrefix)
}

// ensureTitle asks the default model for a short thread title, once,
// on the first user message of a root session.
func (p *Processor) ensureTitle(
	ctx context.Context,
	session *types.Session,
	userContent string,
) {
	// Child sessions inherit context from their parent; no title needed.
	if session.ParentID != nil && *session.ParentID != "" {
		return
	}

	if !isDefaultTitle(session.Title) {
		return
	}

	model, err := p.providerRegistry.DefaultModel()
	if err != nil {
		return
	}

	prov, err := p.providerRegistry.Get(model.ProviderID)
	if err != nil {
		return
	}

	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model: model.ID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: titleSystemPrompt},
			{Role: schema.User, Content: "Generate a title for this conversation:\n\n" + userContent},
		},
		MaxTokens: 50,
	})
	if err != nil {
		return
	}
	defer stream.Close()

	var title strings.Builder
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return
		}
		title.WriteString(msg.Content)
	}

	// First non-empty line wins; models sometimes add trailing noise.
	titleText := strings.TrimSpace(title.String())
	for _, line := range strings.Split(titleText, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			titleText = line
			break
		}
	}

	if len(titleText) > 100 {
		titleText = titleText[:97] + "..."
	}

	if titleText == "" {
		return
	}

	session.Title = titleText
	p.storage.Put(ctx, []string{"session", session.ProjectID, session.ID}, session)

	event.PublishSync(event.Event{
		Type: event.SessionUpdated,
		Data: event.SessionUpdatedData{Info: session},
	})
}
