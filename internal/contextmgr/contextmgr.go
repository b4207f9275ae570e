// Package contextmgr keeps an agent's request payload within the LLM's
// context window by trimming old image attachments in bulk, while
// preserving the prefix (system prompt + first N messages) so provider-side
// prompt caching still hits.
package contextmgr

import (
	"fmt"

	"github.com/agentcore/orchestrator/pkg/types"
)

// Config controls the image-trimming policy.
type Config struct {
	// MaxImages is the most image parts allowed across the whole message list.
	MaxImages int
	// RemovalChunkSize is how many oldest images are dropped per compaction,
	// rather than trimming down to exactly MaxImages every time.
	RemovalChunkSize int
	// PrefixPreserveCount is the number of leading messages that are never
	// modified, preserving the cached prompt prefix.
	PrefixPreserveCount int
}

// DefaultConfig bounds attached images the way the token compactor
// bounds text.
var DefaultConfig = Config{
	MaxImages:           20,
	RemovalChunkSize:    5,
	PrefixPreserveCount: 2,
}

// MessageParts is one message's ordered parts, addressable by message index
// so the caller can persist only what changed.
type MessageParts struct {
	MessageIndex int
	Parts        []types.Part
}

// Stats summarizes the current state of a message list for compaction
// decisions and observability.
type Stats struct {
	ImageCount           int
	ApproxTokens         int
	CompactionsPerformed int
}

// Manager applies Config's image-trimming policy.
type Manager struct {
	cfg Config
}

// New creates a Manager with the given config.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Stats computes image count and a rough token estimate (4 chars/token,
// same heuristic the token compactor uses) across all messages.
func (m *Manager) Stats(messages []MessageParts) Stats {
	s := Stats{}
	for _, msg := range messages {
		for _, part := range msg.Parts {
			s.ApproxTokens += approxTokens(part)
			if isImage(part) {
				s.ImageCount++
			}
		}
	}
	return s
}

// MaybeCompact trims the oldest images beyond MaxImages in chunks of
// RemovalChunkSize, replacing each with a text placeholder. Messages before
// PrefixPreserveCount are never touched. Returns the (possibly mutated)
// messages, the IDs of image parts that were replaced, and whether any
// compaction happened. Idempotent: a second call with no new images is a
// no-op.
func (m *Manager) MaybeCompact(messages []MessageParts) ([]MessageParts, []string, bool) {
	var images []int // flat index into a synthetic ordered list
	type loc struct {
		msgIdx  int
		partIdx int
	}
	var locs []loc

	for mi, msg := range messages {
		if mi < m.cfg.PrefixPreserveCount {
			continue
		}
		for pi, part := range msg.Parts {
			if isImage(part) {
				images = append(images, mi)
				locs = append(locs, loc{msgIdx: mi, partIdx: pi})
			}
		}
	}

	if len(locs) <= m.cfg.MaxImages {
		return messages, nil, false
	}

	// Remove whole chunks: the excess rounded up to a multiple of
	// RemovalChunkSize, capped at the number of trimmable images.
	toRemove := len(locs) - m.cfg.MaxImages
	if chunk := m.cfg.RemovalChunkSize; chunk > 0 {
		toRemove = ((toRemove + chunk - 1) / chunk) * chunk
	}
	if toRemove > len(locs) {
		toRemove = len(locs)
	}

	var replacedIDs []string
	for i := 0; i < toRemove; i++ {
		l := locs[i]
		fp, ok := messages[l.msgIdx].Parts[l.partIdx].(*types.FilePart)
		if !ok {
			continue
		}
		replacedIDs = append(replacedIDs, fp.ID)
		messages[l.msgIdx].Parts[l.partIdx] = &types.TextPart{
			ID:        fp.ID,
			SessionID: fp.SessionID,
			MessageID: fp.MessageID,
			Type:      "text",
			Text:      fmt.Sprintf("[image removed to free context; thumbnail %s]", fp.ID),
		}
	}

	return messages, replacedIDs, len(replacedIDs) > 0
}

func isImage(part types.Part) bool {
	fp, ok := part.(*types.FilePart)
	if !ok {
		return false
	}
	return len(fp.Mime) >= 6 && fp.Mime[:6] == "image/"
}

func approxTokens(part types.Part) int {
	switch p := part.(type) {
	case *types.TextPart:
		return len(p.Text) / 4
	case *types.ToolPart:
		return (len(p.State.Input)*20 + len(p.State.Output)) / 4
	default:
		return 0
	}
}
