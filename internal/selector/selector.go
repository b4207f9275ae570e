// Package selector implements the Smart Selector: a content-based classifier
// that chooses a model tier and extended-reasoning budget per LLM call,
// instead of keyword heuristics over task labels.
package selector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/agentcore/orchestrator/internal/provider"
)

// ModelTier is a coarse capability bucket, ordered small < mid < large.
type ModelTier string

const (
	TierSmall ModelTier = "small"
	TierMid   ModelTier = "mid"
	TierLarge ModelTier = "large"
)

var tierRank = map[ModelTier]int{TierSmall: 0, TierMid: 1, TierLarge: 2}
var tierByRank = []ModelTier{TierSmall, TierMid, TierLarge}

// ThinkingBudget is the amount of extended-reasoning allotted to a call,
// ordered none < low < medium < high.
type ThinkingBudget string

const (
	BudgetNone   ThinkingBudget = "none"
	BudgetLow    ThinkingBudget = "low"
	BudgetMedium ThinkingBudget = "medium"
	BudgetHigh   ThinkingBudget = "high"
)

var budgetRank = map[ThinkingBudget]int{BudgetNone: 0, BudgetLow: 1, BudgetMedium: 2, BudgetHigh: 3}

// TaskType classifies the nature of the work, informing tier/budget choice.
type TaskType string

const (
	TaskMechanical     TaskType = "mechanical"
	TaskImplementation TaskType = "implementation"
	TaskStrategic      TaskType = "strategic"
)

// Selection is the Smart Selector's output for one LLM call.
type Selection struct {
	ModelTier      ModelTier      `json:"modelTier"`
	ThinkingBudget ThinkingBudget `json:"thinkingBudget"`
	TaskType       TaskType       `json:"taskType"`
	Rationale      string         `json:"rationale"`
}

// defaultSelection is returned whenever the classifier's response can't be
// parsed as structured output.
var defaultSelection = Selection{
	ModelTier:      TierMid,
	ThinkingBudget: BudgetLow,
	TaskType:       TaskImplementation,
	Rationale:      "classifier response unparsable, falling back to default",
}

const classifierPrompt = `You are a routing classifier for an LLM agent system. Given a task description, decide whether a stronger model would produce a materially different result.

Respond with ONLY a JSON object of the form:
{"modelTier": "small"|"mid"|"large", "thinkingBudget": "none"|"low"|"medium"|"high", "taskType": "mechanical"|"implementation"|"strategic", "rationale": "<one sentence>"}

Task:
`

type cacheKey struct {
	taskHash string
	attempt  int
}

// classifyFunc sends prompt to the classifier model and returns its raw text
// response. Factored out so tests can substitute a deterministic fake
// without standing up a real provider/stream.
type classifyFunc func(ctx context.Context, prompt string) (string, error)

// Selector picks {model_tier, thinking_budget} per call via a classifier
// model invocation, cached by (task-text hash, attempt) within a process.
type Selector struct {
	complete classifyFunc

	mu    sync.Mutex
	cache map[cacheKey]Selection
}

// New creates a Selector that classifies using the given provider/model,
// typically the smallest available model. A nil registry disables
// classification entirely; Select then always returns defaultSelection.
func New(registry *provider.Registry, classifierProviderID, classifierModelID string) *Selector {
	s := &Selector{cache: make(map[cacheKey]Selection)}
	if registry != nil {
		s.complete = providerClassifyFunc(registry, classifierProviderID, classifierModelID)
	}
	return s
}

// newWithClassifyFunc builds a Selector around a fake classifier, for tests.
func newWithClassifyFunc(fn classifyFunc) *Selector {
	return &Selector{complete: fn, cache: make(map[cacheKey]Selection)}
}

// NewWithClassifier builds a Selector around a custom classify function
// instead of the default provider-backed one. Exported for components that
// need a deterministic or substitute classifier in their own tests (e.g.
// the CEO/Orchestrator's planning tests), without standing up a real
// provider registry.
func NewWithClassifier(fn func(ctx context.Context, prompt string) (string, error)) *Selector {
	return newWithClassifyFunc(fn)
}

// Select classifies taskText for the given retry attempt, applying the
// escalation contract on top of the cached or freshly-classified base
// selection. phaseHint is included in the classifier prompt when non-empty.
func (s *Selector) Select(ctx context.Context, taskText, phaseHint string, attempt int) (Selection, error) {
	key := cacheKey{taskHash: hashTask(taskText), attempt: attempt}

	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	base, err := s.classify(ctx, taskText, phaseHint)
	if err != nil {
		return Selection{}, err
	}

	escalated := escalate(base, attempt)

	s.mu.Lock()
	s.cache[key] = escalated
	s.mu.Unlock()

	return escalated, nil
}

// escalate applies the retry-escalation contract: each retry attempt steps
// the tier up (capped at large) and raises the thinking budget floor.
func escalate(base Selection, attempt int) Selection {
	result := base
	switch attempt {
	case 0:
		// as chosen
	case 1:
		result.ModelTier = stepTierUp(base.ModelTier)
		if budgetRank[result.ThinkingBudget] < budgetRank[BudgetLow] {
			result.ThinkingBudget = BudgetLow
		}
	default: // attempt >= 2
		result.ModelTier = TierLarge
		result.ThinkingBudget = BudgetHigh
	}
	return result
}

func stepTierUp(t ModelTier) ModelTier {
	rank := tierRank[t] + 1
	if rank > tierRank[TierLarge] {
		rank = tierRank[TierLarge]
	}
	return tierByRank[rank]
}

// classify invokes the classifier model with the fixed prompt and parses its
// structured response, never reading model-family names from user input.
func (s *Selector) classify(ctx context.Context, taskText, phaseHint string) (Selection, error) {
	if s.complete == nil {
		return defaultSelection, nil
	}

	prompt := classifierPrompt + taskText
	if phaseHint != "" {
		prompt = fmt.Sprintf("%s\n\nPhase: %s", prompt, phaseHint)
	}

	text, err := s.complete(ctx, prompt)
	if err != nil {
		return Selection{}, fmt.Errorf("classifier call failed: %w", err)
	}

	sel, ok := parseSelection(text)
	if !ok {
		return defaultSelection, nil
	}
	return sel, nil
}

// providerClassifyFunc adapts the Provider/CompletionStream RPC surface to
// classifyFunc, draining the stream into one string.
func providerClassifyFunc(registry *provider.Registry, providerID, modelID string) classifyFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		if registry == nil {
			return "", fmt.Errorf("no provider registry configured")
		}
		p, err := registry.Get(providerID)
		if err != nil {
			return "", err
		}

		req := &provider.CompletionRequest{
			Model: modelID,
			Messages: []*schema.Message{
				{Role: schema.User, Content: prompt},
			},
			MaxTokens:   256,
			Temperature: 0,
		}

		stream, err := p.CreateCompletion(ctx, req)
		if err != nil {
			return "", err
		}
		defer stream.Close()

		var sb strings.Builder
		for {
			msg, err := stream.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", err
			}
			sb.WriteString(msg.Content)
		}
		return sb.String(), nil
	}
}

// parseSelection extracts the first JSON object in text and validates its
// enum fields; on failure the caller substitutes defaultSelection.
func parseSelection(text string) (Selection, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Selection{}, false
	}

	var sel Selection
	if err := json.Unmarshal([]byte(text[start:end+1]), &sel); err != nil {
		return Selection{}, false
	}

	if _, ok := tierRank[sel.ModelTier]; !ok {
		return Selection{}, false
	}
	if _, ok := budgetRank[sel.ThinkingBudget]; !ok {
		return Selection{}, false
	}
	switch sel.TaskType {
	case TaskMechanical, TaskImplementation, TaskStrategic:
	default:
		return Selection{}, false
	}

	return sel, true
}

func hashTask(taskText string) string {
	sum := sha256.Sum256([]byte(taskText))
	return hex.EncodeToString(sum[:])
}
