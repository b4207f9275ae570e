// Package selfimprove implements the Self-Improvement Hooks: unconditional
// post-task knowledge capture, opt-in pre-task retrieval, a retry loop that
// injects retrieved knowledge, and a background mining pass over
// tool_log.jsonl for a long-running daemon.
package selfimprove

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/agentcore/orchestrator/internal/knowledge"
	"github.com/agentcore/orchestrator/internal/storage"
	"github.com/agentcore/orchestrator/pkg/types"
)

// DefaultMaxAttempts is the retry loop's cap on re-attempting the same step.
const DefaultMaxAttempts = 3

// DefaultTickInterval is how many sampling-loop ticks elapse between
// background mining passes.
const DefaultTickInterval = 100

// TerminationReason mirrors the sampling loop's terminal states relevant to
// post-task capture.
type TerminationReason string

const (
	TerminationCompleted  TerminationReason = "completed"
	TerminationError      TerminationReason = "error"
	TerminationCapReached TerminationReason = "cap_reached"
	TerminationCancelled  TerminationReason = "cancelled"
)

// TaskOutcome summarizes one sampling-loop run for post-task capture.
type TaskOutcome struct {
	Project        string
	Role           string
	Title          string
	ToolsUsed      []string
	DurationMillis int64
	Iterations     int
	Reason         TerminationReason
	ErrorClass     string
}

// RecentProject pairs a project name with its last-active time, used to
// bound pre-task retrieval to the most recently active projects.
type RecentProject struct {
	Name       string
	LastActive int64
}

// RetryContext bundles what a retry needs: the attempt number to hand the
// Smart Selector and the knowledge section to inject into the retry prompt.
type RetryContext struct {
	Attempt          int
	KnowledgeSection string
}

// BackgroundScanResult is one background mining pass's findings.
type BackgroundScanResult struct {
	CompoundSequences [][3]string
	TopErrorClasses   []string
	WorkItems         []types.WorkItem
}

// Hooks implements the Self-Improvement Hooks over a Knowledge Store.
type Hooks struct {
	knowledge   *knowledge.Store
	storage     *storage.Storage
	maxAttempts int

	tickMu       sync.Mutex
	tick         int
	tickInterval int

	cronJob *cron.Cron
}

// Option configures Hooks.
type Option func(*Hooks)

// WithMaxAttempts overrides the retry loop's attempt cap.
func WithMaxAttempts(n int) Option {
	return func(h *Hooks) {
		if n > 0 {
			h.maxAttempts = n
		}
	}
}

// WithTickInterval overrides how many ticks elapse between background
// mining passes.
func WithTickInterval(n int) Option {
	return func(h *Hooks) {
		if n > 0 {
			h.tickInterval = n
		}
	}
}

// New creates Hooks over a knowledge store and the storage instance backing
// tool_log.jsonl (for the background mining pass).
func New(k *knowledge.Store, s *storage.Storage, opts ...Option) *Hooks {
	h := &Hooks{
		knowledge:    k,
		storage:      s,
		maxAttempts:  DefaultMaxAttempts,
		tickInterval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Capture fires unconditionally after every sampling-loop termination.
// Knowledge Store write failures are swallowed: capture must never fail the
// run it's observing.
func (h *Hooks) Capture(ctx context.Context, outcome TaskOutcome) {
	switch outcome.Reason {
	case TerminationCompleted:
		h.captureSuccess(ctx, outcome)
	case TerminationError, TerminationCapReached:
		h.captureFailure(ctx, outcome)
	}
}

func (h *Hooks) captureSuccess(ctx context.Context, outcome TaskOutcome) {
	tags := []string{"success"}
	if outcome.Role != "" {
		tags = append(tags, outcome.Role)
	}
	content := fmt.Sprintf("Completed %q in %d iteration(s) over %s using tools: %s.",
		outcome.Title, outcome.Iterations, time.Duration(outcome.DurationMillis)*time.Millisecond,
		strings.Join(outcome.ToolsUsed, ", "))

	_ = h.knowledge.Add(ctx, &types.KnowledgeEntry{
		Project: outcome.Project,
		Title:   "Pattern: " + outcome.Title,
		Type:    types.KnowledgePattern,
		Content: content,
		Tags:    tags,
		Source:  types.KnowledgeSourceAutoCaptured,
	})

	if outcome.Iterations >= 10 {
		_ = h.knowledge.Add(ctx, &types.KnowledgeEntry{
			Project: outcome.Project,
			Title:   "Complexity: " + outcome.Title,
			Type:    types.KnowledgeLearning,
			Content: fmt.Sprintf("%q required %d iterations, above the simple-task threshold; consider decomposing requests like this one.", outcome.Title, outcome.Iterations),
			Tags:    append(append([]string{}, tags...), "complex"),
			Source:  types.KnowledgeSourceAutoCaptured,
		})
	}
}

func (h *Hooks) captureFailure(ctx context.Context, outcome TaskOutcome) {
	tags := []string{string(outcome.Reason)}
	if outcome.ErrorClass != "" {
		tags = append(tags, outcome.ErrorClass)
	}
	if outcome.Role != "" {
		tags = append(tags, outcome.Role)
	}
	_ = h.knowledge.Add(ctx, &types.KnowledgeEntry{
		Project: outcome.Project,
		Title:   "Lesson: " + outcome.Title,
		Type:    types.KnowledgeLessonLearned,
		Content: fmt.Sprintf("%q terminated with %s (%s). Check this class of failure before retrying blindly.", outcome.Title, outcome.Reason, outcome.ErrorClass),
		Tags:    tags,
		Source:  types.KnowledgeSourceAutoCaptured,
	})
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "to": true,
	"of": true, "in": true, "on": true, "for": true, "with": true, "is": true,
	"it": true, "this": true, "that": true, "be": true, "as": true, "at": true,
	"by": true, "from": true, "into": true, "then": true, "also": true,
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// ExtractKeywords lowercases task, strips punctuation, removes stopwords,
// and dedupes, preserving first-seen order.
func ExtractKeywords(task string) []string {
	words := wordPattern.FindAllString(strings.ToLower(task), -1)
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// Retrieve implements pre-task retrieval: up to 5 keywords extracted from
// taskText, searched against up to 10 most-recently-active projects,
// collecting up to 10 ranked entries overall, deduplicated by ID.
func (h *Hooks) Retrieve(ctx context.Context, taskText string, recentProjects []RecentProject) []*types.KnowledgeEntry {
	keywords := ExtractKeywords(taskText)
	if len(keywords) > 5 {
		keywords = keywords[:5]
	}

	projects := append([]RecentProject(nil), recentProjects...)
	sort.SliceStable(projects, func(i, j int) bool { return projects[i].LastActive > projects[j].LastActive })
	if len(projects) > 10 {
		projects = projects[:10]
	}

	seen := make(map[string]bool)
	var collected []*types.KnowledgeEntry
	for _, p := range projects {
		for _, kw := range keywords {
			results, err := h.knowledge.Search(ctx, p.Name, kw, knowledge.DefaultK)
			if err != nil {
				continue
			}
			for _, e := range results {
				if seen[e.ID] {
					continue
				}
				seen[e.ID] = true
				collected = append(collected, e)
				if len(collected) >= 10 {
					return collected
				}
			}
		}
	}
	return collected
}

// InjectSection renders retrieved entries as a "relevant past knowledge"
// section to prepend to a planning or retry prompt, or "" when empty.
func InjectSection(entries []*types.KnowledgeEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Relevant past knowledge\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", e.Type, e.Title, e.Content)
	}
	return b.String()
}

// MaxAttempts returns the retry loop's cap on re-attempts of the same step.
func (h *Hooks) MaxAttempts() int {
	return h.maxAttempts
}

// PrepareRetry builds the next RetryContext for a failing step, or returns
// ok=false once attempt has reached MaxAttempts. Each retry's knowledge
// section is freshly retrieved for failingTaskText, so a later attempt sees
// whatever the previous attempt's failure just taught the knowledge store.
func (h *Hooks) PrepareRetry(ctx context.Context, failingTaskText string, attempt int, recentProjects []RecentProject) (*RetryContext, bool) {
	if attempt >= h.maxAttempts {
		return nil, false
	}
	entries := h.Retrieve(ctx, failingTaskText, recentProjects)
	return &RetryContext{Attempt: attempt + 1, KnowledgeSection: InjectSection(entries)}, true
}

// Tick advances the background-pass counter by one sampling-loop iteration
// and runs a mining pass over allSessionIDs once every tickInterval ticks,
// returning the scan result on the tick that triggered it (nil otherwise).
func (h *Hooks) Tick(ctx context.Context, allSessionIDs []string) (*BackgroundScanResult, error) {
	h.tickMu.Lock()
	h.tick++
	due := h.tick%h.tickInterval == 0
	h.tickMu.Unlock()

	if !due {
		return nil, nil
	}
	return h.ScanToolLogs(ctx, allSessionIDs)
}

// StartCronMining runs the background mining pass on a wall-clock schedule
// (robfig/cron expression) instead of a tick counter, for deployments where
// a long-running daemon drives it rather than the sampling loop's own
// ticks. Call Stop to halt it.
func (h *Hooks) StartCronMining(spec string, sessionIDsFn func() []string, onResult func(*BackgroundScanResult)) error {
	h.cronJob = cron.New()
	_, err := h.cronJob.AddFunc(spec, func() {
		result, err := h.ScanToolLogs(context.Background(), sessionIDsFn())
		if err == nil && onResult != nil {
			onResult(result)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	h.cronJob.Start()
	return nil
}

// Stop halts the cron-scheduled mining pass, if one was started.
func (h *Hooks) Stop() {
	if h.cronJob != nil {
		h.cronJob.Stop()
	}
}

// ScanToolLogs reads tool_log.jsonl for each session in sessionIDs, finds
// any 3-occurrence contiguous tool-name sequence (a candidate compound-tool
// discovery) and the top-5 error classes, and returns a low-priority
// WorkItem for each such sequence and each such error class.
func (h *Hooks) ScanToolLogs(ctx context.Context, sessionIDs []string) (*BackgroundScanResult, error) {
	var allNames []string
	errCounts := make(map[string]int)

	for _, sid := range sessionIDs {
		_ = h.storage.ReadJSONL(ctx, []string{"tool_log", sid}, func(line json.RawMessage) error {
			var entry types.ToolCallLog
			if err := json.Unmarshal(line, &entry); err != nil {
				return nil
			}
			allNames = append(allNames, entry.Name)
			if entry.Outcome == types.ToolCallError && entry.ErrorClass != "" {
				errCounts[entry.ErrorClass]++
			}
			return nil
		})
	}

	result := &BackgroundScanResult{
		CompoundSequences: findRepeatedTriples(allNames),
		TopErrorClasses:   topN(errCounts, 5),
	}

	for _, seq := range result.CompoundSequences {
		result.WorkItems = append(result.WorkItems, types.WorkItem{
			ID:               "compound-" + uuid.NewString(),
			Task:             fmt.Sprintf("investigate compound tool candidate: %s -> %s -> %s", seq[0], seq[1], seq[2]),
			Priority:         types.TaskPriorityLow,
			RetriesRemaining: 1,
			CreatedAt:        time.Now().UnixMilli(),
			State:            types.WorkItemPending,
		})
	}
	for _, class := range result.TopErrorClasses {
		result.WorkItems = append(result.WorkItems, types.WorkItem{
			ID:               "error-class-" + uuid.NewString(),
			Task:             fmt.Sprintf("investigate recurring error class: %s", class),
			Priority:         types.TaskPriorityLow,
			RetriesRemaining: 1,
			CreatedAt:        time.Now().UnixMilli(),
			State:            types.WorkItemPending,
		})
	}

	return result, nil
}

// findRepeatedTriples finds contiguous 3-tool sequences that occur at
// least 3 times across names, returning each distinct sequence once.
func findRepeatedTriples(names []string) [][3]string {
	if len(names) < 3 {
		return nil
	}
	counts := make(map[[3]string]int)
	var order [][3]string
	for i := 0; i+2 < len(names); i++ {
		key := [3]string{names[i], names[i+1], names[i+2]}
		if counts[key] == 0 {
			order = append(order, key)
		}
		counts[key]++
	}
	var out [][3]string
	for _, key := range order {
		if counts[key] >= 3 {
			out = append(out, key)
		}
	}
	return out
}

// topN returns up to n keys of counts sorted by count descending, then key
// ascending for determinism.
func topN(counts map[string]int, n int) []string {
	type kv struct {
		key   string
		count int
	}
	kvs := make([]kv, 0, len(counts))
	for k, c := range counts {
		kvs = append(kvs, kv{k, c})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].count != kvs[j].count {
			return kvs[i].count > kvs[j].count
		}
		return kvs[i].key < kvs[j].key
	})
	if len(kvs) > n {
		kvs = kvs[:n]
	}
	out := make([]string, len(kvs))
	for i, e := range kvs {
		out[i] = e.key
	}
	return out
}

// ListSessionIDs enumerates session IDs with a tool_log.jsonl on disk,
// for callers that want to feed Tick/StartCronMining without tracking
// active sessions themselves.
func ListSessionIDs(s *storage.Storage) []string {
	dir := s.DirPath([]string{"tool_log"})
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".jsonl") {
			out = append(out, strings.TrimSuffix(name, ".jsonl"))
		}
	}
	return out
}
