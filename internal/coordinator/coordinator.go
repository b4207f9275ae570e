// Package coordinator implements the Subagent Coordinator: bounded-
// concurrency dispatch of specialist agents with isolated contexts, result
// aggregation in input order, and a recursion depth limit shared with the
// Delegation Tool.
package coordinator

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the bounded-parallel fan-out cap.
const DefaultConcurrency = 3

// DefaultMaxSummaryBytes bounds a subagent's returned summary so the
// aggregated result length stays bounded regardless of fan-out width.
const DefaultMaxSummaryBytes = 2048

// DefaultMaxDepth bounds recursive delegation chains.
const DefaultMaxDepth = 3

type depthKeyType struct{}

var depthKey = depthKeyType{}

// WithDepth stamps the current delegation depth onto ctx. Because a child
// session's loop context descends from this one via context.WithCancel
// (which preserves values), the depth travels transparently through nested
// ExecuteSubtask/Process calls without any extra plumbing.
func WithDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey, depth)
}

// DepthFromContext returns the delegation depth stamped on ctx, or 0 if
// none was ever set (i.e. this is a top-level, non-delegated call).
func DepthFromContext(ctx context.Context) int {
	if v, ok := ctx.Value(depthKey).(int); ok {
		return v
	}
	return 0
}

// SubagentTask is one unit of delegated work: a role, a prompt, and an
// optional context snippet (the caller's planning doc or task summary) —
// never the caller's full transcript, preserving context isolation.
type SubagentTask struct {
	TaskID         string
	Role           string
	Prompt         string
	ContextSnippet string

	// Model optionally overrides the runner's default model (alias form,
	// e.g. "sonnet"/"opus"/"haiku"); the retry loop escalates through it.
	Model string
}

// SubagentResult is the bounded-size outcome of running one SubagentTask.
type SubagentResult struct {
	TaskID       string
	Success      bool
	Summary      string
	ArtifactsRef string
	Error        string
}

// Runner performs one isolated sampling-loop run for a single subagent task.
// executor.SubagentExecutor implements this (see its RunSubagent method).
type Runner interface {
	RunSubagent(ctx context.Context, parentSessionID string, task SubagentTask) (*SubagentResult, error)
}

// Coordinator dispatches SubagentTasks through a Runner with bounded
// concurrency, summary truncation, and a recursion depth limit.
type Coordinator struct {
	runner          Runner
	concurrency     int
	maxSummaryBytes int
	maxDepth        int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConcurrency overrides the default fan-out cap K.
func WithConcurrency(k int) Option {
	return func(c *Coordinator) {
		if k > 0 {
			c.concurrency = k
		}
	}
}

// WithMaxSummaryBytes overrides the default summary truncation limit.
func WithMaxSummaryBytes(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxSummaryBytes = n
		}
	}
}

// WithMaxDepth overrides the default recursion depth limit.
func WithMaxDepth(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// New creates a Coordinator over runner with the given options.
func New(runner Runner, opts ...Option) *Coordinator {
	c := &Coordinator{
		runner:          runner,
		concurrency:     DefaultConcurrency,
		maxSummaryBytes: DefaultMaxSummaryBytes,
		maxDepth:        DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatch runs tasks in bounded parallel (concurrency K), each isolated
// from the others, and returns results in input order regardless of
// completion order. A failing task's error is captured in its own result
// slot; it never cancels its siblings. Cancelling ctx stops issuing new
// runs and lets in-flight ones observe cancellation via the derived
// group context; tasks that never started are left as cancelled results.
func (c *Coordinator) Dispatch(ctx context.Context, parentSessionID string, tasks []SubagentTask) ([]SubagentResult, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	depth := DepthFromContext(ctx)
	if depth >= c.maxDepth {
		results := make([]SubagentResult, len(tasks))
		for i, t := range tasks {
			results[i] = SubagentResult{
				TaskID:  t.TaskID,
				Success: false,
				Error:   "delegation depth limit reached",
			}
		}
		return results, nil
	}
	childCtx := WithDepth(ctx, depth+1)

	results := make([]SubagentResult, len(tasks))
	g, gctx := errgroup.WithContext(childCtx)
	g.SetLimit(c.concurrency)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = SubagentResult{TaskID: task.TaskID, Success: false, Error: gctx.Err().Error()}
				return nil
			}
			res, err := c.runner.RunSubagent(gctx, parentSessionID, task)
			if err != nil {
				results[i] = SubagentResult{TaskID: task.TaskID, Success: false, Error: err.Error()}
				return nil
			}
			results[i] = c.truncate(*res)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// truncate bounds a subagent's summary to maxSummaryBytes so the
// aggregated result length is bounded independent of fan-out width.
func (c *Coordinator) truncate(res SubagentResult) SubagentResult {
	if len(res.Summary) > c.maxSummaryBytes {
		res.Summary = strings.TrimSpace(res.Summary[:c.maxSummaryBytes]) + "\n...[truncated]"
	}
	return res
}
