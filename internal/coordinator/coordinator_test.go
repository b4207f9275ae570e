package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRunner struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	fail        map[string]bool
	delay       time.Duration
}

func (f *fakeRunner) RunSubagent(ctx context.Context, parentSessionID string, task SubagentTask) (*SubagentResult, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.fail[task.TaskID] {
		return nil, fmt.Errorf("boom: %s", task.TaskID)
	}
	return &SubagentResult{TaskID: task.TaskID, Success: true, Summary: "did " + task.TaskID}, nil
}

func TestDispatchReturnsResultsInInputOrder(t *testing.T) {
	runner := &fakeRunner{delay: 5 * time.Millisecond}
	c := New(runner, WithConcurrency(3))

	tasks := []SubagentTask{
		{TaskID: "a", Prompt: "p-a"},
		{TaskID: "b", Prompt: "p-b"},
		{TaskID: "c", Prompt: "p-c"},
		{TaskID: "d", Prompt: "p-d"},
	}

	results, err := c.Dispatch(context.Background(), "parent-1", tasks)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(results) != len(tasks) {
		t.Fatalf("expected %d results, got %d", len(tasks), len(results))
	}
	for i, task := range tasks {
		if results[i].TaskID != task.TaskID {
			t.Fatalf("result[%d].TaskID = %q, want %q", i, results[i].TaskID, task.TaskID)
		}
	}
}

func TestDispatchRespectsConcurrencyCap(t *testing.T) {
	runner := &fakeRunner{delay: 20 * time.Millisecond}
	c := New(runner, WithConcurrency(2))

	tasks := make([]SubagentTask, 6)
	for i := range tasks {
		tasks[i] = SubagentTask{TaskID: fmt.Sprintf("t%d", i)}
	}

	if _, err := c.Dispatch(context.Background(), "parent-1", tasks); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.maxInFlight > 2 {
		t.Fatalf("expected max 2 concurrent runs, observed %d", runner.maxInFlight)
	}
}

func TestDispatchFailingSiblingDoesNotCancelOthers(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"bad": true}}
	c := New(runner, WithConcurrency(3))

	tasks := []SubagentTask{{TaskID: "good1"}, {TaskID: "bad"}, {TaskID: "good2"}}
	results, err := c.Dispatch(context.Background(), "parent-1", tasks)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if results[1].Success || results[1].Error == "" {
		t.Fatalf("expected bad task to fail with captured error, got %+v", results[1])
	}
	if !results[0].Success || !results[2].Success {
		t.Fatalf("expected siblings of failing task to still succeed, got %+v", results)
	}
}

func TestDispatchTruncatesOversizedSummary(t *testing.T) {
	runner := &fakeRunner{}
	c := New(runner, WithMaxSummaryBytes(3))

	runner.fail = nil
	task := SubagentTask{TaskID: "x"}
	results, err := c.Dispatch(context.Background(), "parent-1", []SubagentTask{task})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	// "did x" is 5 bytes; with a 3-byte limit it is cut to "did" plus the marker.
	if !strings.HasPrefix(results[0].Summary, "did\n") || !strings.HasSuffix(results[0].Summary, "...[truncated]") {
		t.Fatalf("expected summary truncated to 3 bytes plus marker, got %q", results[0].Summary)
	}
}

func TestDispatchEnforcesDepthLimit(t *testing.T) {
	runner := &fakeRunner{}
	c := New(runner, WithMaxDepth(1))

	ctx := WithDepth(context.Background(), 1)
	results, err := c.Dispatch(ctx, "parent-1", []SubagentTask{{TaskID: "x"}})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if results[0].Success {
		t.Fatalf("expected depth-limited dispatch to fail, got %+v", results[0])
	}
	if !strings.Contains(results[0].Error, "depth") {
		t.Fatalf("expected depth-limit error message, got %q", results[0].Error)
	}
}

func TestDispatchEmptyTasksReturnsNil(t *testing.T) {
	runner := &fakeRunner{}
	c := New(runner)
	results, err := c.Dispatch(context.Background(), "parent-1", nil)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results for empty input, got %+v", results)
	}
}

func TestDepthPropagatesThroughContextValue(t *testing.T) {
	var observed int32
	runner := runnerFunc(func(ctx context.Context, parentSessionID string, task SubagentTask) (*SubagentResult, error) {
		atomic.StoreInt32(&observed, int32(DepthFromContext(ctx)))
		return &SubagentResult{TaskID: task.TaskID, Success: true}, nil
	})
	c := New(runner)
	if _, err := c.Dispatch(context.Background(), "parent-1", []SubagentTask{{TaskID: "x"}}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if atomic.LoadInt32(&observed) != 1 {
		t.Fatalf("expected depth 1 inside dispatched task, got %d", observed)
	}
}

type runnerFunc func(ctx context.Context, parentSessionID string, task SubagentTask) (*SubagentResult, error)

func (f runnerFunc) RunSubagent(ctx context.Context, parentSessionID string, task SubagentTask) (*SubagentResult, error) {
	return f(ctx, parentSessionID, task)
}
