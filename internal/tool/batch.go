package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
	"golang.org/x/sync/errgroup"
)

const batchDescription = `Executes multiple independent tool calls concurrently to reduce latency. Best used for gathering context (reads, searches, listings).

Payload Format (JSON array):
[{"tool": "read", "parameters": {"filePath": "src/index.ts", "limit": 350}},{"tool": "grep", "parameters": {"pattern": "Session\\.updatePart", "include": "**/*.ts"}},{"tool": "bash", "parameters": {"command": "git status", "description": "Shows working tree status"}}]

Rules:
- 1-10 tool calls per batch
- All calls start in parallel; ordering NOT guaranteed
- Partial failures do not stop others

Disallowed Tools:
- batch (no nesting)
- edit (run edits separately)
- todoread (call directly - lightweight)

When NOT to Use:
- Operations that depend on prior tool output (e.g. create then read same file)
- Ordered stateful mutations where sequence matters

Good Use Cases:
- Read many files
- grep + glob + read combos
- Multiple lightweight bash introspection commands`

// maxBatchSize caps how many calls run per batch; overflow entries come
// back as per-slot errors instead of silently vanishing.
const maxBatchSize = 10

// batchExcluded lists tools that refuse to run inside a batch.
var batchExcluded = map[string]bool{
	"batch":    true, // no nesting
	"edit":     true, // run edits separately
	"todoread": true, // call directly - lightweight
}

// suggestionHidden keeps noisy entries out of not-found suggestions.
var suggestionHidden = map[string]bool{
	"batch":    true,
	"edit":     true,
	"todoread": true,
	"invalid":  true,
	"patch":    true,
}

// BatchTool fans several registry tools out in parallel.
type BatchTool struct {
	workDir  string
	registry *Registry
}

// BatchInput is the decoded input for the batch tool.
type BatchInput struct {
	ToolCalls []ToolCall `json:"tool_calls"`
}

// ToolCall names one tool plus its raw parameters inside a batch.
type ToolCall struct {
	Tool       string          `json:"tool"`
	Parameters json.RawMessage `json:"parameters"`
}

// BatchResult is the per-slot outcome, kept in input order.
type BatchResult struct {
	Index   int           `json:"index"`
	Tool    string        `json:"tool"`
	Success bool          `json:"success"`
	Result  *Result       `json:"result,omitempty"`
	Error   string        `json:"error,omitempty"`
	Time    time.Duration `json:"time"`
}

// NewBatchTool creates a batch tool over the given registry.
func NewBatchTool(workDir string, registry *Registry) *BatchTool {
	return &BatchTool{workDir: workDir, registry: registry}
}

func (t *BatchTool) ID() string          { return "batch" }
func (t *BatchTool) Description() string { return batchDescription }

func (t *BatchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"tool_calls": {
				"type": "array",
				"description": "Array of tool calls to execute in parallel",
				"items": {
					"type": "object",
					"properties": {
						"tool": {
							"type": "string",
							"description": "The name of the tool to execute"
						},
						"parameters": {
							"type": "object",
							"description": "Parameters for the tool"
						}
					},
					"required": ["tool", "parameters"]
				},
				"minItems": 1
			}
		},
		"required": ["tool_calls"]
	}`)
}

func (t *BatchTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params BatchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w\n\nExpected payload format:\n  [{\"tool\": \"tool_name\", \"parameters\": {...}}, {...}]", err)
	}
	if len(params.ToolCalls) == 0 {
		return nil, fmt.Errorf("tool_calls array must contain at least one tool call")
	}

	runnable := params.ToolCalls
	var overflow []ToolCall
	if len(runnable) > maxBatchSize {
		overflow = runnable[maxBatchSize:]
		runnable = runnable[:maxBatchSize]
	}

	known := t.suggestableTools()

	// Each goroutine owns exactly one slot, so no lock is needed; errors
	// stay inside their slot rather than cancelling siblings.
	results := make([]*BatchResult, len(runnable), len(params.ToolCalls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range runnable {
		i, call := i, call
		g.Go(func() error {
			results[i] = t.runOne(gctx, i, call, toolCtx, known)
			return nil
		})
	}
	_ = g.Wait()

	for i, call := range overflow {
		results = append(results, &BatchResult{
			Index: maxBatchSize + i,
			Tool:  call.Tool,
			Error: fmt.Sprintf("Maximum of %d tools allowed in batch", maxBatchSize),
		})
	}

	return t.render(results, params.ToolCalls)
}

func (t *BatchTool) runOne(ctx context.Context, index int, call ToolCall, parent *Context, known []string) *BatchResult {
	started := time.Now()
	out := &BatchResult{Index: index, Tool: call.Tool}
	defer func() { out.Time = time.Since(started) }()

	if batchExcluded[call.Tool] {
		out.Error = fmt.Sprintf("Tool '%s' is not allowed in batch. Disallowed tools: %s",
			call.Tool, strings.Join(excludedToolNames(), ", "))
		return out
	}

	impl, ok := t.registry.Get(call.Tool)
	if !ok {
		out.Error = fmt.Sprintf("Tool '%s' not found. Available tools: %s",
			call.Tool, strings.Join(known, ", "))
		return out
	}

	// Derived per-slot context: same session identity, distinct call ID,
	// metadata streaming suppressed (batch reports once at the end).
	callCtx := &Context{
		SessionID: parent.SessionID,
		MessageID: parent.MessageID,
		CallID:    fmt.Sprintf("%s-batch-%d", parent.CallID, index),
		Agent:     parent.Agent,
		WorkDir:   parent.WorkDir,
		AbortCh:   parent.AbortCh,
		Extra:     parent.Extra,
	}

	res, err := impl.Execute(ctx, call.Parameters, callCtx)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Success = true
	out.Result = res
	return out
}

func (t *BatchTool) render(results []*BatchResult, originalCalls []ToolCall) (*Result, error) {
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	var (
		succeeded   int
		attachments []Attachment
		sections    []string
		details     = make([]map[string]any, 0, len(results))
	)
	for _, r := range results {
		detail := map[string]any{
			"tool":    r.Tool,
			"success": r.Success,
			"time_ms": r.Time.Milliseconds(),
		}
		if r.Success {
			succeeded++
			if r.Result != nil {
				sections = append(sections, fmt.Sprintf("=== %s (success) ===\n%s", r.Tool, r.Result.Output))
				attachments = append(attachments, r.Result.Attachments...)
				detail["title"] = r.Result.Title
			}
		} else {
			sections = append(sections, fmt.Sprintf("=== %s (failed) ===\n%s", r.Tool, r.Error))
			detail["error"] = r.Error
		}
		details = append(details, detail)
	}

	failed := len(results) - succeeded
	var summary string
	if failed > 0 {
		summary = fmt.Sprintf("Executed %d/%d tools successfully. %d failed.\n\n%s",
			succeeded, len(results), failed, strings.Join(sections, "\n\n"))
	} else {
		summary = fmt.Sprintf("All %d tools executed successfully.\n\n%s",
			succeeded, strings.Join(sections, "\n\n"))
	}

	toolNames := make([]string, len(originalCalls))
	for i, call := range originalCalls {
		toolNames[i] = call.Tool
	}

	return &Result{
		Title:       fmt.Sprintf("Batch execution (%d/%d successful)", succeeded, len(results)),
		Output:      summary,
		Attachments: attachments,
		Metadata: map[string]any{
			"totalCalls": len(results),
			"successful": succeeded,
			"failed":     failed,
			"tools":      toolNames,
			"details":    details,
		},
	}, nil
}

// suggestableTools lists registry tools worth naming in a not-found error.
func (t *BatchTool) suggestableTools() []string {
	var names []string
	for _, impl := range t.registry.List() {
		if !suggestionHidden[impl.ID()] {
			names = append(names, impl.ID())
		}
	}
	sort.Strings(names)
	return names
}

func excludedToolNames() []string {
	names := make([]string, 0, len(batchExcluded))
	for name := range batchExcluded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *BatchTool) EinoTool() einotool.InvokableTool {
	return &einoAdapter{tool: t}
}
