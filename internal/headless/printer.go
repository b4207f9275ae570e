package headless

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/agentcore/orchestrator/internal/event"
	"github.com/agentcore/orchestrator/pkg/types"
)

// Printer mirrors bus events to the chosen output format while
// accumulating the machine-readable Result.
type Printer struct {
	mu            sync.Mutex
	writer        io.Writer
	format        OutputFormat
	quiet         bool
	verbose       bool
	unsubscribe   func()
	sessionID     string
	startTime     time.Time
	result        *Result
	toolCalls     []ToolCall
	currentTool   *ToolCall
	lastTextDelta string
}

// NewPrinter creates a printer writing to writer in the given format.
func NewPrinter(writer io.Writer, format OutputFormat, quiet, verbose bool) *Printer {
	return &Printer{
		writer:    writer,
		format:    format,
		quiet:     quiet,
		verbose:   verbose,
		startTime: time.Now(),
		result: &Result{
			Status:   "running",
			ExitCode: ExitSuccess,
		},
		toolCalls: make([]ToolCall, 0),
	}
}

// Subscribe attaches the printer to the event bus.
func (p *Printer) Subscribe() {
	p.unsubscribe = event.SubscribeAll(p.handleEvent)
}

// Unsubscribe detaches from the bus.
func (p *Printer) Unsubscribe() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}

// SetSessionID records which session the run belongs to.
func (p *Printer) SetSessionID(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = sessionID
	p.result.SessionID = sessionID
}

// GetResult returns the result with duration and tool calls finalized.
func (p *Printer) GetResult() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.result.DurationMS = time.Since(p.startTime).Milliseconds()
	p.result.ToolCalls = p.toolCalls
	return p.result
}

// SetResult records the run's terminal state.
func (p *Printer) SetResult(status string, exitCode ExitCode, finalMessage string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.result.Status = status
	p.result.ExitCode = exitCode
	p.result.FinalMessage = finalMessage
	if err != nil {
		p.result.Error = err.Error()
	}
	p.result.DurationMS = time.Since(p.startTime).Milliseconds()
}

// SetTokens records token usage.
func (p *Printer) SetTokens(tokens *types.TokenUsage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Tokens = tokens
}

// SetModel records which model served the run.
func (p *Printer) SetModel(model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Model = model
}

// IncrementSteps bumps the iteration counter.
func (p *Printer) IncrementSteps() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Steps++
}

// PrintFinalResult emits the summary document (json format only).
func (p *Printer) PrintFinalResult() {
	if p.format != OutputJSON {
		return
	}
	data, err := json.MarshalIndent(p.GetResult(), "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(p.writer, string(data))
}

func (p *Printer) handleEvent(e event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.format {
	case OutputText:
		p.printText(e)
	case OutputJSON:
		// json prints nothing until the end; events only feed the result.
		p.trackEvent(e)
	case OutputJSONL:
		p.printJSONL(e)
	}
}

// printText renders one event for a human watching the terminal.
func (p *Printer) printText(e event.Event) {
	if p.quiet {
		// Quiet mode passes through assistant text and nothing else.
		if e.Type == event.MessagePartUpdated {
			if data, ok := e.Data.(event.MessagePartUpdatedData); ok && data.Delta != "" {
				fmt.Fprint(p.writer, data.Delta)
			}
		}
		return
	}

	switch e.Type {
	case event.SessionCreated:
		if data, ok := e.Data.(event.SessionCreatedData); ok && data.Info != nil {
			fmt.Fprintf(p.writer, "[session:%s] Starting...\n", truncateID(data.Info.ID))
		}

	case event.SessionStatus:
		if data, ok := e.Data.(event.SessionStatusData); ok && data.Status.Type == "idle" {
			fmt.Fprintf(p.writer, "\n[done] Session completed in %s", formatDuration(time.Since(p.startTime)))
			if p.result.Tokens != nil {
				fmt.Fprintf(p.writer, " (input: %d tokens, output: %d tokens)",
					p.result.Tokens.Input, p.result.Tokens.Output)
			}
			fmt.Fprintln(p.writer)
		}

	case event.MessageCreated:
		if data, ok := e.Data.(event.MessageCreatedData); ok && data.Info != nil {
			if data.Info.Role == "assistant" && p.verbose {
				fmt.Fprintf(p.writer, "[assistant] Thinking...\n")
			}
		}

	case event.MessagePartUpdated:
		if data, ok := e.Data.(event.MessagePartUpdatedData); ok {
			switch part := data.Part.(type) {
			case *types.TextPart:
				if data.Delta != "" {
					fmt.Fprint(p.writer, data.Delta)
					p.lastTextDelta = data.Delta
				}
			case *types.ToolPart:
				p.printToolPart(part)
			}
		}

	case event.PermissionUpdated:
		if data, ok := e.Data.(event.PermissionUpdatedData); ok && p.verbose {
			fmt.Fprintf(p.writer, "[permission] %s: %s (auto-approved)\n",
				data.PermissionType, data.Title)
		}

	case event.FileEdited:
		if data, ok := e.Data.(event.FileEditedData); ok && p.verbose {
			fmt.Fprintf(p.writer, "[file] Edited: %s\n", data.File)
		}

	case event.SessionError:
		if data, ok := e.Data.(event.SessionErrorData); ok && data.Error != nil {
			fmt.Fprintf(p.writer, "[error] %s\n", data.Error.Data.Message)
		}
	}
}

// printToolPart renders a tool lifecycle transition.
func (p *Printer) printToolPart(part *types.ToolPart) {
	switch part.State.Status {
	case "pending":
		if p.verbose {
			fmt.Fprintf(p.writer, "\n[tool:%s] Starting...\n", part.Tool)
		}
	case "running":
		if info := describeToolCall(part); info != "" {
			fmt.Fprintf(p.writer, "\n[tool:%s] %s\n", part.Tool, info)
		}
	case "completed":
		if p.verbose && part.State.Output != "" {
			fmt.Fprintf(p.writer, "[tool:%s] Done\n", part.Tool)
		}
	case "error":
		fmt.Fprintf(p.writer, "[tool:%s] Error: %s\n", part.Tool, part.State.Error)
	}
}

// printJSONL emits one event per line, filtered unless verbose.
func (p *Printer) printJSONL(e event.Event) {
	p.trackEvent(e)

	if !p.verbose && !isImportantEvent(e.Type) {
		return
	}

	data, err := json.Marshal(&Event{
		Type:      string(e.Type),
		Timestamp: time.Now(),
		Data:      e.Data,
	})
	if err != nil {
		return
	}
	fmt.Fprintln(p.writer, string(data))
}

// trackEvent folds events into the accumulating result.
func (p *Printer) trackEvent(e event.Event) {
	switch e.Type {
	case event.MessageUpdated:
		if data, ok := e.Data.(event.MessageUpdatedData); ok && data.Info != nil {
			if data.Info.Role == "assistant" && data.Info.Tokens != nil {
				p.result.Tokens = data.Info.Tokens
			}
		}

	case event.MessagePartUpdated:
		if data, ok := e.Data.(event.MessagePartUpdatedData); ok {
			switch part := data.Part.(type) {
			case *types.TextPart:
				// A full (non-delta) text part is the message's final text.
				if data.Delta == "" && part.Text != "" {
					p.result.FinalMessage = part.Text
				}
			case *types.ToolPart:
				p.trackToolCall(part)
			}
		}

	case event.SessionDiff:
		if data, ok := e.Data.(event.SessionDiffData); ok {
			p.result.Diffs = make([]FileDiff, len(data.Diff))
			for i, diff := range data.Diff {
				p.result.Diffs[i] = FileDiff{
					File:      diff.File,
					Additions: diff.Additions,
					Deletions: diff.Deletions,
				}
			}
		}
	}
}

func (p *Printer) trackToolCall(part *types.ToolPart) {
	if part.State.Status != "completed" && part.State.Status != "error" {
		return
	}
	p.toolCalls = append(p.toolCalls, ToolCall{
		Tool:   part.Tool,
		Input:  part.State.Input,
		Output: truncateOutput(part.State.Output, 500),
		Error:  part.State.Error,
	})
}

func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func truncateOutput(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

// describeToolCall gives one line of context for a running tool.
func describeToolCall(part *types.ToolPart) string {
	input := part.State.Input
	if input == nil {
		return ""
	}

	switch part.Tool {
	case "read":
		if path, ok := input["filePath"].(string); ok {
			return fmt.Sprintf("Reading %s", path)
		}
	case "write":
		if path, ok := input["filePath"].(string); ok {
			return fmt.Sprintf("Writing %s", path)
		}
	case "edit":
		if path, ok := input["filePath"].(string); ok {
			return fmt.Sprintf("Editing %s", path)
		}
	case "bash":
		if cmd, ok := input["command"].(string); ok {
			cmd = strings.Split(cmd, "\n")[0]
			if len(cmd) > 60 {
				cmd = cmd[:60] + "..."
			}
			return fmt.Sprintf("$ %s", cmd)
		}
	case "glob":
		if pattern, ok := input["pattern"].(string); ok {
			return fmt.Sprintf("Searching: %s", pattern)
		}
	case "grep":
		if pattern, ok := input["pattern"].(string); ok {
			return fmt.Sprintf("Grepping: %s", pattern)
		}
	case "webfetch":
		if url, ok := input["url"].(string); ok {
			return fmt.Sprintf("Fetching: %s", url)
		}
	}
	return ""
}

// isImportantEvent selects the jsonl events worth emitting by default.
func isImportantEvent(eventType event.EventType) bool {
	switch eventType {
	case event.SessionCreated,
		event.SessionStatus,
		event.SessionError,
		event.SessionDiff,
		event.MessageCreated,
		event.MessagePartUpdated,
		event.PermissionUpdated,
		event.FileEdited:
		return true
	default:
		return false
	}
}
