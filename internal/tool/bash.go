package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/agentcore/orchestrator/internal/permission"
)

const (
	DefaultBashTimeout = 120 * time.Second
	MaxBashTimeout     = 10 * time.Minute
	MaxOutputLength    = 30000
	SigkillTimeout     = 200 * time.Millisecond
)

const bashDescription = `Executes a bash command in a new shell process.

Usage:
- Command is required
- Optional timeout in milliseconds (max 600000)
- Provide a brief description of what the command does
- Output is captured from stdout and stderr
- Commands are run with process group for proper cleanup`

// BashTool runs shell commands under the session's permission policy.
type BashTool struct {
	workDir     string
	shell       string
	permChecker *permission.Checker
	permissions map[string]permission.PermissionAction // bash command patterns
	externalDir permission.PermissionAction            // action for paths outside workDir
}

// BashInput is the decoded input for the bash tool.
type BashInput struct {
	Command     string `json:"command"`
	Timeout     int    `json:"timeout,omitempty"` // milliseconds
	Description string `json:"description"`
}

// BashToolOption configures the bash tool.
type BashToolOption func(*BashTool)

// WithPermissionChecker sets the permission checker for the bash tool.
func WithPermissionChecker(checker *permission.Checker) BashToolOption {
	return func(t *BashTool) { t.permChecker = checker }
}

// WithBashPermissions sets the bash command permission patterns.
func WithBashPermissions(perms map[string]permission.PermissionAction) BashToolOption {
	return func(t *BashTool) { t.permissions = perms }
}

// WithExternalDirAction sets the action for external directory access.
func WithExternalDirAction(action permission.PermissionAction) BashToolOption {
	return func(t *BashTool) { t.externalDir = action }
}

// NewBashTool creates a bash tool rooted at workDir.
func NewBashTool(workDir string, opts ...BashToolOption) *BashTool {
	t := &BashTool{
		workDir:     workDir,
		shell:       detectShell(),
		permissions: make(map[string]permission.PermissionAction),
		externalDir: permission.ActionAsk,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// detectShell picks the user's shell, skipping shells whose syntax is not
// POSIX-compatible enough for generated commands.
func detectShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		switch s {
		case "/bin/fish", "/usr/bin/fish", "/bin/nu", "/usr/bin/nu":
		default:
			return s
		}
	}

	switch runtime.GOOS {
	case "darwin":
		return "/bin/zsh"
	case "windows":
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}

	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}

func (t *BashTool) ID() string          { return "bash" }
func (t *BashTool) Description() string { return bashDescription }

func (t *BashTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "The command to execute"
			},
			"timeout": {
				"type": "integer",
				"description": "Optional timeout in milliseconds (max 600000)"
			},
			"description": {
				"type": "string",
				"description": "Brief description of what this command does"
			}
		},
		"required": ["command", "description"]
	}`)
}

func (t *BashTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params BashInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if t.permChecker != nil && toolCtx != nil {
		if err := t.checkPermissions(ctx, params.Command, toolCtx); err != nil {
			return nil, err
		}
	}

	timeout := DefaultBashTimeout
	if params.Timeout > 0 {
		timeout = min(time.Duration(params.Timeout)*time.Millisecond, MaxBashTimeout)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(cmdCtx, t.shell, "/c", params.Command)
	} else {
		cmd = exec.CommandContext(cmdCtx, t.shell, "-c", params.Command)
	}

	if toolCtx != nil && toolCtx.WorkDir != "" {
		cmd.Dir = toolCtx.WorkDir
	} else if t.workDir != "" {
		cmd.Dir = t.workDir
	}
	cmd.Env = os.Environ()

	// Own process group on Unix, so cancellation reaps children too.
	if runtime.GOOS != "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		cmd.Cancel = func() error {
			t.killProcess(cmd)
			return nil
		}
		cmd.WaitDelay = time.Second
	}

	if toolCtx != nil {
		toolCtx.SetMetadata(params.Description, map[string]any{
			"output":      "",
			"description": params.Description,
		})
	}

	output, err := cmd.CombinedOutput()
	timedOut := cmdCtx.Err() == context.DeadlineExceeded

	captured := string(output)
	if len(captured) > MaxOutputLength {
		captured = captured[:MaxOutputLength] + "\n\n(Output truncated)"
	}
	if timedOut {
		captured += fmt.Sprintf("\n\n(Command timed out after %v)", timeout)
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil && !timedOut {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			captured += fmt.Sprintf("\n\nError: %v", err)
		}
	}

	title := params.Description
	if title == "" {
		title = "Run command"
	}

	return &Result{
		Title:  title,
		Output: captured,
		Metadata: map[string]any{
			"output":      captured,
			"exit":        exitCode,
			"description": params.Description,
		},
	}, nil
}

// killProcess terminates the command's whole process group: SIGTERM,
// a short grace period, then SIGKILL.
func (t *BashTool) killProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid

	if runtime.GOOS == "windows" {
		exec.Command("taskkill", "/pid", fmt.Sprint(pid), "/f", "/t").Run()
		return
	}

	syscall.Kill(-pid, syscall.SIGTERM)
	time.Sleep(SigkillTimeout)
	if cmd.ProcessState == nil {
		syscall.Kill(-pid, syscall.SIGKILL)
	}
}

func (t *BashTool) EinoTool() einotool.InvokableTool {
	return &einoAdapter{tool: t}
}

// checkPermissions gates the command on the permission policy: external
// path access first, then per-command pattern matching, batching any
// patterns that need an interactive answer into a single Ask.
func (t *BashTool) checkPermissions(ctx context.Context, command string, toolCtx *Context) error {
	commands, err := permission.ParseBashCommand(command)
	if err != nil {
		// Unparseable commands always need an explicit answer.
		return t.permChecker.Ask(ctx, permission.Request{
			Type:      permission.PermBash,
			Pattern:   []string{command},
			SessionID: toolCtx.SessionID,
			MessageID: toolCtx.MessageID,
			CallID:    toolCtx.CallID,
			Title:     command,
			Metadata: map[string]any{
				"command":      command,
				"parse_failed": true,
			},
		})
	}

	workDir := t.workDir
	if toolCtx.WorkDir != "" {
		workDir = toolCtx.WorkDir
	}

	var askPatterns []string
	for _, cmd := range commands {
		if permission.IsDangerousCommand(cmd.Name) {
			if err := t.checkExternalPaths(ctx, cmd, command, workDir, toolCtx); err != nil {
				return err
			}
		}
		if cmd.Name == "cd" {
			continue // path already validated above
		}

		switch permission.MatchBashPermission(cmd, t.permissions) {
		case permission.ActionDeny:
			return &permission.RejectedError{
				SessionID: toolCtx.SessionID,
				Type:      permission.PermBash,
				CallID:    toolCtx.CallID,
				Message:   fmt.Sprintf("Command not allowed: %s", cmd.Name),
				Metadata: map[string]any{
					"command":     command,
					"permissions": t.permissions,
				},
			}
		case permission.ActionAsk:
			askPatterns = append(askPatterns, permission.BuildPattern(cmd))
		}
	}

	if len(askPatterns) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	unique := askPatterns[:0]
	for _, p := range askPatterns {
		if !seen[p] {
			seen[p] = true
			unique = append(unique, p)
		}
	}

	return t.permChecker.Ask(ctx, permission.Request{
		Type:      permission.PermBash,
		Pattern:   unique,
		SessionID: toolCtx.SessionID,
		MessageID: toolCtx.MessageID,
		CallID:    toolCtx.CallID,
		Title:     command,
		Metadata: map[string]any{
			"command":  command,
			"patterns": unique,
		},
	})
}

// checkExternalPaths applies the external-directory policy to every path a
// file-mutating command references outside workDir.
func (t *BashTool) checkExternalPaths(ctx context.Context, cmd permission.BashCommand, raw, workDir string, toolCtx *Context) error {
	for _, p := range permission.ExtractPaths(cmd) {
		resolved, err := permission.ResolvePath(ctx, p, workDir)
		if err != nil {
			continue
		}
		if permission.IsWithinDir(resolved, workDir) {
			continue
		}

		switch t.externalDir {
		case permission.ActionDeny:
			return &permission.RejectedError{
				SessionID: toolCtx.SessionID,
				Type:      permission.PermExternalDir,
				CallID:    toolCtx.CallID,
				Message:   fmt.Sprintf("Command references paths outside of %s", workDir),
				Metadata: map[string]any{
					"command": raw,
					"path":    resolved,
				},
			}
		case permission.ActionAsk:
			err := t.permChecker.Ask(ctx, permission.Request{
				Type:      permission.PermExternalDir,
				Pattern:   []string{filepath.Dir(resolved), filepath.Join(filepath.Dir(resolved), "*")},
				SessionID: toolCtx.SessionID,
				MessageID: toolCtx.MessageID,
				CallID:    toolCtx.CallID,
				Title:     fmt.Sprintf("Command references paths outside of %s", workDir),
				Metadata: map[string]any{
					"command": raw,
					"path":    resolved,
				},
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
