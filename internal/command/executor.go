// Package command implements user-defined slash commands: prompt
// templates loaded from config and markdown files, expanded with
// arguments at invocation time.
package command

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/agentcore/orchestrator/pkg/types"
)

// Command is one loaded command definition.
type Command struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Template    string            `json:"template"`
	Agent       string            `json:"agent,omitempty"`
	Model       string            `json:"model,omitempty"`
	Subtask     bool              `json:"subtask,omitempty"`
	Source      string            `json:"source,omitempty"` // "config" or "file"
	Variables   map[string]string `json:"variables,omitempty"`
}

// ExecuteResult is the expanded prompt plus the command's routing hints.
type ExecuteResult struct {
	Prompt      string `json:"prompt"`
	Agent       string `json:"agent,omitempty"`
	Model       string `json:"model,omitempty"`
	Subtask     bool   `json:"subtask,omitempty"`
	CommandName string `json:"commandName"`
}

// Executor loads command definitions and expands them.
type Executor struct {
	workDir   string
	config    *types.Config
	commands  map[string]*Command
	variables map[string]string
}

// NewExecutor creates an executor with commands loaded from the config
// and from the project's .orchestrator/command directory.
func NewExecutor(workDir string, config *types.Config) *Executor {
	e := &Executor{
		workDir:   workDir,
		config:    config,
		commands:  make(map[string]*Command),
		variables: make(map[string]string),
	}
	e.loadFromConfig()
	e.loadFromFiles()
	e.loadVariables()
	return e
}

func (e *Executor) loadFromConfig() {
	if e.config == nil || e.config.Command == nil {
		return
	}
	for name, cfg := range e.config.Command {
		e.commands[name] = &Command{
			Name:        name,
			Description: cfg.Description,
			Template:    cfg.Template,
			Agent:       cfg.Agent,
			Model:       cfg.Model,
			Subtask:     cfg.Subtask,
			Source:      "config",
		}
	}
}

// loadFromFiles picks up .md files under .orchestrator/command;
// subdirectories become ":"-separated name segments.
func (e *Executor) loadFromFiles() {
	commandDir := filepath.Join(e.workDir, ".orchestrator", "command")
	if _, err := os.Stat(commandDir); os.IsNotExist(err) {
		return
	}

	_ = filepath.Walk(commandDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}

		cmd, parseErr := parseMarkdownCommand(path)
		if parseErr != nil {
			return nil // a broken definition never blocks the rest
		}

		relPath, _ := filepath.Rel(commandDir, path)
		name := strings.TrimSuffix(relPath, ".md")
		name = strings.ReplaceAll(name, string(filepath.Separator), ":")

		cmd.Name = name
		cmd.Source = "file"
		e.commands[name] = cmd
		return nil
	})
}

// frontmatter is the optional YAML header of a command file.
type frontmatter struct {
	Description string `yaml:"description"`
	Agent       string `yaml:"agent"`
	Model       string `yaml:"model"`
	Subtask     bool   `yaml:"subtask"`
}

// parseMarkdownCommand splits a command file into YAML frontmatter and
// the prompt template body. A file without frontmatter is all template.
func parseMarkdownCommand(path string) (*Command, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	text := string(content)
	cmd := &Command{Template: text}

	rest, ok := strings.CutPrefix(text, "---\n")
	if !ok {
		return cmd, nil
	}
	header, body, ok := strings.Cut(rest, "\n---")
	if !ok {
		return cmd, nil
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return cmd, nil // malformed header reads as plain template
	}
	cmd.Description = fm.Description
	cmd.Agent = fm.Agent
	cmd.Model = fm.Model
	cmd.Subtask = fm.Subtask
	cmd.Template = strings.TrimSpace(body)
	return cmd, nil
}

func (e *Executor) loadVariables() {
	if e.config == nil || e.config.PromptVariables == nil {
		return
	}
	for k, v := range e.config.PromptVariables {
		e.variables[k] = v
	}
}

// List returns every loaded command.
func (e *Executor) List() []*Command {
	commands := make([]*Command, 0, len(e.commands))
	for _, cmd := range e.commands {
		commands = append(commands, cmd)
	}
	return commands
}

// Get looks a command up by name.
func (e *Executor) Get(name string) (*Command, bool) {
	cmd, ok := e.commands[name]
	return cmd, ok
}

// Execute expands a command's template against the given argument
// string and returns the finished prompt.
func (e *Executor) Execute(ctx context.Context, name string, args string) (*ExecuteResult, error) {
	cmd, ok := e.commands[name]
	if !ok {
		return nil, fmt.Errorf("command not found: %s", name)
	}

	parsedArgs := parseArguments(args)
	prompt, err := e.render(cmd.Template, e.templateContext(parsedArgs))
	if err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}

	return &ExecuteResult{
		Prompt:      prompt,
		Agent:       cmd.Agent,
		Model:       cmd.Model,
		Subtask:     cmd.Subtask,
		CommandName: cmd.Name,
	}, nil
}

var namedArgRe = regexp.MustCompile(`--(\w+)(?:=(\S+)|(?:\s+(\S+))?)`)

// parseArguments decodes the raw argument string three ways at once:
// the whole input ("input"), positional fields ("1", "2", ...), and
// --name[=value] flags (bare flags read as "true").
func parseArguments(args string) map[string]string {
	result := map[string]string{"input": strings.TrimSpace(args)}

	for i, part := range strings.Fields(args) {
		result[fmt.Sprintf("%d", i+1)] = part
	}

	for _, match := range namedArgRe.FindAllStringSubmatch(args, -1) {
		value := match[2]
		if value == "" {
			value = match[3]
		}
		if value == "" {
			value = "true"
		}
		result[match[1]] = value
	}
	return result
}

// templateContext assembles what a template can reference: arguments,
// configured variables, the environment, and the working directory.
func (e *Executor) templateContext(args map[string]string) map[string]any {
	ctx := map[string]any{
		"args":    args,
		"input":   args["input"],
		"vars":    e.variables,
		"env":     envMap(),
		"workDir": e.workDir,
	}
	for k, v := range args {
		if _, err := fmt.Sscanf(k, "%d", new(int)); err == nil {
			ctx[k] = v
		}
	}
	for k, v := range e.variables {
		ctx["var_"+k] = v
	}
	return ctx
}

// render expands shell-style $var/${var} references first, then runs
// the result as a Go template. A template that fails to parse or
// execute degrades to the shell-expanded text instead of erroring, so
// a prompt containing stray braces still works.
func (e *Executor) render(tmplStr string, ctx map[string]any) (string, error) {
	tmplStr = expandDollarVars(tmplStr, ctx)

	tmpl, err := template.New("command").Funcs(templateFuncs()).Parse(tmplStr)
	if err != nil {
		return tmplStr, nil
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return tmplStr, nil
	}
	return buf.String(), nil
}

var (
	bracedVarRe = regexp.MustCompile(`\$\{(\w+)\}`)
	bareVarRe   = regexp.MustCompile(`\$(\w+)`)
)

// expandDollarVars substitutes ${name} and $name from the context,
// leaving unknown references untouched.
func expandDollarVars(s string, ctx map[string]any) string {
	lookup := func(name, original string) string {
		if val, ok := ctx[name]; ok {
			return fmt.Sprint(val)
		}
		if args, ok := ctx["args"].(map[string]string); ok {
			if val, ok := args[name]; ok {
				return val
			}
		}
		return original
	}

	s = bracedVarRe.ReplaceAllStringFunc(s, func(match string) string {
		return lookup(match[2:len(match)-1], match)
	})
	return bareVarRe.ReplaceAllStringFunc(s, func(match string) string {
		return lookup(match[1:], match)
	})
}

// templateFuncs is the function set available inside command templates.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"env": os.Getenv,
		"default": func(defaultVal, val string) string {
			if val == "" {
				return defaultVal
			}
			return val
		},
		"trim":    strings.TrimSpace,
		"upper":   strings.ToUpper,
		"lower":   strings.ToLower,
		"replace": strings.ReplaceAll,
		"split":   strings.Split,
		"join":    strings.Join,
	}
}

func envMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// AddCommand adds or replaces a command.
func (e *Executor) AddCommand(cmd *Command) {
	e.commands[cmd.Name] = cmd
}

// RemoveCommand drops a command by name.
func (e *Executor) RemoveCommand(name string) bool {
	if _, ok := e.commands[name]; ok {
		delete(e.commands, name)
		return true
	}
	return false
}

// Reload re-reads commands from config and files.
func (e *Executor) Reload() {
	e.commands = make(map[string]*Command)
	e.loadFromConfig()
	e.loadFromFiles()
	e.loadVariables()
}

// BuiltinCommands lists the commands handled by the session layer
// itself rather than by template expansion.
func BuiltinCommands() []*Command {
	return []*Command{
		{Name: "help", Description: "Show available commands and help information", Source: "builtin"},
		{Name: "clear", Description: "Clear the current conversation", Source: "builtin"},
		{Name: "compact", Description: "Compact the conversation to save context", Source: "builtin"},
		{Name: "reset", Description: "Reset the session to its initial state", Source: "builtin"},
		{Name: "undo", Description: "Undo the last message", Source: "builtin"},
		{Name: "share", Description: "Share the current session", Source: "builtin"},
		{Name: "export", Description: "Export the conversation", Source: "builtin"},
	}
}
