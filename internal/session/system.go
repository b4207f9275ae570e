package session

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/agentcore/orchestrator/internal/memory"
	"github.com/agentcore/orchestrator/pkg/types"
)

// SystemPrompt assembles the per-call system prompt: provider header,
// agent prompt, model quirks, environment, merged conventions, and the
// tool policy preamble, in that order.
type SystemPrompt struct {
	session    *types.Session
	agent      *Agent
	modelID    string
	providerID string
	memory     *memory.Loader
}

// NewSystemPrompt creates a builder bound to the session's working
// directory; convention tiers resolve relative to it.
func NewSystemPrompt(session *types.Session, agent *Agent, providerID, modelID string) *SystemPrompt {
	workDir := ""
	if session != nil {
		workDir = session.Directory
	}
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	enterprise, project, directory := memory.Paths(workDir, workDir)

	return &SystemPrompt{
		session:    session,
		agent:      agent,
		modelID:    modelID,
		providerID: providerID,
		memory:     memory.NewLoader(enterprise, project, directory),
	}
}

// Build joins the prompt sections; empty sections drop out.
func (s *SystemPrompt) Build() string {
	var parts []string

	if header := s.providerHeader(); header != "" {
		parts = append(parts, header)
	}
	if s.agent != nil && s.agent.Prompt != "" {
		parts = append(parts, s.agent.Prompt)
	}
	if modelPrompt := s.modelPrompt(); modelPrompt != "" {
		parts = append(parts, modelPrompt)
	}
	parts = append(parts, s.environmentContext())

	if conv, err := s.memory.Load(); err == nil {
		if merged := conv.Merged(); merged != "" {
			parts = append(parts, merged)
		}
	}
	if toolInstructions := s.toolInstructions(); toolInstructions != "" {
		parts = append(parts, toolInstructions)
	}

	return strings.Join(parts, "\n\n")
}

// providerHeader opens the prompt in each vendor's expected register.
func (s *SystemPrompt) providerHeader() string {
	switch s.providerID {
	case "anthropic":
		return `You are Claude, an AI assistant made by Anthropic. You are helpful, harmless, and honest.

IMPORTANT: You have access to tools that can read, write, and execute commands on the user's computer. Use them responsibly.`

	case "openai":
		return `You are a helpful AI assistant with access to tools for reading, writing, and executing commands.

Use tools responsibly and follow user instructions carefully.`

	case "google":
		return `You are a helpful AI assistant with tool access.

You can read files, write code, and execute commands to help the user.`

	default:
		return ""
	}
}

// modelPrompt adds per-family working-style instructions.
func (s *SystemPrompt) modelPrompt() string {
	switch {
	case strings.Contains(s.modelID, "claude"):
		return `When using tools, be decisive and take action. Don't ask for confirmation unless absolutely necessary.

For file operations:
- Read files before editing to understand context
- Make minimal, focused changes
- Preserve existing code style and formatting`

	case strings.Contains(s.modelID, "gpt"):
		return `When working with files:
- Always read files before making changes
- Make precise, targeted edits
- Follow existing code conventions`

	case strings.Contains(s.modelID, "gemini"):
		return `For code tasks:
- Examine existing code structure first
- Make minimal necessary changes
- Maintain code style consistency`

	default:
		return ""
	}
}

// environmentContext describes where the agent is running.
func (s *SystemPrompt) environmentContext() string {
	workDir := ""
	if s.session != nil {
		workDir = s.session.Directory
	}
	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	var env strings.Builder
	env.WriteString("# Environment Information\n\n")
	fmt.Fprintf(&env, "Working Directory: %s\n", workDir)
	fmt.Fprintf(&env, "Current Date: %s\n", time.Now().Format("2006-01-02"))
	fmt.Fprintf(&env, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	if branch := gitBranch(workDir); branch != "" {
		fmt.Fprintf(&env, "Git Branch: %s\n", branch)
	}
	if projectType := detectProjectType(workDir); projectType != "" {
		fmt.Fprintf(&env, "Project Type: %s\n", projectType)
	}
	return env.String()
}

// toolInstructions is the policy preamble on tool usage.
func (s *SystemPrompt) toolInstructions() string {
	return `# Tool Usage Guidelines

1. **File Operations**
   - Use the read tool before editing files
   - Use edit for surgical changes, write for new files
   - Always provide absolute paths

2. **Bash Commands**
   - Prefer built-in tools over bash when possible
   - Include a description for every bash command
   - Handle errors gracefully

3. **Search**
   - Use glob for file discovery
   - Use grep for content search
   - Be specific with patterns to avoid noise

4. **Best Practices**
   - Work iteratively, verify changes work
   - Don't modify files you haven't read
   - Explain your reasoning before acting`
}

// gitBranch reads the checked-out branch, or "" outside a repository.
func gitBranch(dir string) string {
	if dir == "" {
		return ""
	}
	cmd := exec.Command("git", "branch", "--show-current")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// projectMarkers maps a language label to the files that betray it.
var projectMarkers = map[string][]string{
	"Node.js": {"package.json"},
	"Python":  {"pyproject.toml", "setup.py", "requirements.txt"},
	"Go":      {"go.mod"},
	"Rust":    {"Cargo.toml"},
	"Java":    {"pom.xml", "build.gradle"},
	"Ruby":    {"Gemfile"},
	"PHP":     {"composer.json"},
	"C#":      {"*.csproj", "*.sln"},
	"Elixir":  {"mix.exs"},
	"Haskell": {"*.cabal", "stack.yaml"},
}

// detectProjectType sniffs the project's primary stack from marker files.
func detectProjectType(dir string) string {
	if dir == "" {
		return ""
	}
	for projectType, files := range projectMarkers {
		for _, pattern := range files {
			if matches, _ := filepath.Glob(filepath.Join(dir, pattern)); len(matches) > 0 {
				return projectType
			}
		}
	}
	return ""
}

// BuildSystemMessage is Build under the name older call sites use.
func (s *SystemPrompt) BuildSystemMessage() string {
	return s.Build()
}

// WithCustomPrompt overrides the agent prompt from a CustomPrompt,
// reading file-typed prompts from disk and expanding {{var}} references.
func (s *SystemPrompt) WithCustomPrompt(custom *types.CustomPrompt) *SystemPrompt {
	if custom == nil {
		return s
	}

	apply := func(prompt string) {
		if s.agent == nil {
			s.agent = DefaultAgent()
		}
		s.agent.Prompt = expandPromptVars(prompt, custom.Variables)
	}

	switch custom.Type {
	case "file":
		if content, err := os.ReadFile(custom.Value); err == nil {
			apply(string(content))
		}
	case "inline":
		apply(custom.Value)
	}
	return s
}

// expandPromptVars substitutes {{key}} placeholders.
func expandPromptVars(prompt string, vars map[string]string) string {
	for key, value := range vars {
		prompt = strings.ReplaceAll(prompt, "{{"+key+"}}", value)
	}
	return prompt
}
