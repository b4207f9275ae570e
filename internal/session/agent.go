package session

// Agent is the processing profile a sampling loop runs under: prompt,
// sampling knobs, iteration cap, tool set, permissions.
type Agent struct {
	// Name identifies the profile.
	Name string `json:"name"`

	// Prompt is the profile's base system prompt.
	Prompt string `json:"prompt"`

	// Temperature for LLM sampling.
	Temperature float64 `json:"temperature,omitempty"`

	// TopP for nucleus sampling.
	TopP float64 `json:"topP,omitempty"`

	// MaxSteps caps sampling-loop iterations.
	MaxSteps int `json:"maxSteps,omitempty"`

	// Tools whitelists tool IDs; empty means everything.
	Tools []string `json:"tools,omitempty"`

	// DisabledTools blacklists tool IDs; it wins over Tools.
	DisabledTools []string `json:"disabledTools,omitempty"`

	// Permission is the profile's permission policy.
	Permission AgentPermission `json:"permission,omitempty"`
}

// AgentPermission holds per-concern actions; each is "allow", "deny",
// or "ask" (the default).
type AgentPermission struct {
	// DoomLoop: what to do about repeated identical tool calls.
	DoomLoop string `json:"doomLoop,omitempty"`

	// Bash: shell command execution.
	Bash string `json:"bash,omitempty"`

	// Write: file mutation.
	Write string `json:"write,omitempty"`
}

// ToolEnabled resolves a tool against the profile: the blacklist wins,
// an empty whitelist enables everything, otherwise the whitelist decides.
func (a *Agent) ToolEnabled(toolID string) bool {
	for _, disabled := range a.DisabledTools {
		if disabled == toolID {
			return false
		}
	}
	if len(a.Tools) == 0 {
		return true
	}
	for _, enabled := range a.Tools {
		if enabled == toolID {
			return true
		}
	}
	return false
}

// DefaultAgent is the general-purpose profile.
func DefaultAgent() *Agent {
	return &Agent{
		Name:        "default",
		Temperature: 0.7,
		TopP:        1.0,
		MaxSteps:    25,
		Permission: AgentPermission{
			DoomLoop: "ask",
			Bash:     "ask",
			Write:    "ask",
		},
	}
}

// CodeAgent is tuned for implementation work: low temperature, a high
// iteration cap, writes allowed.
func CodeAgent() *Agent {
	return &Agent{
		Name:        "code",
		Temperature: 0.3,
		TopP:        0.95,
		MaxSteps:    100,
		Prompt: `You are an expert software engineer helping with coding tasks.
Focus on writing clean, maintainable code. Follow best practices and existing conventions in the codebase.
When making changes, prefer minimal modifications and explain your reasoning.`,
		Permission: AgentPermission{
			DoomLoop: "ask",
			Bash:     "ask",
			Write:    "allow",
		},
	}
}

// PlanAgent is read-only: analysis and decomposition with every
// mutating tool disabled.
func PlanAgent() *Agent {
	return &Agent{
		Name:        "plan",
		Temperature: 0.5,
		TopP:        1.0,
		MaxSteps:    20,
		Prompt: `You are a helpful assistant focused on planning and analysis.
Break down complex tasks into manageable steps and provide clear explanations.
Focus on understanding the problem before suggesting solutions.`,
		DisabledTools: []string{"write", "edit", "bash"},
		Permission: AgentPermission{
			DoomLoop: "deny",
			Bash:     "deny",
			Write:    "deny",
		},
	}
}
