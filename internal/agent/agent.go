// Package agent defines specialist agent configurations and the registry
// that resolves them.
package agent

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agentcore/orchestrator/internal/permission"
)

// Agent is one role configuration: its prompt, tool set, permission
// policy, and optional model override.
type Agent struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Mode        Mode            `json:"mode"`
	BuiltIn     bool            `json:"builtIn"`
	Permission  AgentPermission `json:"permission"`
	Tools       map[string]bool `json:"tools"`
	Options     map[string]any  `json:"options,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	TopP        float64         `json:"topP,omitempty"`
	Model       *ModelRef       `json:"model,omitempty"`
	Prompt      string          `json:"prompt,omitempty"`
	Color       string          `json:"color,omitempty"`
}

// Mode says where an agent may run: driving a session, delegated to,
// or both.
type Mode string

const (
	ModePrimary  Mode = "primary"
	ModeSubagent Mode = "subagent"
	ModeAll      Mode = "all"
)

// ModelRef pins an agent to a provider/model pair.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// AgentPermission is the agent-scoped permission policy; empty fields
// fall back to asking.
type AgentPermission struct {
	Edit        permission.PermissionAction            `json:"edit,omitempty"`
	Bash        map[string]permission.PermissionAction `json:"bash,omitempty"`
	WebFetch    permission.PermissionAction            `json:"webfetch,omitempty"`
	ExternalDir permission.PermissionAction            `json:"external_directory,omitempty"`
	DoomLoop    permission.PermissionAction            `json:"doom_loop,omitempty"`
}

// ToolEnabled reports whether this agent may use a tool. Exact entries
// win over wildcard patterns; unlisted tools default to enabled.
func (a *Agent) ToolEnabled(toolID string) bool {
	if enabled, ok := a.Tools[toolID]; ok {
		return enabled
	}
	for pattern, enabled := range a.Tools {
		if matchWildcard(pattern, toolID) {
			return enabled
		}
	}
	return true
}

// CheckBashPermission resolves the agent's action for a shell command.
func (a *Agent) CheckBashPermission(command string) permission.PermissionAction {
	for pattern, action := range a.Permission.Bash {
		if matchWildcard(pattern, command) {
			return action
		}
	}
	return permission.ActionAsk
}

// GetPermission resolves the agent's action for a permission type.
func (a *Agent) GetPermission(permType permission.PermissionType) permission.PermissionAction {
	var action permission.PermissionAction
	switch permType {
	case permission.PermEdit:
		action = a.Permission.Edit
	case permission.PermWebFetch:
		action = a.Permission.WebFetch
	case permission.PermExternalDir:
		action = a.Permission.ExternalDir
	case permission.PermDoomLoop:
		action = a.Permission.DoomLoop
	}
	if action == "" {
		return permission.ActionAsk
	}
	return action
}

// IsPrimary reports whether the agent may drive a session.
func (a *Agent) IsPrimary() bool {
	return a.Mode == ModePrimary || a.Mode == ModeAll
}

// IsSubagent reports whether the agent may be delegated to.
func (a *Agent) IsSubagent() bool {
	return a.Mode == ModeSubagent || a.Mode == ModeAll
}

// Clone deep-copies the agent so a caller can specialize it without
// mutating the registry's copy.
func (a *Agent) Clone() *Agent {
	clone := &Agent{
		Name:        a.Name,
		Description: a.Description,
		Mode:        a.Mode,
		BuiltIn:     a.BuiltIn,
		Temperature: a.Temperature,
		TopP:        a.TopP,
		Prompt:      a.Prompt,
		Color:       a.Color,
		Permission: AgentPermission{
			Edit:        a.Permission.Edit,
			WebFetch:    a.Permission.WebFetch,
			ExternalDir: a.Permission.ExternalDir,
			DoomLoop:    a.Permission.DoomLoop,
		},
	}

	if a.Permission.Bash != nil {
		clone.Permission.Bash = make(map[string]permission.PermissionAction, len(a.Permission.Bash))
		for k, v := range a.Permission.Bash {
			clone.Permission.Bash[k] = v
		}
	}
	if a.Tools != nil {
		clone.Tools = make(map[string]bool, len(a.Tools))
		for k, v := range a.Tools {
			clone.Tools[k] = v
		}
	}
	if a.Options != nil {
		clone.Options = make(map[string]any, len(a.Options))
		for k, v := range a.Options {
			clone.Options[k] = v
		}
	}
	if a.Model != nil {
		ref := *a.Model
		clone.Model = &ref
	}
	return clone
}

// matchWildcard matches s against a glob-ish pattern. Plain prefix and
// suffix wildcards stay on fast string ops; anything fancier goes to
// doublestar.
func matchWildcard(pattern, s string) bool {
	if pattern == "*" {
		return true
	}
	if strings.Contains(pattern, "**") {
		matched, _ := doublestar.Match(pattern, s)
		return matched
	}
	if strings.HasSuffix(pattern, "*") && !strings.HasPrefix(pattern, "*") {
		return strings.HasPrefix(s, strings.TrimSuffix(pattern, "*"))
	}
	if strings.HasPrefix(pattern, "*") && !strings.HasSuffix(pattern, "*") {
		return strings.HasSuffix(s, strings.TrimPrefix(pattern, "*"))
	}
	if strings.Contains(pattern, "*") {
		matched, _ := doublestar.Match(pattern, s)
		return matched
	}
	return pattern == s
}

// BuiltInAgents is the default role set shipped with the orchestrator.
func BuiltInAgents() map[string]*Agent {
	return map[string]*Agent{
		"build": {
			Name:        "build",
			Description: "Primary agent for executing tasks, writing code, and making changes",
			Mode:        ModePrimary,
			BuiltIn:     true,
			Permission: AgentPermission{
				Edit:        permission.ActionAllow,
				Bash:        map[string]permission.PermissionAction{"*": permission.ActionAllow},
				WebFetch:    permission.ActionAllow,
				ExternalDir: permission.ActionAsk,
				DoomLoop:    permission.ActionAsk,
			},
			Tools: map[string]bool{
				"*": true,
			},
		},
		"plan": {
			Name:        "plan",
			Description: "Planning agent for analysis and exploration without making changes",
			Mode:        ModePrimary,
			BuiltIn:     true,
			Permission: AgentPermission{
				Edit: permission.ActionDeny,
				Bash: map[string]permission.PermissionAction{
					"grep*":      permission.ActionAllow,
					"find*":      permission.ActionAllow,
					"ls*":        permission.ActionAllow,
					"cat*":       permission.ActionAllow,
					"git status": permission.ActionAllow,
					"git diff*":  permission.ActionAllow,
					"git log*":   permission.ActionAllow,
					"*":          permission.ActionDeny,
				},
				WebFetch:    permission.ActionAllow,
				ExternalDir: permission.ActionDeny,
				DoomLoop:    permission.ActionDeny,
			},
			Tools: map[string]bool{
				"read":  true,
				"glob":  true,
				"grep":  true,
				"ls":    true,
				"bash":  true,
				"edit":  false,
				"write": false,
			},
		},
		"general": {
			Name:        "general",
			Description: "General-purpose subagent for searches and exploration",
			Mode:        ModeSubagent,
			BuiltIn:     true,
			Permission: AgentPermission{
				Edit:        permission.ActionDeny,
				Bash:        map[string]permission.PermissionAction{"*": permission.ActionDeny},
				WebFetch:    permission.ActionAllow,
				ExternalDir: permission.ActionDeny,
				DoomLoop:    permission.ActionDeny,
			},
			Tools: map[string]bool{
				"read":     true,
				"glob":     true,
				"grep":     true,
				"webfetch": true,
				"bash":     false,
				"edit":     false,
				"write":    false,
			},
		},
		"explore": {
			Name:        "explore",
			Description: "Fast agent specialized for codebase exploration",
			Mode:        ModeSubagent,
			BuiltIn:     true,
			Permission: AgentPermission{
				Edit:        permission.ActionDeny,
				Bash:        map[string]permission.PermissionAction{"*": permission.ActionDeny},
				WebFetch:    permission.ActionDeny,
				ExternalDir: permission.ActionDeny,
				DoomLoop:    permission.ActionDeny,
			},
			Tools: map[string]bool{
				"read": true,
				"glob": true,
				"grep": true,
				"ls":   true,
				"bash": false,
				"edit": false,
			},
		},
	}
}
