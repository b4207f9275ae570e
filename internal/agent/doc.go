// Package agent defines the specialist roles the orchestrator can run
// and delegate to, plus the registry that resolves them.
//
// # Roles
//
// Four roles ship built-in:
//
//   - build: the default primary agent; full tool access, edits allowed.
//   - plan: primary agent for read-only analysis; mutating tools and
//     commands are denied.
//   - general: delegated-to subagent for searches and exploration.
//   - explore: a leaner delegated-to subagent for codebase exploration.
//
// A role's Mode says where it may run: ModePrimary (drives a session),
// ModeSubagent (reachable only through the delegation tool), or ModeAll.
//
// # Tool access
//
// Each agent carries a Tools map keyed by tool ID or wildcard pattern;
// [Agent.ToolEnabled] resolves it with exact entries winning over
// patterns and unlisted tools defaulting to enabled:
//
//	agent.Tools = map[string]bool{
//	    "*":     true,  // everything on...
//	    "bash":  false, // ...except the shell
//	    "mcp_*": true,  // external MCP tools stay on
//	}
//
// # Permissions
//
// [AgentPermission] scopes the permission policy per agent: file edits,
// web fetches, external-directory access, doom-loop handling, and a
// pattern map for shell commands. Every action is allow, deny, or ask.
//
// # Registry
//
// [Registry] is the thread-safe role catalog. It starts seeded with the
// built-ins; [Registry.LoadFromConfig] layers user configuration on top,
// cloning any built-in before overriding it so the shipped definitions
// stay intact:
//
//	registry := agent.NewRegistry()
//	registry.LoadFromConfig(map[string]agent.AgentConfig{
//	    "build":  {Temperature: 0.7},
//	    "custom": {Description: "Custom agent", Mode: agent.ModePrimary},
//	})
package agent
