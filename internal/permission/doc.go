// Package permission gates tool execution on user consent. File edits,
// web fetches, shell commands, and access outside the working directory
// each carry a policy action: allow, deny, or ask.
//
// # Checker
//
// The Checker is the blocking heart of the package. A tool call that
// needs consent parks on Checker.Ask until the user answers through the
// HTTP surface; "always" answers are remembered for the session.
//
//	checker := NewChecker()
//	err := checker.Check(ctx, Request{
//		Type:      PermBash,
//		SessionID: "session-123",
//		Pattern:   []string{"git *"},
//		Title:     "Execute git command",
//	}, ActionAsk)
//
// # Shell command analysis
//
// Shell lines are parsed with a real bash grammar (mvdan.cc/sh), so
// pipelines, &&-chains, and command substitutions all surface their
// commands to the policy. Each parsed command matches against wildcard
// patterns, most specific first:
//
//	"git commit *"  one subcommand
//	"git *"         any git invocation
//	"git"           the bare command only
//	"*"             everything
//
// File-mutating commands (rm, mv, chmod, ...) additionally have their
// path arguments resolved and checked against the working directory;
// paths escaping it go through the external-directory policy.
//
// # Doom loop detection
//
// DoomLoopDetector notices a session replaying the same tool call with
// identical input three times in a row, which usually means the model is
// stuck. The session layer turns a detection into a permission question
// rather than letting the loop burn iterations.
//
// # Agent policy
//
// AgentPermissions is the per-agent policy document:
//
//	permissions := AgentPermissions{
//		Edit:        ActionAsk,
//		WebFetch:    ActionAllow,
//		ExternalDir: ActionDeny,
//		Bash: map[string]PermissionAction{
//			"git *":  ActionAllow,
//			"sudo *": ActionDeny,
//		},
//	}
//
// Denials surface as *RejectedError so the session layer can report the
// refusal to the model as a structured tool result instead of crashing
// the run. Everything here is safe for concurrent use across sessions.
package permission
