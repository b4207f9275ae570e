package permission

import (
	"strings"
)

// MatchBashPermission resolves the action for a parsed command, most
// specific pattern first: "git commit *", then "git *", then "git",
// then "*". Unmatched commands fall back to asking.
func MatchBashPermission(cmd BashCommand, permissions map[string]PermissionAction) PermissionAction {
	if cmd.Subcommand != "" {
		if action, ok := permissions[cmd.Name+" "+cmd.Subcommand+" *"]; ok {
			return action
		}
	}
	if action, ok := permissions[cmd.Name+" *"]; ok {
		return action
	}
	if action, ok := permissions[cmd.Name]; ok {
		return action
	}
	if action, ok := permissions["*"]; ok {
		return action
	}
	return ActionAsk
}

// MatchPattern reports whether a parsed command matches a stored pattern.
// Pattern grammar: "command subcommand *", "command *", "command", "*".
func MatchPattern(pattern string, cmd BashCommand) bool {
	parts := strings.Split(pattern, " ")
	if len(parts) == 0 {
		return false
	}

	if parts[0] == "*" && len(parts) == 1 {
		return true
	}
	if parts[0] != "*" && parts[0] != cmd.Name {
		return false
	}

	// A bare command pattern only matches a bare command.
	if len(parts) == 1 {
		return cmd.Name == parts[0] && len(cmd.Args) == 0
	}

	// Trailing "*" absorbs the rest after the fixed prefix matches.
	if parts[len(parts)-1] == "*" {
		for i := 1; i < len(parts)-1; i++ {
			argIndex := i - 1
			if argIndex >= len(cmd.Args) {
				return false
			}
			if parts[i] != "*" && parts[i] != cmd.Args[argIndex] {
				return false
			}
		}
		return true
	}

	// No wildcard: every argument must line up.
	if len(parts)-1 != len(cmd.Args) {
		return false
	}
	for i := 1; i < len(parts); i++ {
		if parts[i] != cmd.Args[i-1] {
			return false
		}
	}
	return true
}

// BuildPattern widens one command into the pattern a user would approve:
// "git commit -m msg" becomes "git commit *", "ls -la" becomes "ls *".
func BuildPattern(cmd BashCommand) string {
	if cmd.Subcommand != "" {
		return cmd.Name + " " + cmd.Subcommand + " *"
	}
	return cmd.Name + " *"
}

// BuildPatterns widens a command list, deduplicated, skipping "cd"
// (directory changes are policed by the external-path check instead).
func BuildPatterns(commands []BashCommand) []string {
	seen := make(map[string]bool)
	var patterns []string
	for _, cmd := range commands {
		if cmd.Name == "cd" {
			continue
		}
		pattern := BuildPattern(cmd)
		if !seen[pattern] {
			seen[pattern] = true
			patterns = append(patterns, pattern)
		}
	}
	return patterns
}
