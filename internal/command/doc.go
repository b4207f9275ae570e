// Package command implements user-defined slash commands: named prompt
// templates that expand into a message for the sampling loop.
//
// # Sources
//
// Definitions come from two places, merged into one namespace:
//
//  1. The orchestrator config's "command" map.
//  2. Markdown files under .orchestrator/command/ — the file name (minus
//     .md) is the command name, with subdirectories joined by ":", so
//     git/commit.md becomes "git:commit".
//
// A markdown file may open with YAML frontmatter carrying description,
// agent, model, and subtask; the rest of the file is the template.
//
// # Expansion
//
// Argument text is parsed three ways: the whole string ($input),
// positional fields ($1, $2, ...), and --name[=value] flags. Templates
// may use shell-style $name/${name} references or full Go template
// syntax with helpers (env, default, trim, upper, lower, replace,
// split, join):
//
//	---
//	description: Review a pull request
//	agent: plan
//	---
//	Review PR #$1 with attention to {{ .args.focus | default "correctness" }}.
//
// A template that fails to parse degrades to its shell-expanded text
// rather than failing the command, since prompts often contain braces
// that were never meant as template syntax.
//
// # Builtins
//
// BuiltinCommands lists names (help, clear, compact, ...) the session
// layer intercepts itself; they never reach template expansion.
package command
