// Package rule evaluates policy Rules against a pending tool call, the way
// internal/permission evaluates permission actions, but for predicate-based
// guardrails (forbidden paths, forbidden commands, forbidden content)
// instead of allow/deny/ask prompts.
package rule

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agentcore/orchestrator/pkg/types"
)

// Violation is a Rule match, carrying enough context to report or block.
type Violation struct {
	Rule    types.Rule
	Message string
}

// Engine holds the active rule set and evaluates it against tool calls.
type Engine struct {
	rules []types.Rule
}

// NewEngine constructs an Engine over the given rules. Rule order is
// preserved; EvaluateFile/EvaluateCommand/EvaluateContent collect every
// matching rule of their scope, and Blocking picks the first error-severity
// match among them.
func NewEngine(rules []types.Rule) *Engine {
	return &Engine{rules: append([]types.Rule(nil), rules...)}
}

// Add appends a rule to the engine's active set.
func (e *Engine) Add(r types.Rule) {
	e.rules = append(e.rules, r)
}

// Rules returns the active rule set.
func (e *Engine) Rules() []types.Rule {
	return e.rules
}

// EvaluateFile checks rules scoped to RuleScopeFile whose Predicate is a
// doublestar glob matched against path.
func (e *Engine) EvaluateFile(toolName, path string) []Violation {
	return e.evaluate(toolName, types.RuleScopeFile, func(r types.Rule) bool {
		ok, _ := doublestar.Match(r.Predicate, path)
		return ok
	})
}

// EvaluateCommand checks rules scoped to RuleScopeCommand whose Predicate is
// matched as a prefix or substring of cmd.
func (e *Engine) EvaluateCommand(toolName, cmd string) []Violation {
	return e.evaluate(toolName, types.RuleScopeCommand, func(r types.Rule) bool {
		return strings.Contains(cmd, r.Predicate)
	})
}

// EvaluateContent checks rules scoped to RuleScopeContent whose Predicate is
// a substring match against content (e.g. a file's new body before a write).
func (e *Engine) EvaluateContent(toolName, content string) []Violation {
	return e.evaluate(toolName, types.RuleScopeContent, func(r types.Rule) bool {
		return strings.Contains(content, r.Predicate)
	})
}

func (e *Engine) evaluate(toolName string, scope types.RuleScope, match func(types.Rule) bool) []Violation {
	var violations []Violation
	for _, r := range e.rules {
		if r.Scope != scope {
			continue
		}
		if len(r.Tools) > 0 && !containsTool(r.Tools, toolName) {
			continue
		}
		if match(r) {
			violations = append(violations, Violation{
				Rule:    r,
				Message: fmt.Sprintf("%s: %s", r.ID, r.Message),
			})
		}
	}
	return violations
}

// Blocking reports whether any violation has error severity: only
// severity=error blocks the call. info/warn annotate but do not stop it.
func Blocking(violations []Violation) *Violation {
	for i := range violations {
		if violations[i].Rule.Severity == types.RuleError {
			return &violations[i]
		}
	}
	return nil
}

func containsTool(tools []string, name string) bool {
	for _, t := range tools {
		if t == name || t == "*" {
			return true
		}
	}
	return false
}
