// Package orchestrator implements the top-level task orchestrator:
// given a user task it asks the Smart Selector whether the task is
// strategic enough to warrant decomposition, retrieves relevant knowledge
// through the Self-Improvement Hooks, and — for strategic work — writes a
// planning document plus a Task Store root tracking one child task per
// specialist role before handing the decomposition to the Subagent
// Coordinator. Mechanical and implementation-tier tasks are left alone:
// the normal sampling loop runs them directly, including any `delegate`
// tool calls the model itself chooses to make.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agentcore/orchestrator/internal/agent"
	"github.com/agentcore/orchestrator/internal/coordinator"
	"github.com/agentcore/orchestrator/internal/selector"
	"github.com/agentcore/orchestrator/internal/selfimprove"
	"github.com/agentcore/orchestrator/internal/taskstore"
	"github.com/agentcore/orchestrator/pkg/types"
)

// MaxDecomposedRoles bounds how many specialist roles a strategic task is
// split across. It matches the Subagent Coordinator's own concurrency cap
// so a decomposition never queues more roles than can run at once.
const MaxDecomposedRoles = coordinator.DefaultConcurrency

// Plan is the CEO/Orchestrator's decision for one user task.
type Plan struct {
	Project  string
	TaskText string
	TaskType selector.TaskType

	// Complex is true when the task was classified strategic and a
	// decomposition into specialist subtasks was written. false means the
	// caller should run the task directly through the normal sampling loop.
	Complex bool

	// Document is the generated planning markdown, non-empty only when
	// Complex.
	Document string

	// RootFolder is the Task Store folder path of the root task tracking
	// this decomposition, non-empty only when Complex.
	RootFolder []string

	// Subtasks is the set of specialist dispatches for the Subagent
	// Coordinator, one per decomposed role.
	Subtasks []coordinator.SubagentTask

	// ChildFolders is the Task Store folder path for each entry in
	// Subtasks, at the same index.
	ChildFolders [][]string

	// RecentProjects is the per-project last-active aggregation handed to
	// Plan, kept so Execute's retry loop can re-retrieve knowledge with
	// the same scope.
	RecentProjects []selfimprove.RecentProject
}

// Orchestrator composes the Smart Selector, Task Store, Self-Improvement
// Hooks, Agent Registry, and Subagent Coordinator into the CEO/Orchestrator
// component.
type Orchestrator struct {
	selector    *selector.Selector
	coordinator *coordinator.Coordinator
	tasks       *taskstore.Store
	knowledge   *selfimprove.Hooks
	agents      *agent.Registry
}

// New creates an Orchestrator. know may be nil to disable knowledge
// retrieval from planning prompts (pre-task retrieval stays opt-in per
// retrieval is an explicit opt-in at each entry point).
func New(sel *selector.Selector, coord *coordinator.Coordinator, tasks *taskstore.Store, know *selfimprove.Hooks, agents *agent.Registry) *Orchestrator {
	return &Orchestrator{
		selector:    sel,
		coordinator: coord,
		tasks:       tasks,
		knowledge:   know,
		agents:      agents,
	}
}

// Plan classifies taskText with the Smart Selector (attempt 0, phase hint
// "planning") and, only for strategic work, decomposes it across up to
// MaxDecomposedRoles registered specialist roles: it creates a Task Store
// root plus one child task per role, retrieves relevant past knowledge to
// seed each subtask's context snippet, and renders a planning document
// recording the decisions. A strategic classification with no registered
// subagent roles falls back to Complex=false — there is nothing to
// delegate to.
func (o *Orchestrator) Plan(ctx context.Context, project, taskText string, recentProjects []selfimprove.RecentProject) (*Plan, error) {
	sel, err := o.selector.Select(ctx, taskText, "planning", 0)
	if err != nil {
		return nil, fmt.Errorf("smart selector classification failed: %w", err)
	}

	plan := &Plan{Project: project, TaskText: taskText, TaskType: sel.TaskType, RecentProjects: recentProjects}

	if sel.TaskType != selector.TaskStrategic {
		return plan, nil
	}

	roles := o.specialistRoles()
	if len(roles) == 0 {
		return plan, nil
	}

	var knowledgeSection string
	if o.knowledge != nil {
		entries := o.knowledge.Retrieve(ctx, taskText, recentProjects)
		knowledgeSection = selfimprove.InjectSection(entries)
	}

	if o.tasks == nil {
		return nil, fmt.Errorf("orchestrator: strategic task requires a Task Store")
	}

	_, rootFolder, err := o.tasks.CreateRoot(ctx, project, taskText, types.TaskPriorityHigh)
	if err != nil {
		return nil, fmt.Errorf("failed to create planning root task: %w", err)
	}
	plan.Complex = true
	plan.RootFolder = rootFolder

	var doc strings.Builder
	fmt.Fprintf(&doc, "# Plan: %s\n\n", taskText)
	if knowledgeSection != "" {
		doc.WriteString(knowledgeSection)
		doc.WriteString("\n")
	}
	doc.WriteString("## Delegation\n\n")

	for _, role := range roles {
		subPrompt := fmt.Sprintf("As the %s specialist, handle this part of the overall task: %s", role, taskText)

		child, childFolder, err := o.tasks.Create(ctx, project, fmt.Sprintf("%s: %s", role, taskText), types.TaskPriorityMedium, rootFolder)
		if err != nil {
			return nil, fmt.Errorf("failed to create subtask for role %s: %w", role, err)
		}
		fmt.Fprintf(&doc, "- **%s** (task `%s`): %s\n", role, child.ID, subPrompt)

		plan.Subtasks = append(plan.Subtasks, coordinator.SubagentTask{
			TaskID:         child.ID,
			Role:           role,
			Prompt:         subPrompt,
			ContextSnippet: knowledgeSection,
		})
		plan.ChildFolders = append(plan.ChildFolders, childFolder)
	}

	plan.Document = doc.String()
	return plan, nil
}

// specialistRoles returns up to MaxDecomposedRoles registered subagent role
// names, sorted for determinism (registry iteration order is not stable).
func (o *Orchestrator) specialistRoles() []string {
	if o.agents == nil {
		return nil
	}
	var roles []string
	for _, a := range o.agents.ListSubagents() {
		roles = append(roles, a.Name)
	}
	sort.Strings(roles)
	if len(roles) > MaxDecomposedRoles {
		roles = roles[:MaxDecomposedRoles]
	}
	return roles
}

// Execute dispatches plan.Subtasks through the Subagent Coordinator and
// reconciles each child task's status in the Task Store against its
// SubagentResult. A plan with no subtasks (Complex=false) is a no-op.
func (o *Orchestrator) Execute(ctx context.Context, parentSessionID string, plan *Plan) ([]coordinator.SubagentResult, error) {
	if plan == nil || len(plan.Subtasks) == 0 {
		return nil, nil
	}

	results, err := o.coordinator.Dispatch(ctx, parentSessionID, plan.Subtasks)
	if err != nil {
		return nil, err
	}

	for i := range results {
		if !results[i].Success && i < len(plan.Subtasks) {
			if retried, ok := o.retrySubtask(ctx, parentSessionID, plan, plan.Subtasks[i]); ok {
				results[i] = *retried
			}
		}
	}

	for i, res := range results {
		if o.tasks != nil && i < len(plan.ChildFolders) {
			status := types.TaskStatusCompleted
			if !res.Success {
				status = types.TaskStatusBlocked
			}
			summary := res.Summary
			_, _ = o.tasks.Update(ctx, plan.Project, plan.ChildFolders[i], func(t *types.Task) {
				t.Status = status
				if summary != "" {
					t.Notes = summary
				}
			})
		}

		// A subagent has no project of its own — it inherits the
		// parent's working directory — so its outcome is captured at
		// the parent's project.
		if o.knowledge != nil {
			role := ""
			title := res.TaskID
			if i < len(plan.Subtasks) {
				role = plan.Subtasks[i].Role
				title = plan.Subtasks[i].Prompt
			}
			reason := selfimprove.TerminationCompleted
			if !res.Success {
				reason = selfimprove.TerminationError
			}
			o.knowledge.Capture(ctx, selfimprove.TaskOutcome{
				Project:    plan.Project,
				Role:       role,
				Title:      title,
				Reason:     reason,
				ErrorClass: res.Error,
			})
		}
	}

	return results, nil
}

// retrySubtask re-attempts one failed specialist dispatch up to the
// Self-Improvement Hooks' attempt cap. Each attempt retrieves fresh
// knowledge for the failing prompt, injects it ahead of the subtask's
// context snippet, and raises the Smart Selector's attempt counter so the
// escalation contract (tier up, then budget up) picks the retry's model.
// Returns the first successful result, or ok=false once attempts run dry.
func (o *Orchestrator) retrySubtask(ctx context.Context, parentSessionID string, plan *Plan, task coordinator.SubagentTask) (*coordinator.SubagentResult, bool) {
	if o.knowledge == nil {
		return nil, false
	}

	attempt := 0
	for {
		rc, ok := o.knowledge.PrepareRetry(ctx, task.Prompt, attempt, plan.RecentProjects)
		if !ok {
			return nil, false
		}

		retry := task
		retry.ContextSnippet = joinSections(rc.KnowledgeSection, task.ContextSnippet)
		if sel, err := o.selector.Select(ctx, task.Prompt, "retry", rc.Attempt); err == nil {
			retry.Model = modelAliasForTier(sel.ModelTier)
		}

		results, err := o.coordinator.Dispatch(ctx, parentSessionID, []coordinator.SubagentTask{retry})
		if err == nil && len(results) == 1 && results[0].Success {
			res := results[0]
			return &res, true
		}
		attempt = rc.Attempt
	}
}

// joinSections stitches prompt sections, dropping empties.
func joinSections(sections ...string) string {
	var kept []string
	for _, s := range sections {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n")
}

// modelAliasForTier maps the selector's tier onto the subagent executor's
// model aliases.
func modelAliasForTier(tier selector.ModelTier) string {
	switch tier {
	case selector.TierSmall:
		return "haiku"
	case selector.TierLarge:
		return "opus"
	default:
		return "sonnet"
	}
}
