package tool

import (
	"context"
	"encoding/json"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/agentcore/orchestrator/internal/taskstore"
	"github.com/agentcore/orchestrator/pkg/types"
)

const taskwriteDescription = `Creates a task in the project's persistent task tree.

Usage:
- Tasks created here are durable and project-scoped, unlike the session todo list
- Only root-level tasks can be created from chat; nesting is done from the dashboard by moving tasks
- Provide a short, action-oriented title
- Priority is one of: low, medium, high, critical (default: medium)`

// ProjectResolver maps a session onto its project for project-scoped tools.
type ProjectResolver func(ctx context.Context, sessionID string) string

// TaskWriteTool is the chat-side entry into the task store. It creates
// root tasks only; hierarchy changes stay behind the dashboard's move
// operation so folder location remains the single source of truth.
type TaskWriteTool struct {
	store      *taskstore.Store
	projectFor ProjectResolver
}

// TaskWriteInput is the decoded input for the taskwrite tool.
type TaskWriteInput struct {
	Title    string `json:"title"`
	Priority string `json:"priority,omitempty"`
}

// NewTaskWriteTool creates the tool over a task store; projectFor resolves
// the calling session's project.
func NewTaskWriteTool(store *taskstore.Store, projectFor ProjectResolver) *TaskWriteTool {
	return &TaskWriteTool{store: store, projectFor: projectFor}
}

func (t *TaskWriteTool) ID() string          { return "taskwrite" }
func (t *TaskWriteTool) Description() string { return taskwriteDescription }

func (t *TaskWriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {
				"type": "string",
				"description": "Short, action-oriented task title"
			},
			"priority": {
				"type": "string",
				"enum": ["low", "medium", "high", "critical"],
				"description": "Task priority (default: medium)"
			}
		},
		"required": ["title"]
	}`)
}

func (t *TaskWriteTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params TaskWriteInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	project := ""
	if t.projectFor != nil && toolCtx != nil {
		project = t.projectFor(ctx, toolCtx.SessionID)
	}
	if project == "" {
		return nil, fmt.Errorf("no project resolved for this session")
	}

	task, folder, err := t.store.CreateRoot(ctx, project, params.Title, types.TaskPriority(params.Priority))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return &Result{
		Title:  fmt.Sprintf("Created task %s", task.ID[:8]),
		Output: fmt.Sprintf("Created root task %q (id %s, priority %s) in project %s", task.Title, task.ID, task.Priority, project),
		Metadata: map[string]any{
			"taskID":   task.ID,
			"folder":   folder,
			"project":  project,
			"priority": string(task.Priority),
		},
	}, nil
}

func (t *TaskWriteTool) EinoTool() einotool.InvokableTool {
	return &einoAdapter{tool: t}
}
