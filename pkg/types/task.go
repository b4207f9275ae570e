package types

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskPriority ranks a Task for scheduling/display purposes.
type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

// Task is a node in the project's hierarchical task tree. Folder location on
// disk is the authoritative parent-child relationship; ParentID is kept in
// sync with it rather than the other way around.
type Task struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"projectID"`
	Title     string       `json:"title"`
	Status    TaskStatus   `json:"status"`
	Priority  TaskPriority `json:"priority"`
	ParentID  *string      `json:"parentID,omitempty"`
	CreatedAt int64        `json:"createdAt"`
	UpdatedAt int64        `json:"updatedAt"`
	Notes     string       `json:"notes,omitempty"`
	Tags      []string     `json:"tags,omitempty"`
	Assignee  string       `json:"assignee,omitempty"`
	FileRefs  []string     `json:"fileRefs,omitempty"`

	// Slug is sanitize(title) + "-" + id[:8], and doubles as the folder name.
	Slug string `json:"slug"`
}

// TaskSnapshot aggregates a root task's subtree: counts by status and the
// tree shape, regenerated on any write within the subtree.
type TaskSnapshot struct {
	RootID       string               `json:"rootID"`
	CountsByStat map[TaskStatus]int   `json:"countsByStatus"`
	Tree         []TaskSnapshotEntry  `json:"tree"`
	GeneratedAt  int64                `json:"generatedAt"`
}

// TaskSnapshotEntry is one flattened node of the subtree summary.
type TaskSnapshotEntry struct {
	ID       string     `json:"id"`
	ParentID *string    `json:"parentID,omitempty"`
	Title    string     `json:"title"`
	Status   TaskStatus `json:"status"`
	Depth    int        `json:"depth"`
}
