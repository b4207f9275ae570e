// Package taskstore implements the Task Store: a folder-backed hierarchical
// task tree per project. Folder location on disk is authoritative for
// parent-child relationships; ParentID is normalized to match it rather than
// trusted on its own.
package taskstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentcore/orchestrator/internal/storage"
	"github.com/agentcore/orchestrator/pkg/types"
)

const (
	planningDir = ".planning"
	tasksDir    = "tasks"
)

// Store is the folder-backed task tree, rooted at a Storage instance whose
// basePath is the projects directory (one subdirectory per project).
type Store struct {
	storage *storage.Storage
}

// New creates a Store over an existing Storage rooted at the projects
// directory (`<projects>/<name>/.planning/tasks/...`).
func New(s *storage.Storage) *Store {
	return &Store{storage: s}
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// sanitizeTitle lowercases and collapses non-alphanumeric runs to a single
// hyphen, trimming leading/trailing hyphens, so folder names stay
// shell- and URL-safe.
func sanitizeTitle(title string) string {
	s := slugInvalid.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "task"
	}
	if len(s) > 48 {
		s = strings.Trim(s[:48], "-")
	}
	return s
}

// folderSegs returns the storage path segments for a folder chain relative to
// a project's tasks root. folder is root-first, e.g. ["parent-abc123",
// "child-def456"] maps to tasks/parent-abc123/tasks/child-def456.
func folderSegs(folder []string) []string {
	var segs []string
	for i, f := range folder {
		if i > 0 {
			segs = append(segs, tasksDir)
		}
		segs = append(segs, f)
	}
	return segs
}

func taskDirPath(project string, folder []string) []string {
	segs := []string{project, planningDir, tasksDir}
	return append(segs, folderSegs(folder)...)
}

func taskJSONPath(project string, folder []string) []string {
	return append(append([]string{}, taskDirPath(project, folder)...), "task")
}

func snapshotJSONPath(project, rootFolder string) []string {
	return append(append([]string{}, taskDirPath(project, []string{rootFolder})...), "project_data")
}

// Create adds a new task as a child of parentFolder (nil/empty for a new
// root task). The returned folder slice is the task's folder chain, stable
// across renames of ancestors' titles (it's keyed by slug, not by the live
// title). The containing root's aggregated snapshot is rewritten.
func (s *Store) Create(ctx context.Context, project, title string, priority types.TaskPriority, parentFolder []string) (*types.Task, []string, error) {
	if project == "" {
		return nil, nil, fmt.Errorf("project is required")
	}
	if title == "" {
		return nil, nil, fmt.Errorf("title is required")
	}

	id := strings.ToLower(ulid.Make().String())
	slug := sanitizeTitle(title) + "-" + id[:8]
	folder := append(append([]string{}, parentFolder...), slug)

	var parentID *string
	if len(parentFolder) > 0 {
		var parent types.Task
		if err := s.storage.Get(ctx, taskJSONPath(project, parentFolder), &parent); err != nil {
			return nil, nil, fmt.Errorf("parent task not found: %w", err)
		}
		parentID = &parent.ID
	}

	if priority == "" {
		priority = types.TaskPriorityMedium
	}

	now := time.Now().UnixMilli()
	task := &types.Task{
		ID:        id,
		ProjectID: project,
		Title:     title,
		Status:    types.TaskStatusPending,
		Priority:  priority,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
		Slug:      slug,
	}

	if err := s.storage.Put(ctx, taskJSONPath(project, folder), task); err != nil {
		return nil, nil, err
	}

	if err := s.regenerateSnapshot(ctx, project, folder[0]); err != nil {
		return nil, nil, err
	}

	return task, folder, nil
}

// CreateRoot creates a root-level task. This is the only creation path a
// chat-side to-do tool should expose; nesting happens exclusively via Move.
func (s *Store) CreateRoot(ctx context.Context, project, title string, priority types.TaskPriority) (*types.Task, []string, error) {
	return s.Create(ctx, project, title, priority, nil)
}

// Get loads the task at folder.
func (s *Store) Get(ctx context.Context, project string, folder []string) (*types.Task, error) {
	var task types.Task
	if err := s.storage.Get(ctx, taskJSONPath(project, folder), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Update loads the task at folder, applies mutate, stamps UpdatedAt, and
// persists it. The containing root's snapshot is rewritten.
func (s *Store) Update(ctx context.Context, project string, folder []string, mutate func(*types.Task)) (*types.Task, error) {
	task, err := s.Get(ctx, project, folder)
	if err != nil {
		return nil, err
	}
	mutate(task)
	task.UpdatedAt = time.Now().UnixMilli()

	if err := s.storage.Put(ctx, taskJSONPath(project, folder), task); err != nil {
		return nil, err
	}
	if err := s.regenerateSnapshot(ctx, project, folder[0]); err != nil {
		return nil, err
	}
	return task, nil
}

// Move relocates a task's folder under newParentFolder (nil/empty to
// promote it to root), physically renaming the directory so that folder
// location remains the single source of truth. ParentID is recomputed from
// the new location, never trusted from the caller. Snapshots for both the
// old and new root are rewritten.
func (s *Store) Move(ctx context.Context, project string, folder []string, newParentFolder []string) ([]string, error) {
	if len(folder) == 0 {
		return nil, fmt.Errorf("folder must not be empty")
	}
	task, err := s.Get(ctx, project, folder)
	if err != nil {
		return nil, err
	}

	oldRoot := folder[0]
	slug := folder[len(folder)-1]
	newFolder := append(append([]string{}, newParentFolder...), slug)

	oldDir := s.storage.DirPath(taskDirPath(project, folder))
	newDir := s.storage.DirPath(taskDirPath(project, newFolder))

	if err := os.MkdirAll(filepath.Dir(newDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}
	if err := os.Rename(oldDir, newDir); err != nil {
		return nil, fmt.Errorf("failed to move task folder: %w", err)
	}

	var parentID *string
	if len(newParentFolder) > 0 {
		var parent types.Task
		if err := s.storage.Get(ctx, taskJSONPath(project, newParentFolder), &parent); err == nil {
			parentID = &parent.ID
		}
	}
	task.ParentID = parentID
	task.UpdatedAt = time.Now().UnixMilli()
	if err := s.storage.Put(ctx, taskJSONPath(project, newFolder), task); err != nil {
		return nil, err
	}

	if err := s.regenerateSnapshot(ctx, project, oldRoot); err != nil {
		return nil, err
	}
	newRoot := newFolder[0]
	if newRoot != oldRoot {
		if err := s.regenerateSnapshot(ctx, project, newRoot); err != nil {
			return nil, err
		}
	}
	return newFolder, nil
}

// List returns every task in project, walked from the filesystem.
func (s *Store) List(ctx context.Context, project string) ([]*types.Task, error) {
	rootsDir := s.storage.DirPath(taskDirPath(project, nil))
	entries, err := os.ReadDir(rootsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*types.Task{}, nil
		}
		return nil, err
	}

	var out []*types.Task
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := s.listRecursive(ctx, project, []string{e.Name()}, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) listRecursive(ctx context.Context, project string, folder []string, out *[]*types.Task) error {
	task, err := s.Get(ctx, project, folder)
	if err == nil {
		*out = append(*out, task)
	} else if err != storage.ErrNotFound {
		return err
	}

	childrenDir := filepath.Join(s.storage.DirPath(taskDirPath(project, folder)), tasksDir)
	children, err := os.ReadDir(childrenDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, c := range children {
		if !c.IsDir() {
			continue
		}
		if err := s.listRecursive(ctx, project, append(append([]string{}, folder...), c.Name()), out); err != nil {
			return err
		}
	}
	return nil
}

// Summary rebuilds and returns rootFolder's aggregated snapshot. Snapshots
// are always regenerated from the filesystem walk rather than trusted as
// cached state: the snapshot is rebuilt from the walk, not trusted.
func (s *Store) Summary(ctx context.Context, project, rootFolder string) (*types.TaskSnapshot, error) {
	if err := s.regenerateSnapshot(ctx, project, rootFolder); err != nil {
		return nil, err
	}
	var snap types.TaskSnapshot
	if err := s.storage.Get(ctx, snapshotJSONPath(project, rootFolder), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) regenerateSnapshot(ctx context.Context, project, rootFolder string) error {
	var entries []types.TaskSnapshotEntry
	counts := make(map[types.TaskStatus]int)

	var walk func(folder []string, depth int) error
	walk = func(folder []string, depth int) error {
		task, err := s.Get(ctx, project, folder)
		if err != nil {
			return err
		}
		entries = append(entries, types.TaskSnapshotEntry{
			ID:       task.ID,
			ParentID: task.ParentID,
			Title:    task.Title,
			Status:   task.Status,
			Depth:    depth,
		})
		counts[task.Status]++

		childrenDir := filepath.Join(s.storage.DirPath(taskDirPath(project, folder)), tasksDir)
		children, err := os.ReadDir(childrenDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		for _, c := range children {
			if !c.IsDir() {
				continue
			}
			if err := walk(append(append([]string{}, folder...), c.Name()), depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk([]string{rootFolder}, 0); err != nil {
		return err
	}

	var rootID string
	if len(entries) > 0 {
		rootID = entries[0].ID
	}
	snap := &types.TaskSnapshot{
		RootID:       rootID,
		CountsByStat: counts,
		Tree:         entries,
		GeneratedAt:  time.Now().UnixMilli(),
	}
	return s.storage.Put(ctx, snapshotJSONPath(project, rootFolder), snap)
}
