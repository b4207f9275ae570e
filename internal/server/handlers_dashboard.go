package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/agentcore/orchestrator/internal/storage"
	"github.com/agentcore/orchestrator/pkg/types"
)

// Dashboard endpoints: task-tree and knowledge browsing for the web
// client. Every handler runs on its own request goroutine, so the file
// walks underneath never touch the SSE/event path.

// folderParam decodes a task folder chain from its wire form, a
// "/"-separated slug path ("parent-abc123/child-def456").
func folderParam(raw string) []string {
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "/")
}

// requireProject pulls the mandatory project query parameter.
func requireProject(w http.ResponseWriter, r *http.Request) (string, bool) {
	project := r.URL.Query().Get("project")
	if project == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "project is required")
		return "", false
	}
	return project, true
}

// listDashboardTasks serves GET /dashboard/tasks: every task in the
// project, walked from the filesystem.
func (s *Server) listDashboardTasks(w http.ResponseWriter, r *http.Request) {
	project, ok := requireProject(w, r)
	if !ok {
		return
	}
	tasks, err := s.taskStore.List(r.Context(), project)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// getDashboardTask serves GET /dashboard/tasks/task?project=&folder=a/b.
func (s *Server) getDashboardTask(w http.ResponseWriter, r *http.Request) {
	project, ok := requireProject(w, r)
	if !ok {
		return
	}
	folder := folderParam(r.URL.Query().Get("folder"))
	if len(folder) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "folder is required")
		return
	}

	task, err := s.taskStore.Get(r.Context(), project, folder)
	if err == storage.ErrNotFound {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// createTaskRequest is the POST /dashboard/tasks body.
type createTaskRequest struct {
	Project      string `json:"project"`
	Title        string `json:"title"`
	Priority     string `json:"priority,omitempty"`
	ParentFolder string `json:"parentFolder,omitempty"`
}

// createDashboardTask serves POST /dashboard/tasks. Without parentFolder
// it creates a root; with one it creates a child under that folder.
func (s *Server) createDashboardTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	task, folder, err := s.taskStore.Create(r.Context(), req.Project, req.Title,
		types.TaskPriority(req.Priority), folderParam(req.ParentFolder))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task":   task,
		"folder": folder,
	})
}

// updateTaskRequest is the PATCH /dashboard/tasks/task body; nil fields
// stay untouched.
type updateTaskRequest struct {
	Status   *types.TaskStatus   `json:"status,omitempty"`
	Priority *types.TaskPriority `json:"priority,omitempty"`
	Notes    *string             `json:"notes,omitempty"`
	Tags     []string            `json:"tags,omitempty"`
	Assignee *string             `json:"assignee,omitempty"`
}

// updateDashboardTask serves PATCH /dashboard/tasks/task?project=&folder=.
func (s *Server) updateDashboardTask(w http.ResponseWriter, r *http.Request) {
	project, ok := requireProject(w, r)
	if !ok {
		return
	}
	folder := folderParam(r.URL.Query().Get("folder"))
	if len(folder) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "folder is required")
		return
	}

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	task, err := s.taskStore.Update(r.Context(), project, folder, func(t *types.Task) {
		if req.Status != nil {
			t.Status = *req.Status
		}
		if req.Priority != nil {
			t.Priority = *req.Priority
		}
		if req.Notes != nil {
			t.Notes = *req.Notes
		}
		if req.Tags != nil {
			t.Tags = req.Tags
		}
		if req.Assignee != nil {
			t.Assignee = *req.Assignee
		}
	})
	if err == storage.ErrNotFound {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// moveTaskRequest is the POST /dashboard/tasks/move body.
type moveTaskRequest struct {
	Project         string `json:"project"`
	Folder          string `json:"folder"`
	NewParentFolder string `json:"newParentFolder,omitempty"`
}

// moveDashboardTask serves POST /dashboard/tasks/move: the rewrite path
// that nests or promotes a task by relocating its folder.
func (s *Server) moveDashboardTask(w http.ResponseWriter, r *http.Request) {
	var req moveTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	newFolder, err := s.taskStore.Move(r.Context(), req.Project,
		folderParam(req.Folder), folderParam(req.NewParentFolder))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folder": newFolder})
}

// taskSummary serves GET /dashboard/tasks/summary?project=&root=: the
// root's aggregated snapshot, regenerated from the walk.
func (s *Server) taskSummary(w http.ResponseWriter, r *http.Request) {
	project, ok := requireProject(w, r)
	if !ok {
		return
	}
	root := r.URL.Query().Get("root")
	if root == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "root is required")
		return
	}

	snap, err := s.taskStore.Summary(r.Context(), project, root)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// listDashboardKnowledge serves GET /dashboard/knowledge.
func (s *Server) listDashboardKnowledge(w http.ResponseWriter, r *http.Request) {
	project, ok := requireProject(w, r)
	if !ok {
		return
	}
	entries, err := s.knowledgeStore.List(r.Context(), project)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// getDashboardKnowledge serves GET /dashboard/knowledge/entry?project=&id=.
func (s *Server) getDashboardKnowledge(w http.ResponseWriter, r *http.Request) {
	project, ok := requireProject(w, r)
	if !ok {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "id is required")
		return
	}

	entry, err := s.knowledgeStore.Get(r.Context(), project, id)
	if err == storage.ErrNotFound {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "entry not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// addDashboardKnowledge serves POST /dashboard/knowledge: manual entry
// creation (source defaults to manual; auto-capture has its own path).
func (s *Server) addDashboardKnowledge(w http.ResponseWriter, r *http.Request) {
	var entry types.KnowledgeEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if entry.Project == "" || entry.Title == "" || entry.Type == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "project, title, and type are required")
		return
	}
	if entry.Source == "" {
		entry.Source = types.KnowledgeSourceManual
	}

	if err := s.knowledgeStore.Add(r.Context(), &entry); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// searchDashboardKnowledge serves GET /dashboard/knowledge/search?project=&q=&k=.
func (s *Server) searchDashboardKnowledge(w http.ResponseWriter, r *http.Request) {
	project, ok := requireProject(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "q is required")
		return
	}
	k, _ := strconv.Atoi(r.URL.Query().Get("k"))

	entries, err := s.knowledgeStore.Search(r.Context(), project, query, k)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// linkKnowledgeRequest is the POST /dashboard/knowledge/link body.
type linkKnowledgeRequest struct {
	Project string `json:"project"`
	EntryID string `json:"entryID"`
	TaskID  string `json:"taskID"`
}

// linkDashboardKnowledge serves POST /dashboard/knowledge/link.
func (s *Server) linkDashboardKnowledge(w http.ResponseWriter, r *http.Request) {
	var req linkKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Project == "" || req.EntryID == "" || req.TaskID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "project, entryID, and taskID are required")
		return
	}

	if err := s.knowledgeStore.Link(r.Context(), req.Project, req.EntryID, req.TaskID); err != nil {
		if err == storage.ErrNotFound {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

// knowledgeSummary serves GET /dashboard/knowledge/summary?project=.
func (s *Server) knowledgeSummary(w http.ResponseWriter, r *http.Request) {
	project, ok := requireProject(w, r)
	if !ok {
		return
	}
	sum, err := s.knowledgeStore.GetSummary(r.Context(), project)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
