package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
)

const listDescription = `Lists files and directories in a specified path.

Usage:
- Returns file names, types (file/directory), and sizes
- Useful for exploring directory structure`

// ListTool lists one directory level with sizes, directories first.
type ListTool struct {
	workDir string
}

// ListInput is the decoded input for the list tool.
type ListInput struct {
	Path   string   `json:"path,omitempty"`
	Ignore []string `json:"ignore,omitempty"`
}

// defaultIgnorePatterns hides build artifacts and tool caches the model
// never needs to browse.
var defaultIgnorePatterns = []string{
	"node_modules/",
	"__pycache__/",
	".git/",
	"dist/",
	"build/",
	"target/",
	"vendor/",
	"bin/",
	"obj/",
	".idea/",
	".vscode/",
	".zig-cache/",
	"zig-out",
	".coverage",
	"coverage/",
	"tmp/",
	"temp/",
	".cache/",
	"cache/",
	"logs/",
	".venv/",
	"venv/",
	"env/",
}

// NewListTool creates a list tool rooted at workDir.
func NewListTool(workDir string) *ListTool {
	return &ListTool{workDir: workDir}
}

func (t *ListTool) ID() string          { return "list" }
func (t *ListTool) Description() string { return listDescription }

func (t *ListTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The absolute path to the directory to list (must be absolute, not relative)"
			},
			"ignore": {
				"type": "array",
				"items": {"type": "string"},
				"description": "List of glob patterns to ignore"
			}
		}
	}`)
}

// FileEntry is one listed file or directory.
type FileEntry struct {
	Name        string `json:"name"`
	IsDirectory bool   `json:"isDirectory"`
	Size        int64  `json:"size"`
}

func (t *ListTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ListInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	listPath := t.workDir
	if toolCtx != nil && toolCtx.WorkDir != "" {
		listPath = toolCtx.WorkDir
	}
	if params.Path != "" {
		if filepath.IsAbs(params.Path) {
			listPath = params.Path
		} else {
			listPath = filepath.Join(listPath, params.Path)
		}
	}

	ignore := append(append([]string{}, defaultIgnorePatterns...), params.Ignore...)

	entries, err := os.ReadDir(listPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []FileEntry
	for _, entry := range entries {
		if ignored(entry.Name(), entry.IsDir(), ignore) {
			continue
		}
		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		files = append(files, FileEntry{
			Name:        entry.Name(),
			IsDirectory: entry.IsDir(),
			Size:        size,
		})
	}

	// Directories first, then lexical, so the listing reads like a tree.
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].IsDirectory != files[j].IsDirectory {
			return files[i].IsDirectory
		}
		return files[i].Name < files[j].Name
	})

	var sb strings.Builder
	for _, f := range files {
		if f.IsDirectory {
			fmt.Fprintf(&sb, "[dir ] %s\n", f.Name)
		} else {
			fmt.Fprintf(&sb, "[file] %s (%d bytes)\n", f.Name, f.Size)
		}
	}

	return &Result{
		Title:  fmt.Sprintf("Listed %d items", len(files)),
		Output: sb.String(),
		Metadata: map[string]any{
			"path":  listPath,
			"count": len(files),
		},
	}, nil
}

func (t *ListTool) EinoTool() einotool.InvokableTool {
	return &einoAdapter{tool: t}
}

// ignored reports whether an entry matches any ignore pattern. Patterns
// ending in "/" only match directories; the rest go through filepath.Match
// against the bare name (and name+"/" for directories).
func ignored(name string, isDir bool, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, "/") {
			if isDir && name == strings.TrimSuffix(pattern, "/") {
				return true
			}
			continue
		}
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
		if isDir {
			if matched, _ := filepath.Match(pattern, name+"/"); matched {
				return true
			}
		}
	}
	return false
}
