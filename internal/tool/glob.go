package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	einotool "github.com/cloudwego/eino/components/tool"
)

const globDescription = `Fast file pattern matching tool that works with any codebase size.

Usage:
- Supports glob patterns like "**/*.js" or "src/**/*.ts"
- Returns matching file paths sorted by modification time
- Use this tool when you need to find files by name patterns`

// globMaxResults bounds the listing handed back to the model.
const globMaxResults = 100

// GlobTool matches files by glob pattern under a search directory.
type GlobTool struct {
	workDir string
}

// GlobInput is the decoded input for the glob tool.
type GlobInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// NewGlobTool creates a glob tool rooted at workDir.
func NewGlobTool(workDir string) *GlobTool {
	return &GlobTool{workDir: workDir}
}

func (t *GlobTool) ID() string          { return "glob" }
func (t *GlobTool) Description() string { return globDescription }

func (t *GlobTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The glob pattern to match files against"
			},
			"path": {
				"type": "string",
				"description": "Directory to search in (default: current directory)"
			}
		},
		"required": ["pattern"]
	}`)
}

// globMatch is one matched path plus its mtime for recency sorting.
type globMatch struct {
	path    string
	modTime time.Time
}

func (t *GlobTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params GlobInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	searchDir := t.workDir
	if toolCtx != nil && toolCtx.WorkDir != "" {
		searchDir = toolCtx.WorkDir
	}
	if params.Path != "" {
		if filepath.IsAbs(params.Path) {
			searchDir = params.Path
		} else {
			searchDir = filepath.Join(searchDir, params.Path)
		}
	}

	var matches []globMatch
	root := os.DirFS(searchDir)
	err := doublestar.GlobWalk(root, params.Pattern, func(path string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		m := globMatch{path: path}
		if info, err := d.Info(); err == nil {
			m.modTime = info.ModTime()
		}
		matches = append(matches, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", params.Pattern, err)
	}

	if len(matches) == 0 {
		return &Result{
			Title:  "Glob search",
			Output: "No files matched the pattern",
			Metadata: map[string]any{
				"pattern": params.Pattern,
				"count":   0,
			},
		}, nil
	}

	// Newest first, so the model sees recently touched files at the top.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].modTime.After(matches[j].modTime)
	})

	truncated := len(matches) > globMaxResults
	if truncated {
		matches = matches[:globMaxResults]
	}

	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = m.path
	}
	listing := strings.Join(paths, "\n")
	if truncated {
		listing += fmt.Sprintf("\n\n(Showing %d of more files)", globMaxResults)
	}

	return &Result{
		Title:  fmt.Sprintf("Found %d files", len(paths)),
		Output: listing,
		Metadata: map[string]any{
			"pattern":   params.Pattern,
			"count":     len(paths),
			"truncated": truncated,
		},
	}, nil
}

func (t *GlobTool) EinoTool() einotool.InvokableTool {
	return &einoAdapter{tool: t}
}
