package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	einotool "github.com/cloudwego/eino/components/tool"
)

const grepDescription = `A powerful content search tool.

Usage:
- Supports full regex syntax (e.g., "log.*Error", "function\\s+\\w+")
- Filter files with the include parameter (e.g., "*.js", "**/*.tsx")
- Returns matching lines with file paths and line numbers`

const (
	// grepMaxMatches bounds the match list handed back to the model.
	grepMaxMatches = 100
	// grepMaxLine skips pathological lines (minified bundles, blobs).
	grepMaxLine = 2048
)

// GrepTool searches file contents by regular expression.
type GrepTool struct {
	workDir string
}

// GrepInput is the decoded input for the grep tool.
type GrepInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
	Include string `json:"include,omitempty"` // file pattern to include (e.g., "*.js")
}

// NewGrepTool creates a grep tool rooted at workDir.
func NewGrepTool(workDir string) *GrepTool {
	return &GrepTool{workDir: workDir}
}

func (t *GrepTool) ID() string          { return "grep" }
func (t *GrepTool) Description() string { return grepDescription }

func (t *GrepTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The regex pattern to search for in file contents"
			},
			"path": {
				"type": "string",
				"description": "The directory to search in. Defaults to the current working directory."
			},
			"include": {
				"type": "string",
				"description": "File pattern to include in the search (e.g. \"*.js\", \"*.{ts,tsx}\")"
			}
		},
		"required": ["pattern"]
	}`)
}

// GrepMatch is a single matching line.
type GrepMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

func (t *GrepTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params GrepInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", params.Pattern, err)
	}

	searchPath := t.workDir
	if toolCtx != nil && toolCtx.WorkDir != "" {
		searchPath = toolCtx.WorkDir
	}
	if params.Path != "" {
		searchPath = params.Path
	}

	matches, truncated, err := grepWalk(ctx, searchPath, re, params.Include)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return &Result{
			Title:  "Search results",
			Output: "No matches found",
			Metadata: map[string]any{
				"pattern": params.Pattern,
				"count":   0,
			},
		}, nil
	}

	var sb strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&sb, "%s:%d: %s\n", m.File, m.Line, m.Content)
	}
	if truncated {
		fmt.Fprintf(&sb, "\n(Showing %d of more matches)", grepMaxMatches)
	}

	return &Result{
		Title:  fmt.Sprintf("Found %d matches", len(matches)),
		Output: sb.String(),
		Metadata: map[string]any{
			"pattern":   params.Pattern,
			"count":     len(matches),
			"truncated": truncated,
		},
	}, nil
}

// grepWalk scans root (a directory or a single file) for lines matching re,
// stopping once the match cap is exceeded.
func grepWalk(ctx context.Context, root string, re *regexp.Regexp, include string) ([]GrepMatch, bool, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, false, fmt.Errorf("search path: %w", err)
	}

	var matches []GrepMatch
	truncated := false

	scanFile := func(path, display string) error {
		found, err := grepFile(path, display, re, grepMaxMatches+1-len(matches))
		if err != nil {
			return nil // unreadable files are skipped, not fatal
		}
		matches = append(matches, found...)
		return nil
	}

	if !info.IsDir() {
		if err := scanFile(root, root); err != nil {
			return nil, false, err
		}
	} else {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == ".git" || d.Name() == "node_modules" {
					return filepath.SkipDir
				}
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			if include != "" {
				ok, _ := doublestar.Match(include, rel)
				if !ok {
					// Also try against the bare filename so "*.go" works
					// at any depth, the way users expect.
					if ok2, _ := doublestar.Match(include, d.Name()); !ok2 {
						return nil
					}
				}
			}
			if len(matches) > grepMaxMatches {
				return filepath.SkipAll
			}
			return scanFile(path, filepath.Join(root, rel))
		})
		if err != nil {
			return nil, false, err
		}
	}

	if len(matches) > grepMaxMatches {
		matches = matches[:grepMaxMatches]
		truncated = true
	}
	return matches, truncated, nil
}

// grepFile returns up to limit matching lines from one file. Binary files
// (NUL in the first sniff) yield no matches.
func grepFile(path, display string, re *regexp.Regexp, limit int) ([]GrepMatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var out []GrepMatch
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if lineNo == 1 && strings.ContainsRune(line, '\x00') {
			return nil, nil
		}
		if len(line) > grepMaxLine {
			continue
		}
		if re.MatchString(line) {
			out = append(out, GrepMatch{File: display, Line: lineNo, Content: line})
			if len(out) >= limit {
				break
			}
		}
	}
	return out, scanner.Err()
}

func (t *GrepTool) EinoTool() einotool.InvokableTool {
	return &einoAdapter{tool: t}
}
