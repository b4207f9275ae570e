package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"
	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/agentcore/orchestrator/internal/event"
)

const editDescription = `Performs exact string replacements in files.

Usage:
- The filePath parameter must be an absolute path
- The oldString must exist in the file (exact match required)
- The newString will replace oldString
- Use replaceAll to replace all occurrences
- The edit will FAIL if oldString is not unique (unless using replaceAll)`

// fuzzyMatchThreshold is the minimum similarity for a fuzzy fallback edit.
const fuzzyMatchThreshold = 0.7

// EditTool replaces exact strings in files, with normalized and fuzzy
// fallbacks when the exact text is not found.
type EditTool struct {
	workDir string
}

// EditInput is the decoded input for the edit tool.
type EditInput struct {
	FilePath   string `json:"filePath"`
	OldString  string `json:"oldString"`
	NewString  string `json:"newString"`
	ReplaceAll bool   `json:"replaceAll,omitempty"`
}

// NewEditTool creates an edit tool rooted at workDir.
func NewEditTool(workDir string) *EditTool {
	return &EditTool{workDir: workDir}
}

func (t *EditTool) ID() string          { return "edit" }
func (t *EditTool) Description() string { return editDescription }

func (t *EditTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The absolute path to the file to edit"
			},
			"oldString": {
				"type": "string",
				"description": "The exact text to replace"
			},
			"newString": {
				"type": "string",
				"description": "The text to replace it with"
			},
			"replaceAll": {
				"type": "boolean",
				"description": "Replace all occurrences (default: false)"
			}
		},
		"required": ["filePath", "oldString", "newString"]
	}`)
}

func (t *EditTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params EditInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.OldString == params.NewString {
		return nil, fmt.Errorf("old_string and new_string must be different")
	}

	content, err := os.ReadFile(params.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	text := string(content)

	occurrences := strings.Count(text, params.OldString)
	if occurrences == 0 {
		return t.fuzzyReplace(text, params, toolCtx)
	}

	var updated string
	replaced := occurrences
	if params.ReplaceAll {
		updated = strings.ReplaceAll(text, params.OldString, params.NewString)
	} else {
		if occurrences > 1 {
			return nil, fmt.Errorf("old_string appears %d times in file. Use replace_all or provide more context", occurrences)
		}
		updated = strings.Replace(text, params.OldString, params.NewString, 1)
		replaced = 1
	}

	if err := t.commit(params.FilePath, updated, toolCtx); err != nil {
		return nil, err
	}

	diff, added, deleted := buildDiffMetadata(params.FilePath, text, updated, t.workDir)
	return &Result{
		Title:  fmt.Sprintf("Edited %s", filepath.Base(params.FilePath)),
		Output: fmt.Sprintf("Replaced %d occurrence(s)", replaced),
		Metadata: map[string]any{
			"file":         params.FilePath,
			"replacements": replaced,
			"diff":         diff,
			"additions":    added,
			"deletions":    deleted,
		},
	}, nil
}

// commit writes the updated content and announces the file change.
func (t *EditTool) commit(path, content string, toolCtx *Context) error {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if toolCtx != nil && toolCtx.SessionID != "" {
		event.Publish(event.Event{
			Type: event.FileEdited,
			Data: event.FileEditedData{File: path},
		})
	}
	return nil
}

// fuzzyReplace recovers edits whose old_string drifted from the file:
// first by normalizing CRLF, then by locating the closest block above the
// similarity threshold.
func (t *EditTool) fuzzyReplace(text string, params EditInput, toolCtx *Context) (*Result, error) {
	normalizedOld := normalizeLineEndings(params.OldString)
	normalizedText := normalizeLineEndings(text)

	if strings.Contains(normalizedText, normalizedOld) {
		updated := strings.Replace(normalizedText, normalizedOld, params.NewString, 1)
		if err := t.commit(params.FilePath, updated, toolCtx); err != nil {
			return nil, err
		}
		return &Result{
			Title:  fmt.Sprintf("Edited %s (normalized)", filepath.Base(params.FilePath)),
			Output: "Replaced 1 occurrence (with line ending normalization)",
		}, nil
	}

	match, score := closestBlock(text, params.OldString)
	if match == "" || score < fuzzyMatchThreshold {
		return nil, fmt.Errorf("old_string not found in file. The content may have changed or the string doesn't exist")
	}

	updated := strings.Replace(text, match, params.NewString, 1)
	if err := t.commit(params.FilePath, updated, toolCtx); err != nil {
		return nil, err
	}
	return &Result{
		Title:  fmt.Sprintf("Edited %s (fuzzy)", filepath.Base(params.FilePath)),
		Output: fmt.Sprintf("Replaced 1 occurrence (%.0f%% similarity)", score*100),
	}, nil
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// closestBlock slides a window of target's line count over text and
// returns the most similar block with its score.
func closestBlock(text, target string) (string, float64) {
	lines := strings.Split(text, "\n")
	targetLines := strings.Split(target, "\n")
	window := len(targetLines)

	bestMatch, bestScore := "", 0.0
	if window == 1 {
		for _, line := range lines {
			if s := similarity(line, target); s > bestScore {
				bestScore, bestMatch = s, line
			}
		}
		return bestMatch, bestScore
	}

	for i := 0; i+window <= len(lines); i++ {
		block := strings.Join(lines[i:i+window], "\n")
		if s := similarity(block, target); s > bestScore {
			bestScore, bestMatch = s, block
		}
	}
	return bestMatch, bestScore
}

// similarity is normalized Levenshtein similarity in [0,1]. Inputs past
// 10k bytes fall back to a length ratio to bound the edit-distance cost.
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	if len(a) > 10000 || len(b) > 10000 {
		return float64(min(len(a), len(b))) / float64(max(len(a), len(b)))
	}

	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(max(len(a), len(b)))
}

func (t *EditTool) EinoTool() einotool.InvokableTool {
	return &einoAdapter{tool: t}
}
