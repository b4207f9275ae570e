package tool

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// buildDiffMetadata renders a patch between two file states plus added and
// deleted line counts, for the metadata block of mutating tools. The patch
// carries ---/+++ headers when a path is known.
func buildDiffMetadata(path, before, after, baseDir string) (diffText string, additions, deletions int) {
	if before == after {
		return "", 0, 0
	}

	dmp := diffmatchpatch.New()
	chunkedA, chunkedB, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(chunkedA, chunkedB, false), lineArray)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += lineSpan(d.Text)
		case diffmatchpatch.DiffDelete:
			deletions += lineSpan(d.Text)
		}
	}

	patch := dmp.PatchToText(dmp.PatchMake(before, diffs))
	if patch == "" {
		return "", additions, deletions
	}

	if rel := displayPath(path, baseDir); rel != "" {
		patch = fmt.Sprintf("--- %s\n+++ %s\n%s", rel, rel, patch)
	}
	return patch, additions, deletions
}

// displayPath prefers a baseDir-relative path for diff headers.
func displayPath(path, baseDir string) string {
	switch {
	case path == "":
		return ""
	case baseDir == "":
		return path
	}
	if rel, err := filepath.Rel(baseDir, path); err == nil {
		return rel
	}
	return path
}

// lineSpan counts lines in a diff hunk; a trailing fragment without a
// newline still counts as a line.
func lineSpan(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
