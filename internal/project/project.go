// Package project derives a stable project identity from the working
// tree, so sessions in the same repository group together across
// machines and checkouts.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Info is the resolved identity of one working tree.
type Info struct {
	ID       string  `json:"id"`
	Worktree string  `json:"worktree"`
	VCSDir   *string `json:"vcsDir,omitempty"`
	VCS      *string `json:"vcs,omitempty"`
}

// Resolution shells out to git, so results are cached per directory.
var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*Info)
)

// FromDirectory resolves a directory to its project: walk up to the
// enclosing .git, use the repository's initial commit SHA as the ID
// (memoized in .git/orchestrator), and fall back to the shared "global"
// project outside version control.
func FromDirectory(directory string) (*Info, error) {
	directory, err := filepath.Abs(directory)
	if err != nil {
		return nil, err
	}

	cacheMu.RLock()
	if info, ok := cache[directory]; ok {
		cacheMu.RUnlock()
		return info, nil
	}
	cacheMu.RUnlock()

	gitDir := findGitDir(directory)
	if gitDir == "" {
		info := &Info{
			ID:       "global",
			Worktree: "/",
		}
		cacheProject(directory, info)
		return info, nil
	}

	// git reports the real toplevel; the .git parent is only a guess.
	worktree := filepath.Dir(gitDir)
	worktreeCmd := exec.Command("git", "rev-parse", "--show-toplevel")
	worktreeCmd.Dir = worktree
	if output, err := worktreeCmd.Output(); err == nil {
		worktree = strings.TrimSpace(string(output))
	}

	// Resolve the real git dir too (differs under worktrees).
	gitDirCmd := exec.Command("git", "rev-parse", "--git-dir")
	gitDirCmd.Dir = worktree
	if output, err := gitDirCmd.Output(); err == nil {
		resolvedGitDir := strings.TrimSpace(string(output))
		if !filepath.IsAbs(resolvedGitDir) {
			resolvedGitDir = filepath.Join(worktree, resolvedGitDir)
		}
		gitDir = resolvedGitDir
	}

	cacheFile := filepath.Join(gitDir, "orchestrator")
	projectID, err := os.ReadFile(cacheFile)
	if err == nil && len(projectID) > 0 {
		id := strings.TrimSpace(string(projectID))
		vcs := "git"
		info := &Info{
			ID:       id,
			Worktree: worktree,
			VCSDir:   &gitDir,
			VCS:      &vcs,
		}
		cacheProject(directory, info)
		return info, nil
	}

	// First resolution for this repository: derive and memoize the ID.
	id := getGitProjectID(worktree)
	if id == "" {
		id = "global"
	}

	if id != "global" {
		_ = os.WriteFile(cacheFile, []byte(id), 0644)
	}

	vcs := "git"
	info := &Info{
		ID:       id,
		Worktree: worktree,
		VCSDir:   &gitDir,
		VCS:      &vcs,
	}
	cacheProject(directory, info)
	return info, nil
}

// GetProjectID is the ID-only shortcut used by the session service.
func GetProjectID(directory string) (string, error) {
	info, err := FromDirectory(directory)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// HashDirectory is the legacy path-hash ID scheme, kept so stores
// written before commit-SHA IDs can still be located.
func HashDirectory(directory string) string {
	h := sha256.New()
	h.Write([]byte(directory))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// findGitDir walks toward the root looking for .git; a .git file
// (worktrees, submodules) is followed to the directory it names.
func findGitDir(start string) string {
	current := start
	for {
		gitPath := filepath.Join(current, ".git")
		if info, err := os.Stat(gitPath); err == nil {
			if info.IsDir() {
				return gitPath
			}
			if content, err := os.ReadFile(gitPath); err == nil {
				line := strings.TrimSpace(string(content))
				if strings.HasPrefix(line, "gitdir: ") {
					gitdir := strings.TrimPrefix(line, "gitdir: ")
					if !filepath.IsAbs(gitdir) {
						gitdir = filepath.Join(current, gitdir)
					}
					return gitdir
				}
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

// getGitProjectID derives the ID from the repository's root commits;
// with several roots the lexically smallest wins, which keeps the ID
// identical on every clone.
func getGitProjectID(worktree string) string {
	cmd := exec.Command("git", "rev-list", "--max-parents=0", "--all")
	cmd.Dir = worktree
	output, err := cmd.Output()
	if err != nil {
		return ""
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	var roots []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			roots = append(roots, line)
		}
	}

	if len(roots) == 0 {
		return ""
	}

	sort.Strings(roots)
	return roots[0]
}

// cacheProject memoizes a resolution.
func cacheProject(directory string, info *Info) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache[directory] = info
}

// ClearCache empties the memo table. Test-only.
func ClearCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = make(map[string]*Info)
}
