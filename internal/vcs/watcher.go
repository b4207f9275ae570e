// Package vcs surfaces the working tree's git state to the rest of the
// core as events.
package vcs

import (
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/agentcore/orchestrator/internal/event"
)

// Watcher publishes VcsBranchUpdated whenever the checked-out branch
// changes, by watching the repository's .git directory.
type Watcher struct {
	watcher       *fsnotify.Watcher
	workDir       string
	gitDir        string
	currentBranch string
	stopCh        chan struct{}
	doneCh        chan struct{}
	started       bool
	mu            sync.RWMutex
}

// NewWatcher creates a watcher for workDir. Outside a git repository it
// returns (nil, nil) and branch tracking is simply off.
func NewWatcher(workDir string) (*Watcher, error) {
	gitDir := resolveGitDir(workDir)
	if gitDir == "" {
		log.Debug().Str("workDir", workDir).Msg("not a git repository, VCS watcher disabled")
		return nil, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not HEAD itself: git replaces HEAD by rename,
	// which breaks a direct file watch on several platforms.
	if err := fsw.Add(gitDir); err != nil {
		fsw.Close()
		return nil, err
	}

	branch := currentBranch(workDir)
	log.Info().Str("branch", branch).Str("gitDir", gitDir).Msg("VCS watcher initialized")

	return &Watcher{
		watcher:       fsw,
		workDir:       workDir,
		gitDir:        gitDir,
		currentBranch: branch,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}, nil
}

// Start launches the watch goroutine. Idempotent.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if strings.HasSuffix(ev.Name, "HEAD") || strings.Contains(ev.Name, ".git") {
				w.refreshBranch()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("VCS watcher error")
		}
	}
}

// refreshBranch re-reads the branch and publishes if it moved.
func (w *Watcher) refreshBranch() {
	newBranch := currentBranch(w.workDir)

	w.mu.Lock()
	oldBranch := w.currentBranch
	changed := newBranch != oldBranch
	if changed {
		w.currentBranch = newBranch
	}
	w.mu.Unlock()

	if !changed {
		return
	}

	log.Info().Str("from", oldBranch).Str("to", newBranch).Msg("branch changed")
	event.PublishSync(event.Event{
		Type: event.VcsBranchUpdated,
		Data: event.VcsBranchUpdatedData{Branch: newBranch},
	})
}

// CurrentBranch returns the branch the watcher last observed.
func (w *Watcher) CurrentBranch() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentBranch
}

// Stop shuts the watcher down and waits for its goroutine. Idempotent.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}

// resolveGitDir locates the real .git directory; asking git directly
// covers worktrees, where .git is a file pointing elsewhere.
func resolveGitDir(workDir string) string {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = workDir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}

	gitDir := strings.TrimSpace(string(out))
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(workDir, gitDir)
	}
	return gitDir
}

// currentBranch reads the checked-out branch name.
func currentBranch(workDir string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = workDir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// GetBranch reports the checked-out branch of a directory without a
// running watcher.
func GetBranch(workDir string) string {
	return currentBranch(workDir)
}
