// Package memory merges enterprise/project/directory convention files into
// a single system-prompt prefix. Absence at any tier is normal.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/agentcore/orchestrator/internal/logging"
)

// Tier identifies one of the three convention scopes, merged in this order.
type Tier string

const (
	TierEnterprise Tier = "enterprise"
	TierProject    Tier = "project"
	TierDirectory  Tier = "directory"
)

// Conventions holds the per-tier content that composed the merged blob.
type Conventions struct {
	Enterprise string
	Project    string
	Directory  string
}

// Merged concatenates all present tiers in fixed order (enterprise, project,
// directory). Absence at any level is normal and produces no section for it.
func (c Conventions) Merged() string {
	var parts []string
	for _, t := range []struct {
		name string
		text string
	}{
		{string(TierEnterprise), c.Enterprise},
		{string(TierProject), c.Project},
		{string(TierDirectory), c.Directory},
	} {
		if strings.TrimSpace(t.text) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("# Conventions (%s)\n\n%s", t.name, strings.TrimSpace(t.text)))
	}
	return strings.Join(parts, "\n\n")
}

// Loader reads convention files from disk and caches the merged result,
// invalidating on filesystem changes via fsnotify.
type Loader struct {
	enterprisePath string
	projectPath    string
	directoryPath  string

	watcher *fsnotify.Watcher
	log     zerolog.Logger

	cached    *Conventions
	cacheDone bool
}

// Paths for the three tiers given a project root and working directory.
// Enterprise conventions live in the user's home config; project conventions
// live at the project root; directory conventions live alongside the working
// directory. Tiers merge in fixed order; missing files are skipped.
func Paths(projectRoot, workDir string) (enterprise, project, directory string) {
	if home, err := os.UserHomeDir(); err == nil {
		enterprise = filepath.Join(home, ".config", "orchestrator", "CONVENTIONS.md")
	}
	project = filepath.Join(projectRoot, "AGENTS.md")
	directory = filepath.Join(workDir, "CLAUDE.md")
	return
}

// NewLoader constructs a Loader for the three given file paths. Empty paths
// are skipped.
func NewLoader(enterprisePath, projectPath, directoryPath string) *Loader {
	return &Loader{
		enterprisePath: enterprisePath,
		projectPath:    projectPath,
		directoryPath:  directoryPath,
		log:            logging.With().Str("component", "memory").Logger(),
	}
}

// Load reads and merges all three tiers. Results are cached until Invalidate
// is called or a watched file changes.
func (l *Loader) Load() (Conventions, error) {
	if l.cacheDone && l.cached != nil {
		return *l.cached, nil
	}

	c := Conventions{
		Enterprise: readIfExists(l.enterprisePath),
		Project:    readIfExists(l.projectPath),
		Directory:  readIfExists(l.directoryPath),
	}
	l.cached = &c
	l.cacheDone = true
	return c, nil
}

// Invalidate drops the cached merge, forcing the next Load to re-read disk.
func (l *Loader) Invalidate() {
	l.cached = nil
	l.cacheDone = false
}

// Watch starts an fsnotify watch on the directory-tier file (the one most
// likely to be edited externally during a session) and invalidates the
// cache on any write. Returns a stop function. A missing directory file is
// tolerated: the watch no-ops.
func (l *Loader) Watch() (func(), error) {
	if l.directoryPath == "" {
		return func() {}, nil
	}
	dir := filepath.Dir(l.directoryPath)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("memory: create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return func() {}, nil
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == filepath.Clean(l.directoryPath) {
					l.log.Debug().Str("file", ev.Name).Msg("convention file changed, invalidating cache")
					l.Invalidate()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.log.Warn().Err(err).Msg("memory watcher error")
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		w.Close()
	}, nil
}

func readIfExists(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
