package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds the orchestrator's XDG directory layout.
type Paths struct {
	Data   string // ~/.local/share/orchestrator
	Config string // ~/.config/orchestrator
	Cache  string // ~/.cache/orchestrator
	State  string // ~/.local/state/orchestrator
}

// GetPaths resolves the layout from XDG_* variables, falling back to
// the platform conventions.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(envOr("XDG_DATA_HOME", defaultDataHome()), "orchestrator"),
		Config: filepath.Join(envOr("XDG_CONFIG_HOME", defaultConfigHome()), "orchestrator"),
		Cache:  filepath.Join(envOr("XDG_CACHE_HOME", defaultCacheHome()), "orchestrator"),
		State:  filepath.Join(envOr("XDG_STATE_HOME", defaultStateHome()), "orchestrator"),
	}
}

// EnsurePaths creates every directory in the layout.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// StoragePath is where the persistence layer roots itself.
func (p *Paths) StoragePath() string {
	return filepath.Join(p.Data, "storage")
}

// AuthPath is where provider credentials live.
func (p *Paths) AuthPath() string {
	return filepath.Join(p.Data, "auth.json")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GlobalConfigPath is the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "orchestrator.json")
}

// ProjectConfigPath is the per-project config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, ".orchestrator", "orchestrator.json")
}
