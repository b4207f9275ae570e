// Package config loads and layers the orchestrator's configuration and
// resolves its on-disk directory layout.
//
// # Layering
//
// Load merges these layers, lowest priority first:
//
//  1. Global config under the XDG config home
//     (~/.config/orchestrator/orchestrator.json[c])
//  2. Project config (.orchestrator/orchestrator.json[c] in the working
//     directory)
//  3. The file named by ORCHESTRATOR_CONFIG, then inline JSON from
//     ORCHESTRATOR_CONFIG_CONTENT
//  4. Environment variables: ORCHESTRATOR_MODEL and
//     ORCHESTRATOR_SMALL_MODEL override model choices outright; provider
//     API keys (ANTHROPIC_API_KEY, OPENAI_API_KEY, ...) fill in only
//     where the files left a key empty.
//
// Scalars from a later layer replace earlier values; the provider and
// agent maps merge key by key.
//
// # File format
//
// Both extensions accept JSONC — comments and trailing commas are
// stripped with tidwall/jsonc before parsing. Two placeholder forms
// expand before parsing as well:
//
//   - {env:VAR_NAME} — the environment variable's value
//   - {file:path} — the file's contents, JSON-escaped; relative paths
//     resolve against the config file's directory and "~" expands to
//     the user's home
//
// Example:
//
//	{
//	  "provider": {
//	    "anthropic": {
//	      "options": {"apiKey": "{env:ANTHROPIC_API_KEY}"}
//	    }
//	  },
//	  "instructions": ["{file:~/custom-instructions.txt}"]
//	}
//
// # Directory layout
//
// Paths follows the XDG Base Directory spec (APPDATA on Windows):
//
//   - Data: ~/.local/share/orchestrator — persistent stores
//   - Config: ~/.config/orchestrator — configuration
//   - Cache: ~/.cache/orchestrator — disposable caches
//   - State: ~/.local/state/orchestrator — logs and runtime state
//
// Typical startup:
//
//	cfg, err := config.Load(workDir)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("config")
//	}
//	paths := config.GetPaths()
//	if err := paths.EnsurePaths(); err != nil {
//	    log.Fatal().Err(err).Msg("paths")
//	}
package config
