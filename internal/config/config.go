package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/agentcore/orchestrator/pkg/types"
)

// Load assembles the effective configuration, lowest priority first:
// global config under the XDG config home, then the project's
// .orchestrator directory, then the file named by ORCHESTRATOR_CONFIG, then
// inline JSON from ORCHESTRATOR_CONFIG_CONTENT, then environment variables.
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
		Agent:    make(map[string]types.AgentConfig),
	}

	globalPath := GetPaths().Config
	loadConfigFile(filepath.Join(globalPath, "orchestrator.json"), config)
	loadConfigFile(filepath.Join(globalPath, "orchestrator.jsonc"), config)

	if directory != "" {
		loadConfigFile(filepath.Join(directory, ".orchestrator", "orchestrator.json"), config)
		loadConfigFile(filepath.Join(directory, ".orchestrator", "orchestrator.jsonc"), config)
	}

	if custom := os.Getenv("ORCHESTRATOR_CONFIG"); custom != "" {
		loadConfigFile(custom, config)
	}
	if content := os.Getenv("ORCHESTRATOR_CONFIG_CONTENT"); content != "" {
		var inline types.Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(content)), &inline); err == nil {
			mergeConfig(config, &inline)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// loadConfigFile layers one file into config; a missing file is skipped.
// JSONC comments and trailing commas are tolerated in either extension.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = interpolate(data, filepath.Dir(path))

	var fileConfig types.Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

var (
	envPlaceholder  = regexp.MustCompile(`\{env:([A-Za-z_][A-Za-z0-9_]*)\}`)
	filePlaceholder = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// interpolate expands {env:VAR} and {file:path} placeholders before the
// JSON is parsed. File paths resolve relative to the config file's
// directory; "~" expands to the user's home. Substituted content is
// JSON-escaped so multi-line files stay inside their string value.
func interpolate(data []byte, baseDir string) []byte {
	data = envPlaceholder.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envPlaceholder.FindSubmatch(m)[1]
		return escapeJSONString(os.Getenv(string(name)))
	})
	data = filePlaceholder.ReplaceAllFunc(data, func(m []byte) []byte {
		path := string(filePlaceholder.FindSubmatch(m)[1])
		if strings.HasPrefix(path, "~") {
			if home, err := os.UserHomeDir(); err == nil {
				path = filepath.Join(home, strings.TrimPrefix(path, "~"))
			}
		} else if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return m
		}
		return escapeJSONString(strings.TrimSpace(string(content)))
	})
	return data
}

// escapeJSONString escapes s for inclusion inside a JSON string literal
// (the surrounding quotes come from the config file itself).
func escapeJSONString(s string) []byte {
	quoted, _ := json.Marshal(s)
	return quoted[1 : len(quoted)-1]
}

// mergeConfig overlays the set fields of source onto target. Maps merge
// key-by-key; scalar sections replace wholesale.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Username != "" {
		target.Username = source.Username
	}
	if source.Instructions != nil {
		target.Instructions = source.Instructions
	}
	if source.Permission != nil {
		target.Permission = source.Permission
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SmallModel != "" {
		target.SmallModel = source.SmallModel
	}

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}
	if source.Agent != nil {
		if target.Agent == nil {
			target.Agent = make(map[string]types.AgentConfig)
		}
		for k, v := range source.Agent {
			target.Agent[k] = v
		}
	}

	if source.LSP != nil {
		target.LSP = source.LSP
	}
	if source.Watcher != nil {
		target.Watcher = source.Watcher
	}
	if source.Experimental != nil {
		target.Experimental = source.Experimental
	}
}

// providerKeyEnv maps provider names to the env var carrying their key.
var providerKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"google":    "GOOGLE_API_KEY",
	"bedrock":   "AWS_ACCESS_KEY_ID",
}

// applyEnvOverrides is the last layer: API keys fill gaps (a key from a
// config file wins), model names override outright.
func applyEnvOverrides(config *types.Config) {
	for provider, envVar := range providerKeyEnv {
		apiKey := os.Getenv(envVar)
		if apiKey == "" {
			continue
		}
		if config.Provider == nil {
			config.Provider = make(map[string]types.ProviderConfig)
		}
		p := config.Provider[provider]
		if p.APIKey == "" {
			p.APIKey = apiKey
			config.Provider[provider] = p
		}
	}

	if model := os.Getenv("ORCHESTRATOR_MODEL"); model != "" {
		config.Model = model
	}
	if smallModel := os.Getenv("ORCHESTRATOR_SMALL_MODEL"); smallModel != "" {
		config.SmallModel = smallModel
	}
}

// Save writes config as indented JSON, creating parent directories.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
