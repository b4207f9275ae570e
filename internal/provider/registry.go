package provider

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/agentcore/orchestrator/pkg/types"
)

// Registry holds every configured provider and resolves model lookups.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *types.Config
}

// NewRegistry creates an empty registry bound to the config.
func NewRegistry(config *types.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    config,
	}
}

// Register adds a provider under its ID.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get resolves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns every registered provider.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	return providers
}

// GetModel resolves one model within a provider.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	provider, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}
	for _, model := range provider.Models() {
		if model.ID == modelID {
			return &model, nil
		}
	}
	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// AllModels lists every model across providers, strongest tiers first.
func (r *Registry) AllModels() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []types.Model
	for _, p := range r.providers {
		models = append(models, p.Models()...)
	}
	sort.Slice(models, func(i, j int) bool {
		return modelPriority(models[i].ID) > modelPriority(models[j].ID)
	})
	return models
}

// DefaultModel picks the configured model, else the strongest available.
func (r *Registry) DefaultModel() (*types.Model, error) {
	if r.config != nil && r.config.Model != "" {
		providerID, modelID := ParseModelString(r.config.Model)
		return r.GetModel(providerID, modelID)
	}

	if model, err := r.GetModel("anthropic", "claude-sonnet-4-20250514"); err == nil {
		return model, nil
	}

	models := r.AllModels()
	if len(models) == 0 {
		return nil, fmt.Errorf("no models available")
	}
	return &models[0], nil
}

// ParseModelString splits a "provider/model" reference; a bare string
// reads as a model with no provider.
func ParseModelString(s string) (providerID, modelID string) {
	if p, m, ok := strings.Cut(s, "/"); ok {
		return p, m
	}
	return "", s
}

// modelPriority ranks models for default selection.
func modelPriority(modelID string) int {
	switch {
	case strings.Contains(modelID, "gpt-5"):
		return 100
	case strings.Contains(modelID, "claude-sonnet-4"):
		return 90
	case strings.Contains(modelID, "claude-opus"):
		return 85
	case strings.Contains(modelID, "gpt-4o"):
		return 80
	case strings.Contains(modelID, "claude-3-5"):
		return 75
	case strings.Contains(modelID, "gemini-2"):
		return 70
	default:
		return 50
	}
}

// Provider-family markers carried in the config's npm field.
const (
	NpmOpenAI           = "@ai-sdk/openai"
	NpmOpenAICompatible = "@ai-sdk/openai-compatible"
	NpmAnthropic        = "@ai-sdk/anthropic"
)

// InitializeProviders builds a registry from config, then fills gaps
// from environment API keys so a bare ANTHROPIC_API_KEY is enough to
// get running.
func InitializeProviders(ctx context.Context, config *types.Config) (*Registry, error) {
	registry := NewRegistry(config)
	configured := make(map[string]bool)

	for name, cfg := range config.Provider {
		if cfg.Disable {
			continue
		}
		configured[name] = true

		provider, err := buildProvider(ctx, name, cfg)
		if err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("provider setup failed, skipping")
			continue
		}
		if provider != nil {
			registry.Register(provider)
		}
	}

	if !configured["anthropic"] {
		if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
			provider, err := NewAnthropicProvider(ctx, &AnthropicConfig{
				ID:        "anthropic",
				APIKey:    apiKey,
				MaxTokens: 8192,
			})
			if err != nil {
				log.Warn().Err(err).Msg("anthropic auto-registration failed")
			} else {
				registry.Register(provider)
				log.Debug().Msg("anthropic provider registered from environment")
			}
		}
	}

	if !configured["openai"] {
		if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
			provider, err := NewOpenAIProvider(ctx, &OpenAIConfig{
				ID:        "openai",
				APIKey:    apiKey,
				MaxTokens: 4096,
			})
			if err == nil && provider != nil {
				registry.Register(provider)
			}
		}
	}

	return registry, nil
}

// buildProvider constructs one provider from its config entry, keyed by
// the npm family marker (or inferred from well-known names).
func buildProvider(ctx context.Context, name string, cfg types.ProviderConfig) (Provider, error) {
	apiKey, baseURL := providerCredentials(cfg)

	npm := cfg.Npm
	if npm == "" {
		npm = inferNpmFromProviderName(name)
	}

	switch npm {
	case NpmAnthropic:
		if apiKey == "" {
			return nil, nil
		}
		return NewAnthropicProvider(ctx, &AnthropicConfig{
			ID:        name,
			APIKey:    apiKey,
			BaseURL:   baseURL,
			Model:     cfg.Model,
			MaxTokens: 8192,
		})

	case NpmOpenAI, NpmOpenAICompatible:
		// Compatible backends may run keyless behind a custom base URL.
		if apiKey == "" && baseURL == "" {
			return nil, nil
		}
		return NewOpenAIProvider(ctx, &OpenAIConfig{
			ID:        name,
			APIKey:    apiKey,
			BaseURL:   baseURL,
			Model:     cfg.Model,
			MaxTokens: 4096,
		})
	}

	if name == "ark" && apiKey != "" {
		return NewArkProvider(ctx, &ArkConfig{
			APIKey:    apiKey,
			BaseURL:   baseURL,
			Model:     cfg.Model,
			MaxTokens: 4096,
		})
	}
	return nil, nil
}

// inferNpmFromProviderName maps well-known names to their family marker.
func inferNpmFromProviderName(name string) string {
	switch name {
	case "anthropic", "claude":
		return NpmAnthropic
	case "openai":
		return NpmOpenAI
	default:
		return ""
	}
}

// providerCredentials pulls the key and base URL out of a config entry.
func providerCredentials(cfg types.ProviderConfig) (apiKey, baseURL string) {
	if cfg.Options != nil {
		apiKey = cfg.Options.APIKey
		baseURL = cfg.Options.BaseURL
	}
	return apiKey, baseURL
}
