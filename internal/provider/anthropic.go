package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/agentcore/orchestrator/pkg/types"
)

// AnthropicProvider serves Claude models, directly or through Bedrock.
type AnthropicProvider struct {
	chatModel model.ToolCallingChatModel
	models    []types.Model
	config    *AnthropicConfig
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	// ID overrides the provider key (defaults to "anthropic").
	ID        string
	APIKey    string
	BaseURL   string
	Model     string // e.g. "claude-sonnet-4-20250514"
	MaxTokens int

	// Thinking enables extended reasoning with a token budget.
	Thinking *claude.Thinking

	// Bedrock routing.
	UseBedrock bool
	Region     string
	Profile    string
}

// NewAnthropicProvider builds the provider; the API key falls back to
// ANTHROPIC_API_KEY (Bedrock runs keyless on AWS credentials).
func NewAnthropicProvider(ctx context.Context, config *AnthropicConfig) (*AnthropicProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" && !config.UseBedrock {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	modelID := config.Model
	if modelID == "" {
		modelID = "claude-sonnet-4-20250514"
	}

	var chatModel model.ToolCallingChatModel
	var err error
	if config.UseBedrock {
		// Bedrock names models with a vendor prefix and revision suffix.
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			ByBedrock: true,
			Region:    config.Region,
			Profile:   config.Profile,
			Model:     "anthropic." + modelID + "-v1:0",
			MaxTokens: config.MaxTokens,
			Thinking:  config.Thinking,
		})
	} else {
		cfg := &claude.Config{
			APIKey:    apiKey,
			Model:     modelID,
			MaxTokens: config.MaxTokens,
			Thinking:  config.Thinking,
		}
		if config.BaseURL != "" {
			cfg.BaseURL = &config.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Claude model: %w", err)
	}

	return &AnthropicProvider{
		chatModel: chatModel,
		models:    anthropicModels(),
		config:    config,
	}, nil
}

// ID returns the provider key.
func (p *AnthropicProvider) ID() string {
	if p.config.ID != "" {
		return p.config.ID
	}
	return "anthropic"
}

// Name returns the display name.
func (p *AnthropicProvider) Name() string { return "Anthropic" }

// Models lists the served Claude models.
func (p *AnthropicProvider) Models() []types.Model {
	return p.models
}

// ChatModel exposes the eino model.
func (p *AnthropicProvider) ChatModel() model.ToolCallingChatModel {
	return p.chatModel
}

// CreateCompletion binds any tools and opens a stream.
func (p *AnthropicProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	chatModel := p.chatModel
	if len(req.Tools) > 0 {
		var err error
		chatModel, err = chatModel.WithTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
	}

	stream, err := chatModel.Stream(ctx, req.Messages,
		model.WithMaxTokens(req.MaxTokens),
		model.WithTemperature(float32(req.Temperature)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}
	return NewCompletionStream(stream), nil
}

// anthropicModels is the static catalog of served Claude models.
func anthropicModels() []types.Model {
	return []types.Model{
		{
			ID:              "claude-sonnet-4-20250514",
			Name:            "Claude Sonnet 4",
			ProviderID:      "anthropic",
			ContextLength:   200000,
			MaxOutputTokens: 64000,
			SupportsTools:   true,
			SupportsVision:  true,
			InputPrice:      3.0,
			OutputPrice:     15.0,
			Options: types.ModelOptions{
				PromptCaching:  true,
				ExtendedOutput: true,
			},
		},
		{
			ID:                "claude-opus-4-20250514",
			Name:              "Claude Opus 4",
			ProviderID:        "anthropic",
			ContextLength:     200000,
			MaxOutputTokens:   32000,
			SupportsTools:     true,
			SupportsVision:    true,
			SupportsReasoning: true,
			InputPrice:        15.0,
			OutputPrice:       75.0,
			Options: types.ModelOptions{
				PromptCaching: true,
			},
		},
		{
			ID:              "claude-3-5-sonnet-20241022",
			Name:            "Claude 3.5 Sonnet",
			ProviderID:      "anthropic",
			ContextLength:   200000,
			MaxOutputTokens: 8192,
			SupportsTools:   true,
			SupportsVision:  true,
			InputPrice:      3.0,
			OutputPrice:     15.0,
			Options: types.ModelOptions{
				PromptCaching: true,
			},
		},
		{
			ID:              "claude-3-5-haiku-20241022",
			Name:            "Claude 3.5 Haiku",
			ProviderID:      "anthropic",
			ContextLength:   200000,
			MaxOutputTokens: 8192,
			SupportsTools:   true,
			SupportsVision:  true,
			InputPrice:      0.8,
			OutputPrice:     4.0,
		},
		{
			ID:              "claude-haiku-4-5-20251001",
			Name:            "Claude 4.5 Haiku",
			ProviderID:      "anthropic",
			ContextLength:   200000,
			MaxOutputTokens: 8192,
			SupportsTools:   true,
			SupportsVision:  true,
			InputPrice:      0.8,
			OutputPrice:     4.0,
		},
		// Undated alias for the latest 4.5 Haiku.
		{
			ID:              "claude-haiku-4-5",
			Name:            "Claude 4.5 Haiku",
			ProviderID:      "anthropic",
			ContextLength:   200000,
			MaxOutputTokens: 8192,
			SupportsTools:   true,
			SupportsVision:  true,
			InputPrice:      0.8,
			OutputPrice:     4.0,
		},
	}
}
