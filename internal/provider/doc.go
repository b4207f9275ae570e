// Package provider wraps every LLM vendor behind one interface so the
// sampling loop issues a single kind of call regardless of who serves
// it. All request/response plumbing rides on the eino framework's
// ChatModel abstraction.
//
// # Providers
//
// Three adapters ship built-in:
//
//   - Anthropic (Claude), directly or via AWS Bedrock, with extended
//     thinking support
//   - OpenAI, directly or via Azure; with a custom base URL it also
//     fronts OpenAI-compatible servers (ollama, qwen, vllm)
//   - Volcengine ARK, addressed by endpoint ID
//
// Each adapter implements Provider: identity, a static model catalog,
// the underlying eino ChatModel, and CreateCompletion for streaming
// calls with tools bound per request.
//
// # Registry
//
// Registry resolves "provider/model" references and picks defaults.
// InitializeProviders builds it from configuration:
//
//	registry, err := provider.InitializeProviders(ctx, cfg)
//	p, err := registry.Get("anthropic")
//	m, err := registry.GetModel("anthropic", "claude-sonnet-4-20250514")
//
// Config entries choose their adapter through the npm family marker
// ("@ai-sdk/anthropic", "@ai-sdk/openai", "@ai-sdk/openai-compatible");
// well-known names infer it. Providers whose API key is present only in
// the environment (ANTHROPIC_API_KEY, OPENAI_API_KEY) are registered
// automatically, so a bare key is enough to get running.
//
// # Model catalogs
//
// Each adapter publishes a static catalog (context window, output cap,
// tool/vision/reasoning support, prices). AllModels merges the catalogs
// sorted by capability tier; DefaultModel follows the configured
// "model" reference and otherwise picks the strongest available.
package provider
