package testutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentcore/orchestrator/internal/config"
	"github.com/agentcore/orchestrator/internal/provider"
	"github.com/agentcore/orchestrator/internal/server"
	"github.com/agentcore/orchestrator/internal/storage"
	"github.com/agentcore/orchestrator/internal/tool"
	"github.com/agentcore/orchestrator/pkg/types"
)

// TestServer wraps a server instance for testing
type TestServer struct {
	Server      *server.Server
	BaseURL     string
	Config      *types.Config
	Storage     *storage.Storage
	ProviderReg *provider.Registry
	ToolReg     *tool.Registry
	TempDir     string
	WorkDir     string
	port        int
	mockLLM     *MockLLMServer // MockLLM server if using mockllm provider
}

// TestServerOption configures TestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	workDir string
	envFile string
}

// WithWorkDir sets the working directory
func WithWorkDir(dir string) TestServerOption {
	return func(c *testServerConfig) {
		c.workDir = dir
	}
}

// WithEnvFile sets the .env file to load
func WithEnvFile(path string) TestServerOption {
	return func(c *testServerConfig) {
		c.envFile = path
	}
}

// StartTestServer creates and starts a test server
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// Load environment variables
	if cfg.envFile != "" {
		_ = godotenv.Load(cfg.envFile)
	} else {
		// Try default locations
		_ = godotenv.Load("../../.env")
		_ = godotenv.Load("../.env")
		_ = godotenv.Load(".env")
	}

	tempDir, err := os.MkdirTemp("", "orchestrator-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	workDir := cfg.workDir
	if workDir == "" {
		workDir = tempDir
	}

	testProvider := os.Getenv("TEST_PROVIDER")
	if testProvider == "" {
		testProvider = "openai" // Default to OpenAI
	}

	var mockLLM *MockLLMServer

	switch testProvider {
	case "mockllm":
		configDir := getMockLLMConfigDir()
		var err error
		if configDir != "" {
			mockLLM, err = NewMockLLMServerFromDir(configDir)
			if err != nil {
				// Fall back to default config if loading fails
				mockLLM = NewMockLLMServer()
			}
		} else {
			mockLLM = NewMockLLMServer()
		}

		os.Setenv("OPENAI_BASE_URL", mockLLM.URL())
		os.Setenv("OPENAI_API_KEY", "mock-api-key")
		os.Setenv("OPENAI_MODEL_ID", "gpt-4o-mini")
		if os.Getenv("ORCHESTRATOR_MODEL") == "" {
			os.Setenv("ORCHESTRATOR_MODEL", "openai/gpt-4o-mini")
		}

	case "ark":
		if os.Getenv("ORCHESTRATOR_MODEL") == "" {
			arkModelID := os.Getenv("ARK_MODEL_ID")
			if arkModelID != "" {
				os.Setenv("ORCHESTRATOR_MODEL", "ark/"+arkModelID)
			}
		}

	case "openai":
		if os.Getenv("ORCHESTRATOR_MODEL") == "" {
			openaiModelID := os.Getenv("OPENAI_MODEL_ID")
			if openaiModelID == "" {
				openaiModelID = "gpt-4o-mini"
				os.Setenv("OPENAI_MODEL_ID", openaiModelID)
			}
			os.Setenv("ORCHESTRATOR_MODEL", "openai/"+openaiModelID)
		}

	case "anthropic":
		if os.Getenv("ORCHESTRATOR_MODEL") == "" {
			anthropicModelID := os.Getenv("ANTHROPIC_MODEL_ID")
			if anthropicModelID == "" {
				anthropicModelID = "claude-sonnet-4-20250514"
				os.Setenv("ANTHROPIC_MODEL_ID", anthropicModelID)
			}
			os.Setenv("ORCHESTRATOR_MODEL", "anthropic/"+anthropicModelID)
		}
	}

	// This ensures config.Load() finds our test configuration
	configPath := getTestConfigPath()
	if configPath != "" {
		os.Setenv("ORCHESTRATOR_CONFIG", configPath)
	}

	// Load config from orchestrator.json using config.Load()
	// The config file uses {env:VAR} interpolation for provider settings
	appConfig, err := config.Load(workDir)
	if err != nil {
		if mockLLM != nil {
			mockLLM.Close()
		}
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Helper for cleanup on error
	cleanup := func() {
		if mockLLM != nil {
			mockLLM.Close()
		}
		os.RemoveAll(tempDir)
	}

	// Find available port
	port, err := findAvailablePort()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	ctx := context.Background()

	storagePath := filepath.Join(tempDir, "storage")
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	store := storage.New(storagePath)

	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	toolReg := tool.DefaultRegistry(workDir, store)

	// Configure server
	serverConfig := server.DefaultConfig()
	serverConfig.Port = port
	serverConfig.Directory = workDir

	srv := server.New(serverConfig, appConfig, store, providerReg, toolReg)

	go func() {
		_ = srv.Start()
	}()

	baseURL := fmt.Sprintf("http://localhost:%d", port)
	if err := waitForServer(baseURL, 10*time.Second); err != nil {
		srv.Shutdown(ctx)
		cleanup()
		return nil, fmt.Errorf("server failed to start: %w", err)
	}

	return &TestServer{
		Server:      srv,
		BaseURL:     baseURL,
		Config:      appConfig,
		Storage:     store,
		ProviderReg: providerReg,
		ToolReg:     toolReg,
		TempDir:     tempDir,
		WorkDir:     workDir,
		port:        port,
		mockLLM:     mockLLM,
	}, nil
}

// Stop shuts down the test server and cleans up
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ts.Server != nil {
		if err := ts.Server.Shutdown(ctx); err != nil {
			return err
		}
	}

	// Close MockLLM server if running
	if ts.mockLLM != nil {
		ts.mockLLM.Close()
	}

	if ts.TempDir != "" {
		os.RemoveAll(ts.TempDir)
	}

	return nil
}

// Client returns a new test client for this server
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// SSEClient returns a new SSE client for this server
func (ts *TestServer) SSEClient() *SSEClient {
	return NewSSEClient(ts.BaseURL)
}

// getTestConfigPath returns the path to the test configuration file.
// It searches for citest/config/orchestrator.json relative to the current directory.
func getTestConfigPath() string {
	// Try to find the config file relative to current directory
	// This handles running tests from different directories
	candidates := []string{
		"citest/config/orchestrator.json",
		"../citest/config/orchestrator.json",
		"../../citest/config/orchestrator.json",
		"../../../citest/config/orchestrator.json",
	}

	for _, candidate := range candidates {
		if absPath, err := filepath.Abs(candidate); err == nil {
			if _, err := os.Stat(absPath); err == nil {
				return absPath
			}
		}
	}

	// Also check if ORCHESTRATOR_CONFIG is already set
	if existing := os.Getenv("ORCHESTRATOR_CONFIG"); existing != "" {
		return existing
	}

	return ""
}

// getMockLLMConfigDir returns the directory containing mockllm.yaml config.
func getMockLLMConfigDir() string {
	candidates := []string{
		"citest/config",
		"../citest/config",
		"../../citest/config",
		"../../../citest/config",
	}

	for _, candidate := range candidates {
		if absPath, err := filepath.Abs(candidate); err == nil {
			mockllmPath := filepath.Join(absPath, "mockllm.yaml")
			if _, err := os.Stat(mockllmPath); err == nil {
				return absPath
			}
		}
	}

	return ""
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer waits for the server to be ready
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(context.Background(), "/config")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
