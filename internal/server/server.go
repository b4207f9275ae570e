// Package server provides the HTTP server for the Agent Orchestration Core's UI Bridge.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agentcore/orchestrator/internal/agent"
	"github.com/agentcore/orchestrator/internal/command"
	"github.com/agentcore/orchestrator/internal/config"
	"github.com/agentcore/orchestrator/internal/coordinator"
	"github.com/agentcore/orchestrator/internal/event"
	"github.com/agentcore/orchestrator/internal/executor"
	"github.com/agentcore/orchestrator/internal/knowledge"
	"github.com/agentcore/orchestrator/internal/mcp"
	"github.com/agentcore/orchestrator/internal/orchestrator"
	"github.com/agentcore/orchestrator/internal/permission"
	"github.com/agentcore/orchestrator/internal/project"
	"github.com/agentcore/orchestrator/internal/provider"
	"github.com/agentcore/orchestrator/internal/selector"
	"github.com/agentcore/orchestrator/internal/selfimprove"
	"github.com/agentcore/orchestrator/internal/session"
	"github.com/agentcore/orchestrator/internal/storage"
	"github.com/agentcore/orchestrator/internal/taskstore"
	"github.com/agentcore/orchestrator/internal/tool"
	"github.com/agentcore/orchestrator/internal/vcs"
	"github.com/agentcore/orchestrator/pkg/types"
)

// Config holds server configuration.
type Config struct {
	Port         int
	Directory    string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		Directory:    "",
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for SSE
	}
}

// Server is the HTTP server.
type Server struct {
	config           *Config
	router           *chi.Mux
	httpSrv          *http.Server
	appConfig        *types.Config
	storage          *storage.Storage
	sessionService   *session.Service
	providerReg      *provider.Registry
	toolReg          *tool.Registry
	bus              *event.Bus
	mcpClient        *mcp.Client
	commandExecutor  *command.Executor
	selfImprove      *selfimprove.Hooks
	vcsWatcher       *vcs.Watcher
	projectService   *project.Service
	taskStore        *taskstore.Store
	knowledgeStore   *knowledge.Store
}

// New creates a new Server instance.
func New(cfg *Config, appConfig *types.Config, store *storage.Storage, providerReg *provider.Registry, toolReg *tool.Registry) *Server {
	r := chi.NewRouter()

	// Parse default provider and model from config
	// Format: "provider/model" (e.g., "ark/ep-xxx" or "anthropic/claude-sonnet-4-20250514")
	var defaultProviderID, defaultModelID string
	if appConfig != nil && appConfig.Model != "" {
		parts := strings.SplitN(appConfig.Model, "/", 2)
		if len(parts) == 2 {
			defaultProviderID = parts[0]
			defaultModelID = parts[1]
		}
	}

	// Create MCP client
	mcpClient := mcp.NewClient()

	// Create command executor
	cmdExecutor := command.NewExecutor(cfg.Directory, appConfig)

	// Track the working tree's VCS branch so dashboard clients see branch
	// switches as events instead of polling. Nil outside a repository.
	var vcsWatcher *vcs.Watcher
	if w, err := vcs.NewWatcher(cfg.Directory); err == nil && w != nil {
		w.Start()
		vcsWatcher = w
	}

	permChecker := permission.NewChecker()
	sessionService := session.NewServiceWithProcessor(store, providerReg, toolReg, permChecker, defaultProviderID, defaultModelID).
		WithCommands(cmdExecutor)

	// Wire the CEO/Orchestrator: agent registry + Subagent Coordinator back
	// the `task` tool's delegation path and the pre-loop planning pass, both
	// isolated per-subagent-session via executor.SubagentExecutor.
	agentRegistry := agent.NewRegistry()
	subagentExecutor := executor.NewSubagentExecutor(executor.SubagentExecutorConfig{
		Storage:           store,
		ProviderRegistry:  providerReg,
		ToolRegistry:      toolReg,
		PermissionChecker: permChecker,
		AgentRegistry:     agentRegistry,
		WorkDir:           cfg.Directory,
		DefaultProviderID: defaultProviderID,
		DefaultModelID:    defaultModelID,
		Metrics:           sessionService.Metrics(),
	})
	toolReg.RegisterTaskTool(agentRegistry)
	toolReg.SetTaskExecutor(subagentExecutor)

	coord := coordinator.New(subagentExecutor)
	smartSelector := selector.New(providerReg, defaultProviderID, defaultModelID)
	taskStore := taskstore.New(store)
	knowledgeStore := knowledge.New(store)
	if appConfig != nil && appConfig.SelfImprovement != nil && appConfig.SelfImprovement.SQLIndex {
		dbPath := filepath.Join(config.GetPaths().Data, "knowledge.db")
		if idx, err := knowledge.OpenSQLIndex(dbPath); err != nil {
			log.Printf("knowledge: sqlite index disabled: %v", err)
		} else {
			knowledgeStore = knowledgeStore.WithSQLIndex(idx)
		}
	}
	selfImprove := selfimprove.New(knowledgeStore, store)
	if appConfig != nil && appConfig.SelfImprovement != nil && appConfig.SelfImprovement.MiningSchedule != "" {
		schedule := appConfig.SelfImprovement.MiningSchedule
		if !gronx.IsValid(schedule) {
			log.Printf("self-improvement: invalid mining schedule %q, background mining disabled", schedule)
		} else if err := selfImprove.StartCronMining(schedule, func() []string {
			sessions, err := sessionService.List(context.Background(), "")
			if err != nil {
				return nil
			}
			ids := make([]string, len(sessions))
			for i, sess := range sessions {
				ids[i] = sess.ID
			}
			return ids
		}, func(*selfimprove.BackgroundScanResult) {}); err != nil {
			log.Printf("self-improvement: failed to start cron mining: %v", err)
		}
	}
	orch := orchestrator.New(smartSelector, coord, taskStore, selfImprove, agentRegistry)
	sessionService.WithOrchestrator(orch).WithSelfImprovement(selfImprove)

	// Chat-side task tool: root tasks only; nesting stays a dashboard
	// move. The project resolves from the calling session.
	toolReg.Register(tool.NewTaskWriteTool(taskStore, func(ctx context.Context, sessionID string) string {
		sess, err := sessionService.Get(ctx, sessionID)
		if err != nil {
			return ""
		}
		return sess.ProjectID
	}))

	s := &Server{
		config:           cfg,
		router:           r,
		appConfig:        appConfig,
		storage:          store,
		sessionService:   sessionService,
		providerReg:      providerReg,
		toolReg:          toolReg,
		bus:              event.NewBus(),
		mcpClient:        mcpClient,
		commandExecutor:  cmdExecutor,
		selfImprove:      selfImprove,
		vcsWatcher:       vcsWatcher,
		projectService:   project.NewService(cfg.Directory),
		taskStore:        taskStore,
		knowledgeStore:   knowledgeStore,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// InitializeMCP initializes MCP servers from configuration.
func (s *Server) InitializeMCP(ctx context.Context) error {
	if s.appConfig == nil || s.appConfig.MCP == nil {
		return nil
	}

	for name, cfg := range s.appConfig.MCP {
		enabled := cfg.Enabled == nil || *cfg.Enabled
		mcpCfg := &mcp.Config{
			Enabled:     enabled,
			Type:        mcp.TransportType(cfg.Type),
			URL:         cfg.URL,
			Headers:     cfg.Headers,
			Command:     cfg.Command,
			Environment: cfg.Environment,
			Timeout:     cfg.Timeout,
		}
		if err := s.mcpClient.AddServer(ctx, name, mcpCfg); err != nil {
			// Log but don't fail on individual server errors
			continue
		}
	}

	return nil
}

// CloseMCP closes all MCP server connections.
func (s *Server) CloseMCP() error {
	if s.mcpClient != nil {
		return s.mcpClient.Close()
	}
	return nil
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	// Request ID
	s.router.Use(middleware.RequestID)

	// Logging
	s.router.Use(middleware.Logger)

	// Recover from panics
	s.router.Use(middleware.Recoverer)

	// Real IP
	s.router.Use(middleware.RealIP)

	// CORS
	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Instance context
	s.router.Use(s.instanceContext)
}

// instanceContext middleware injects directory into context.
func (s *Server) instanceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dir := r.URL.Query().Get("directory")
		if dir == "" {
			dir = s.config.Directory
		}

		ctx := context.WithValue(r.Context(), contextKeyDirectory, dir)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.selfImprove != nil {
		s.selfImprove.Stop()
	}
	if s.vcsWatcher != nil {
		_ = s.vcsWatcher.Stop()
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MCPClient returns the server's MCP client.
func (s *Server) MCPClient() *mcp.Client {
	return s.mcpClient
}

// ToolRegistry returns the tool registry the server was built with.
func (s *Server) ToolRegistry() *tool.Registry {
	return s.toolReg
}

// Context keys
type contextKey string

const (
	contextKeyDirectory contextKey = "directory"
)

// getDirectory returns the directory from context.
func getDirectory(ctx context.Context) string {
	if dir, ok := ctx.Value(contextKeyDirectory).(string); ok {
		return dir
	}
	return ""
}
