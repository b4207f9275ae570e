package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes wires the whole HTTP surface onto the chi router.
func (s *Server) setupRoutes() {
	r := s.router

	// Prometheus scrape endpoint.
	r.Handle("/metrics", promhttp.Handler())

	// Project identity
	r.Route("/project", func(r chi.Router) {
		r.Get("/", s.listProjects)
		r.Get("/current", s.getCurrentProject)
	})

	// Sessions and their messages
	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Get("/status", s.getSessionStatus)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Patch("/", s.updateSession)
			r.Delete("/", s.deleteSession)

			r.Get("/message", s.getMessages)
			r.Post("/message", s.sendMessage)
			r.Get("/message/{messageID}", s.getMessage)

			r.Get("/children", s.getChildren)
			r.Post("/fork", s.forkSession)
			r.Post("/abort", s.abortSession)
			r.Post("/share", s.shareSession)
			r.Delete("/share", s.unshareSession)
			r.Post("/summarize", s.summarizeSession)
			r.Post("/init", s.initSession)
			r.Get("/diff", s.getDiff)
			r.Get("/todo", s.getTodo)
			r.Post("/revert", s.revertSession)
			r.Post("/unrevert", s.unrevertSession)
			r.Post("/command", s.sendCommand)
			r.Post("/shell", s.runShell)

			r.Post("/permissions/{permissionID}", s.respondPermission)
		})
	})

	// SSE event streams: /stream is the unfiltered firehose (with a
	// greeting frame), /event scopes to one session, /global/event is
	// the bare firehose.
	r.Get("/stream", s.allEvents)
	r.Get("/event", s.sessionEvents)
	r.Get("/global/event", s.globalEvents)

	// File browsing
	r.Route("/file", func(r chi.Router) {
		r.Get("/", s.listFiles)
		r.Get("/content", s.readFile)
		r.Get("/status", s.gitStatus)
	})

	// Dashboard: task-tree and knowledge browsing. Tasks are addressed
	// by their folder chain ("parent-abc123/child-def456"); nesting goes
	// through /tasks/move so folder location stays authoritative.
	r.Route("/dashboard", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.listDashboardTasks)
			r.Post("/", s.createDashboardTask)
			r.Get("/task", s.getDashboardTask)
			r.Patch("/task", s.updateDashboardTask)
			r.Post("/move", s.moveDashboardTask)
			r.Get("/summary", s.taskSummary)
		})
		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/", s.listDashboardKnowledge)
			r.Post("/", s.addDashboardKnowledge)
			r.Get("/entry", s.getDashboardKnowledge)
			r.Get("/search", s.searchDashboardKnowledge)
			r.Post("/link", s.linkDashboardKnowledge)
			r.Get("/summary", s.knowledgeSummary)
		})
	})

	// Search across files, content, symbols
	r.Route("/find", func(r chi.Router) {
		r.Get("/", s.searchText)
		r.Get("/file", s.searchFiles)
		r.Get("/symbol", s.searchSymbols)
	})

	r.Route("/config", func(r chi.Router) {
		r.Get("/", s.getConfig)
		r.Patch("/", s.updateConfig)
		r.Get("/providers", s.listProviders)
	})

	r.Route("/provider", func(r chi.Router) {
		r.Get("/", s.listAllProviders)
		r.Get("/auth", s.getAuthMethods)
		r.Post("/{providerID}/oauth/authorize", s.oauthAuthorize)
		r.Post("/{providerID}/oauth/callback", s.oauthCallback)
	})

	r.Put("/auth/{providerID}", s.setAuth)

	r.Get("/lsp", s.getLSPStatus)
	r.Get("/agent", s.listAgents)

	// External MCP servers
	r.Route("/mcp", func(r chi.Router) {
		r.Get("/", s.getMCPStatus)
		r.Post("/", s.addMCPServer)
		r.Delete("/{name}", s.removeMCPServer)
		r.Get("/tools", s.getMCPTools)
		r.Post("/tool/{name}", s.executeMCPTool)
		r.Get("/resources", s.getMCPResources)
		r.Get("/resource", s.readMCPResource)
	})

	// Slash commands
	r.Route("/command", func(r chi.Router) {
		r.Get("/", s.listCommands)
		r.Get("/{name}", s.getCommand)
		r.Post("/{name}", s.executeCommand)
	})

	r.Get("/path", s.getPath)
	r.Post("/log", s.writeLog)
	r.Post("/instance/dispose", s.disposeInstance)

	r.Route("/experimental", func(r chi.Router) {
		r.Get("/tool/ids", s.getToolIDs)
		r.Get("/tool", s.getToolDefinitions)
	})

	// Remote-control surface for attached UI clients
	r.Route("/tui", func(r chi.Router) {
		r.Post("/append-prompt", s.tuiAppendPrompt)
		r.Post("/execute-command", s.tuiExecuteCommand)
		r.Post("/show-toast", s.tuiShowToast)
		r.Post("/publish", s.tuiPublish)
		r.Post("/open-help", s.tuiOpenHelp)
		r.Post("/open-sessions", s.tuiOpenSessions)
		r.Post("/open-themes", s.tuiOpenThemes)
		r.Post("/open-models", s.tuiOpenModels)
		r.Post("/submit-prompt", s.tuiSubmitPrompt)
		r.Post("/clear-prompt", s.tuiClearPrompt)

		// Polling fallback for clients that cannot hold a connection
		r.Route("/control", func(r chi.Router) {
			r.Get("/next", s.tuiControlNext)
			r.Post("/response", s.tuiControlResponse)
		})
	})

	// Client-registered tools
	r.Route("/client-tools", func(r chi.Router) {
		r.Post("/register", s.registerClientTool)
		r.Delete("/unregister", s.unregisterClientTool)
		r.Post("/execute", s.executeClientTool)
		r.Post("/result", s.submitClientToolResult)

		r.Get("/pending/{clientID}", s.clientToolsPending)
		r.Get("/tools/{clientID}", s.getClientTools)
		r.Get("/tools", s.getAllClientTools)
	})

	r.Get("/doc", s.openAPISpec)
}
