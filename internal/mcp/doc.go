// Package mcp connects the orchestrator to external Model Context
// Protocol servers (official go-sdk underneath) and folds their tools
// into the ordinary tool registry.
//
// # Transports
//
// A server is reached one of three ways:
//
//	TransportTypeStdio  - spawn a subprocess, speak over stdin/stdout
//	TransportTypeLocal  - same mechanism, configured as a local command
//	TransportTypeRemote - HTTP/SSE to a remote endpoint
//
// # Lifecycle
//
// AddServer dials and handshakes; a failed connection is recorded with
// status "failed" and its error, so the dashboard can show what broke
// without the process dying. Disabled servers register without
// connecting. Status/GetServer report per-server state.
//
//	client := mcp.NewClient()
//	err := client.AddServer(ctx, "files", &mcp.Config{
//		Enabled: true,
//		Type:    mcp.TransportTypeStdio,
//		Command: []string{"python", "-m", "my_mcp_server"},
//		Timeout: 5000,
//	})
//
// # Tools
//
// Tools from every connected server surface under namespaced names
// ("files_search" for tool "search" on server "files"), so servers
// can't collide with each other or the built-ins. RegisterMCPTools
// wraps each one as a tool.Tool and registers it; from there the
// sampling loop dispatches MCP tools exactly like local ones:
//
//	mcp.RegisterMCPTools(client, toolRegistry)
//
// # Resources
//
// Server resources are addressed as "mcp://<server>/<uri>" and read
// through ReadResource; ListResources aggregates across servers,
// skipping any that fail rather than hiding the rest.
//
// All client operations are safe for concurrent use.
package mcp
