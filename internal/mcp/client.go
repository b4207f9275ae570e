package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client connects to configured MCP servers (official go-sdk underneath)
// and surfaces their tools to the registry under namespaced names.
type Client struct {
	mu        sync.RWMutex
	servers   map[string]*mcpServer
	sdkClient *sdkmcp.Client
}

// mcpServer is one configured server plus its live session state.
type mcpServer struct {
	name       string
	config     *Config
	session    *sdkmcp.ClientSession
	tools      []Tool
	resources  []Resource
	prompts    []Prompt
	status     Status
	error      string
	serverInfo *ServerInfo
}

// NewClient creates a client with no servers attached.
func NewClient() *Client {
	return &Client{
		servers: make(map[string]*mcpServer),
		sdkClient: sdkmcp.NewClient(&sdkmcp.Implementation{
			Name:    "orchestrator",
			Version: "1.0.0",
		}, nil),
	}
}

// AddServer registers a server and connects unless it is disabled. A
// failed connection is recorded (status failed) and returned as error,
// but the entry stays visible for status reporting.
func (c *Client) AddServer(ctx context.Context, name string, config *Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.servers[name]; ok {
		return fmt.Errorf("server already exists: %s", name)
	}

	if !config.Enabled {
		c.servers[name] = &mcpServer{name: name, config: config, status: StatusDisabled}
		return nil
	}

	server, err := c.connectServer(ctx, name, config)
	if err != nil {
		c.servers[name] = &mcpServer{
			name:   name,
			config: config,
			status: StatusFailed,
			error:  err.Error(),
		}
		return err
	}

	c.servers[name] = server
	return nil
}

// connectServer dials one server over its configured transport and
// performs the initialize handshake.
func (c *Client) connectServer(ctx context.Context, name string, config *Config) (*mcpServer, error) {
	timeout := time.Duration(config.Timeout) * time.Millisecond
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var transport sdkmcp.Transport
	switch config.Type {
	case TransportTypeRemote:
		transport = &sdkmcp.SSEClientTransport{
			Endpoint:   config.URL,
			HTTPClient: &http.Client{Timeout: timeout},
		}

	case TransportTypeLocal, TransportTypeStdio:
		if len(config.Command) == 0 {
			return nil, fmt.Errorf("empty command")
		}
		cmd := exec.Command(config.Command[0], config.Command[1:]...)
		cmd.Env = os.Environ()
		for k, v := range config.Environment {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
		transport = &sdkmcp.CommandTransport{Command: cmd}

	default:
		return nil, fmt.Errorf("unknown transport type: %s", config.Type)
	}

	server := &mcpServer{name: name, config: config, status: StatusConnecting}

	session, err := c.sdkClient.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	server.session = session

	if initResult := session.InitializeResult(); initResult != nil {
		server.serverInfo = &ServerInfo{
			Name:    initResult.ServerInfo.Name,
			Version: initResult.ServerInfo.Version,
		}
	}

	// A server without tool support still connects; it just lists none.
	if err := server.listTools(ctx); err != nil {
		server.tools = []Tool{}
	}

	server.status = StatusConnected
	return server, nil
}

// listTools caches the server's advertised tools.
func (s *mcpServer) listTools(ctx context.Context) error {
	if s.session == nil {
		return fmt.Errorf("not connected")
	}

	result, err := s.session.ListTools(ctx, nil)
	if err != nil {
		return err
	}

	s.tools = make([]Tool, len(result.Tools))
	for i, t := range result.Tools {
		s.tools[i] = FromSDKTool(t)
	}
	return nil
}

// Tools lists every connected server's tools, each namespaced as
// "<server>_<tool>" so names never collide across servers.
func (c *Client) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var allTools []Tool
	for name, server := range c.servers {
		if server.status != StatusConnected {
			continue
		}
		for _, tool := range server.tools {
			allTools = append(allTools, Tool{
				Name:        sanitizeToolName(name) + "_" + sanitizeToolName(tool.Name),
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			})
		}
	}
	return allTools
}

// resolveTool maps a namespaced tool name back to its server and the
// server's own (unsanitized) tool name.
func (c *Client) resolveTool(toolName string) (*mcpServer, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, server := range c.servers {
		if server.status != StatusConnected {
			continue
		}
		prefix := sanitizeToolName(name) + "_"
		if !strings.HasPrefix(toolName, prefix) {
			continue
		}
		stripped := strings.TrimPrefix(toolName, prefix)
		for _, t := range server.tools {
			if sanitizeToolName(t.Name) == stripped {
				return server, t.Name
			}
		}
		return server, stripped
	}
	return nil, ""
}

// ExecuteTool routes a namespaced call to its server and returns the
// concatenated text content. Tool-reported errors come back as errors.
func (c *Client) ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) (string, error) {
	server, originalToolName := c.resolveTool(toolName)
	if server == nil {
		return "", fmt.Errorf("no server found for tool: %s", toolName)
	}
	if server.session == nil {
		return "", fmt.Errorf("server not connected: %s", server.name)
	}

	var argsMap map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argsMap); err != nil {
			return "", fmt.Errorf("failed to parse arguments: %w", err)
		}
	}

	result, err := server.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      originalToolName,
		Arguments: argsMap,
	})
	if err != nil {
		return "", err
	}

	if result.IsError {
		for _, content := range result.Content {
			if textContent, ok := content.(*sdkmcp.TextContent); ok {
				return "", fmt.Errorf("tool error: %s", textContent.Text)
			}
		}
		return "", fmt.Errorf("tool execution failed")
	}

	var output strings.Builder
	for _, content := range result.Content {
		if textContent, ok := content.(*sdkmcp.TextContent); ok {
			output.WriteString(textContent.Text)
		}
	}
	return output.String(), nil
}

// ListResources lists every connected server's resources under
// "mcp://<server>/<uri>" addressing.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var allResources []Resource
	for name, server := range c.servers {
		if server.status != StatusConnected || server.session == nil {
			continue
		}
		resources, err := server.listResources(ctx)
		if err != nil {
			continue // one failing server never hides the rest
		}
		for _, r := range resources {
			allResources = append(allResources, Resource{
				URI:         fmt.Sprintf("mcp://%s/%s", name, r.URI),
				Name:        r.Name,
				Description: r.Description,
				MimeType:    r.MimeType,
			})
		}
	}
	return allResources, nil
}

func (s *mcpServer) listResources(ctx context.Context) ([]Resource, error) {
	if s.session == nil {
		return nil, fmt.Errorf("not connected")
	}

	result, err := s.session.ListResources(ctx, nil)
	if err != nil {
		return nil, err
	}

	resources := make([]Resource, len(result.Resources))
	for i, r := range result.Resources {
		resources[i] = FromSDKResource(r)
	}
	return resources, nil
}

// ReadResource fetches one resource by its "mcp://<server>/<uri>" address.
func (c *Client) ReadResource(ctx context.Context, uri string) (*ReadResourceResponse, error) {
	if !strings.HasPrefix(uri, "mcp://") {
		return nil, fmt.Errorf("invalid MCP URI: %s", uri)
	}
	serverName, resourceURI, ok := strings.Cut(strings.TrimPrefix(uri, "mcp://"), "/")
	if !ok {
		return nil, fmt.Errorf("invalid MCP URI format: %s", uri)
	}

	c.mu.RLock()
	server, found := c.servers[serverName]
	c.mu.RUnlock()

	if !found || server.status != StatusConnected {
		return nil, fmt.Errorf("server not connected: %s", serverName)
	}
	return server.readResource(ctx, resourceURI)
}

func (s *mcpServer) readResource(ctx context.Context, uri string) (*ReadResourceResponse, error) {
	if s.session == nil {
		return nil, fmt.Errorf("not connected")
	}

	result, err := s.session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, err
	}

	resp := &ReadResourceResponse{
		Contents: make([]ResourceContent, len(result.Contents)),
	}
	for i, c := range result.Contents {
		content := ResourceContent{
			URI:      c.URI,
			MimeType: c.MIMEType,
			Text:     c.Text,
		}
		if len(c.Blob) > 0 {
			content.Blob = string(c.Blob)
		}
		resp.Contents[i] = content
	}
	return resp, nil
}

// Status reports every server's connection state.
func (c *Client) Status() []ServerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var status []ServerStatus
	for name, server := range c.servers {
		status = append(status, serverStatus(name, server))
	}
	return status
}

// GetServer reports one server's connection state.
func (c *Client) GetServer(name string) (*ServerStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	server, ok := c.servers[name]
	if !ok {
		return nil, fmt.Errorf("server not found: %s", name)
	}
	s := serverStatus(name, server)
	return &s, nil
}

func serverStatus(name string, server *mcpServer) ServerStatus {
	s := ServerStatus{
		Name:      name,
		Status:    server.status,
		ToolCount: len(server.tools),
	}
	if server.error != "" {
		s.Error = &server.error
	}
	return s
}

// RemoveServer disconnects and forgets a server.
func (c *Client) RemoveServer(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	server, ok := c.servers[name]
	if !ok {
		return fmt.Errorf("server not found: %s", name)
	}
	if server.session != nil {
		server.session.Close()
	}
	delete(c.servers, name)
	return nil
}

// Close disconnects everything.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, server := range c.servers {
		if server.session != nil {
			server.session.Close()
		}
	}
	c.servers = make(map[string]*mcpServer)
	return nil
}

// ServerCount counts configured servers.
func (c *Client) ServerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.servers)
}

// ConnectedCount counts servers with a live session.
func (c *Client) ConnectedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, server := range c.servers {
		if server.status == StatusConnected {
			count++
		}
	}
	return count
}

// sanitizeToolName folds everything outside [A-Za-z0-9] to underscore,
// keeping namespaced names valid tool identifiers.
func sanitizeToolName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}
	return result.String()
}
