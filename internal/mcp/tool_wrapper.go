package mcp

import (
	"context"
	"encoding/json"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/agentcore/orchestrator/internal/tool"
)

// MCPToolWrapper presents one MCP tool as a registry tool.Tool, so
// externally served tools flow through the same dispatch path as the
// built-ins.
type MCPToolWrapper struct {
	mcpTool Tool    // already namespaced by client.Tools()
	client  *Client // executes the call
}

// NewMCPToolWrapper wraps one MCP tool.
func NewMCPToolWrapper(mcpTool Tool, client *Client) *MCPToolWrapper {
	return &MCPToolWrapper{mcpTool: mcpTool, client: client}
}

// ID returns the namespaced name ("serverName_toolName").
func (w *MCPToolWrapper) ID() string {
	return w.mcpTool.Name
}

// Description returns the server-provided description.
func (w *MCPToolWrapper) Description() string {
	return w.mcpTool.Description
}

// Parameters returns the server-provided input schema.
func (w *MCPToolWrapper) Parameters() json.RawMessage {
	return w.mcpTool.InputSchema
}

// Execute routes the call through the MCP client.
func (w *MCPToolWrapper) Execute(ctx context.Context, input json.RawMessage, toolCtx *tool.Context) (*tool.Result, error) {
	output, err := w.client.ExecuteTool(ctx, w.mcpTool.Name, input)
	if err != nil {
		return nil, err
	}

	if toolCtx != nil {
		toolCtx.SetMetadata(w.mcpTool.Name, map[string]any{
			"type":   "mcp",
			"tool":   w.mcpTool.Name,
			"output": output,
		})
	}

	return &tool.Result{
		Title:  w.mcpTool.Name,
		Output: output,
	}, nil
}

// EinoTool adapts the wrapper to eino's InvokableTool.
func (w *MCPToolWrapper) EinoTool() einotool.InvokableTool {
	return &mcpEinoAdapter{wrapper: w}
}

// mcpEinoAdapter bridges a wrapped MCP tool onto eino.
type mcpEinoAdapter struct {
	wrapper *MCPToolWrapper
}

// Info describes the tool to eino.
func (e *mcpEinoAdapter) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name:        e.wrapper.ID(),
		Desc:        e.wrapper.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(schemaToParams(e.wrapper.mcpTool.InputSchema)),
	}, nil
}

// InvokableRun executes the tool for an eino-driven call.
func (e *mcpEinoAdapter) InvokableRun(ctx context.Context, argsJSON string, opts ...einotool.Option) (string, error) {
	result, err := e.wrapper.Execute(ctx, json.RawMessage(argsJSON), nil)
	if err != nil {
		return "", err
	}
	return result.Output, nil
}

var paramTypeByName = map[string]schema.DataType{
	"integer": schema.Integer,
	"number":  schema.Number,
	"boolean": schema.Boolean,
	"array":   schema.Array,
	"object":  schema.Object,
}

// schemaToParams flattens a server's input schema into eino
// ParameterInfo; unknown property types read as strings.
func schemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var doc struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil
	}

	required := make(map[string]bool, len(doc.Required))
	for _, r := range doc.Required {
		required[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(doc.Properties))
	for name, prop := range doc.Properties {
		dt, ok := paramTypeByName[prop.Type]
		if !ok {
			dt = schema.String
		}
		params[name] = &schema.ParameterInfo{
			Type:     dt,
			Desc:     prop.Description,
			Required: required[name],
		}
	}
	return params
}

// RegisterMCPTools wraps every tool the client currently advertises and
// registers them; call it again after servers change to pick up new
// tools.
func RegisterMCPTools(client *Client, registry *tool.Registry) {
	if client == nil || registry == nil {
		return
	}
	for _, mcpTool := range client.Tools() {
		registry.Register(NewMCPToolWrapper(mcpTool, client))
	}
}
