// Package tool implements the tool registry and executor: uniform
// invocation of named tools with schema-described inputs.
package tool

import (
	"context"
	"encoding/json"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Tool is the contract every executable tool satisfies.
type Tool interface {
	// ID is the name the model calls the tool by.
	ID() string

	// Description is shown to the model alongside the schema.
	Description() string

	// Parameters is the JSON Schema describing the tool's input.
	Parameters() json.RawMessage

	// Execute runs the tool against a decoded input.
	Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error)

	// EinoTool adapts the tool to the eino model-framework interface.
	EinoTool() einotool.InvokableTool
}

// Context carries per-call execution state into a tool body.
type Context struct {
	SessionID string
	MessageID string
	CallID    string
	Agent     string
	WorkDir   string
	AbortCh   <-chan struct{}
	Extra     map[string]any

	// OnMetadata, when set, streams progress metadata to subscribers
	// while the tool is still running.
	OnMetadata func(title string, meta map[string]any)
}

// SetMetadata publishes progress metadata for the in-flight call.
func (c *Context) SetMetadata(title string, meta map[string]any) {
	if c.OnMetadata != nil {
		c.OnMetadata(title, meta)
	}
}

// IsAborted reports whether the session asked this call to stop.
func (c *Context) IsAborted() bool {
	select {
	case <-c.AbortCh:
		return true
	default:
		return false
	}
}

// Result is what a tool hands back to the executor.
type Result struct {
	Title       string         `json:"title"`
	Output      string         `json:"output"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	Error       error          `json:"-"`
}

// Attachment is a file (usually an image) produced by a tool call.
type Attachment struct {
	Filename  string `json:"filename"`
	MediaType string `json:"mediaType"`
	URL       string `json:"url"` // data: URL or file path
}

// BaseTool is the common Tool implementation built from a closure.
type BaseTool struct {
	id          string
	description string
	parameters  json.RawMessage
	execute     func(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error)
}

// NewBaseTool assembles a Tool from its metadata and an execute func.
func NewBaseTool(id, description string, params json.RawMessage, execute func(context.Context, json.RawMessage, *Context) (*Result, error)) *BaseTool {
	return &BaseTool{
		id:          id,
		description: description,
		parameters:  params,
		execute:     execute,
	}
}

func (t *BaseTool) ID() string                  { return t.id }
func (t *BaseTool) Description() string         { return t.description }
func (t *BaseTool) Parameters() json.RawMessage { return t.parameters }

func (t *BaseTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	return t.execute(ctx, input, toolCtx)
}

// EinoTool adapts the tool to eino's InvokableTool.
func (t *BaseTool) EinoTool() einotool.InvokableTool {
	return &einoAdapter{tool: t}
}

// einoAdapter bridges a Tool onto eino's InvokableTool interface.
type einoAdapter struct {
	tool Tool
}

// Info describes the tool to the eino framework.
func (a *einoAdapter) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name:        a.tool.ID(),
		Desc:        a.tool.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(schemaParams(a.tool.Parameters())),
	}, nil
}

// InvokableRun executes the tool for an eino-driven call. Only the text
// output crosses the adapter; attachments need the native Execute path.
func (a *einoAdapter) InvokableRun(ctx context.Context, argsJSON string, opts ...einotool.Option) (string, error) {
	result, err := a.tool.Execute(ctx, json.RawMessage(argsJSON), &Context{})
	if err != nil {
		return "", err
	}
	return result.Output, nil
}

var schemaTypeNames = map[string]schema.DataType{
	"integer": schema.Integer,
	"number":  schema.Number,
	"boolean": schema.Boolean,
	"array":   schema.Array,
	"object":  schema.Object,
}

// schemaParams flattens a JSON Schema object into eino ParameterInfo.
// Nested property schemas collapse to their top-level type.
func schemaParams(raw json.RawMessage) map[string]*schema.ParameterInfo {
	var doc struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}

	required := make(map[string]bool, len(doc.Required))
	for _, name := range doc.Required {
		required[name] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(doc.Properties))
	for name, prop := range doc.Properties {
		dt, ok := schemaTypeNames[prop.Type]
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
