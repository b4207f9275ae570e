// Package provider is the LLM RPC layer: every vendor is wrapped behind
// one eino ChatModel interface so the sampling loop never sees
// vendor-specific types.
package provider

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/agentcore/orchestrator/pkg/types"
)

// Provider is one configured LLM vendor.
type Provider interface {
	// ID is the provider key used in model references.
	ID() string

	// Name is the human-readable provider name.
	Name() string

	// Models lists what the provider can serve.
	Models() []types.Model

	// ChatModel exposes the provider's eino ChatModel.
	ChatModel() model.ToolCallingChatModel

	// CreateCompletion opens a streaming completion.
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error)
}

// CompletionRequest is one model call.
type CompletionRequest struct {
	Model       string             `json:"model"`
	Messages    []*schema.Message  `json:"messages"`
	Tools       []*schema.ToolInfo `json:"tools,omitempty"`
	MaxTokens   int                `json:"maxTokens,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
	TopP        float64            `json:"topP,omitempty"`
	StopWords   []string           `json:"stopWords,omitempty"`
}

// CompletionStream wraps the eino stream reader.
type CompletionStream struct {
	reader *schema.StreamReader[*schema.Message]
}

// NewCompletionStream adapts an eino reader.
func NewCompletionStream(reader *schema.StreamReader[*schema.Message]) *CompletionStream {
	return &CompletionStream{reader: reader}
}

// Recv yields the next chunk.
func (s *CompletionStream) Recv() (*schema.Message, error) {
	return s.reader.Recv()
}

// Close releases the stream.
func (s *CompletionStream) Close() {
	s.reader.Close()
}

// ToolInfo is a tool definition in transport-neutral form.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ConvertToEinoTools maps neutral tool definitions onto eino's type.
func ConvertToEinoTools(tools []ToolInfo) []*schema.ToolInfo {
	result := make([]*schema.ToolInfo, len(tools))
	for i, t := range tools {
		var params map[string]*schema.ParameterInfo
		if len(t.Parameters) > 0 {
			params = parseJSONSchemaToParams(t.Parameters)
		}
		result[i] = &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		}
	}
	return result
}

var einoTypeByName = map[string]schema.DataType{
	"integer": schema.Integer,
	"number":  schema.Number,
	"boolean": schema.Boolean,
	"array":   schema.Array,
	"object":  schema.Object,
}

// parseJSONSchemaToParams flattens a JSON Schema object into eino
// ParameterInfo; unknown property types read as strings.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
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
		dt, ok := einoTypeByName[prop.Type]
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

// ConvertFromEinoMessage projects an eino message onto the internal
// message shape (role and session only; parts attach separately).
func ConvertFromEinoMessage(msg *schema.Message, sessionID string) *types.Message {
	role := "assistant"
	switch msg.Role {
	case schema.User:
		role = "user"
	case schema.System:
		role = "system"
	case schema.Tool:
		role = "tool"
	}
	return &types.Message{
		SessionID: sessionID,
		Role:      role,
	}
}

// ConvertToEinoMessages flattens stored messages plus their parts into
// the request list: text parts concatenate into content, tool parts
// become tool calls.
func ConvertToEinoMessages(messages []*types.Message, parts map[string][]types.Part) []*schema.Message {
	result := make([]*schema.Message, 0, len(messages))

	for _, msg := range messages {
		role := schema.Assistant
		switch msg.Role {
		case "user":
			role = schema.User
		case "system":
			role = schema.System
		case "tool":
			role = schema.Tool
		}

		content := ""
		var toolCalls []schema.ToolCall
		for _, part := range parts[msg.ID] {
			switch p := part.(type) {
			case *types.TextPart:
				content += p.Text
			case *types.ToolPart:
				inputJSON, _ := json.Marshal(p.State.Input)
				toolCalls = append(toolCalls, schema.ToolCall{
					ID: p.CallID,
					Function: schema.FunctionCall{
						Name:      p.Tool,
						Arguments: string(inputJSON),
					},
				})
			}
		}

		result = append(result, &schema.Message{
			Role:      role,
			Content:   content,
			ToolCalls: toolCalls,
		})
	}
	return result
}
