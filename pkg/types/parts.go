package types

import "encoding/json"

// Part represents a component of an assistant message.
// Every part carries its sessionID and messageID so a part can be
// routed without its parent message in hand.
type Part interface {
	PartType() string
	PartID() string
	PartSessionID() string
	PartMessageID() string
}

// PartTime brackets when a part started and finished.
type PartTime struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

// TextPart is plain assistant or user text.
type TextPart struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	MessageID string         `json:"messageID"`
	Type      string         `json:"type"` // always "text"
	Text      string         `json:"text"`
	Time      PartTime       `json:"time,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (p *TextPart) PartType() string      { return "text" }
func (p *TextPart) PartID() string        { return p.ID }
func (p *TextPart) PartSessionID() string { return p.SessionID }
func (p *TextPart) PartMessageID() string { return p.MessageID }

// ReasoningPart is extended-thinking content.
type ReasoningPart struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID"`
	MessageID string   `json:"messageID"`
	Type      string   `json:"type"` // always "reasoning"
	Text      string   `json:"text"`
	Time      PartTime `json:"time,omitempty"`
}

func (p *ReasoningPart) PartType() string      { return "reasoning" }
func (p *ReasoningPart) PartID() string        { return p.ID }
func (p *ReasoningPart) PartSessionID() string { return p.SessionID }
func (p *ReasoningPart) PartMessageID() string { return p.MessageID }

// ToolPartState carries the mutable execution state of a tool call.
type ToolPartState struct {
	Status      string         `json:"status"` // "pending" | "running" | "completed" | "error"
	Input       map[string]any `json:"input"`
	Title       string         `json:"title,omitempty"`
	Output      string         `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Attachments []FilePart     `json:"attachments,omitempty"`
	Time        PartTime       `json:"time,omitempty"`
}

// ToolPart is one tool call together with its evolving state; the
// tool_use/tool_result pairing lives in State.
type ToolPart struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	MessageID string         `json:"messageID"`
	Type      string         `json:"type"` // always "tool"
	CallID    string         `json:"callID"`
	Tool      string         `json:"tool"`
	State     ToolPartState  `json:"state"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (p *ToolPart) PartType() string      { return "tool" }
func (p *ToolPart) PartID() string        { return p.ID }
func (p *ToolPart) PartSessionID() string { return p.SessionID }
func (p *ToolPart) PartMessageID() string { return p.MessageID }

// FilePart is a file attachment; images carry an "image/" Mime.
type FilePart struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"` // always "file"
	Filename  string `json:"filename"`
	Mime      string `json:"mime"`
	URL       string `json:"url"`
}

func (p *FilePart) PartType() string      { return "file" }
func (p *FilePart) PartID() string        { return p.ID }
func (p *FilePart) PartSessionID() string { return p.SessionID }
func (p *FilePart) PartMessageID() string { return p.MessageID }

// StepStartPart opens one inference step inside an assistant turn.
type StepStartPart struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"` // always "step-start"
}

func (p *StepStartPart) PartType() string      { return "step-start" }
func (p *StepStartPart) PartID() string        { return p.ID }
func (p *StepStartPart) PartSessionID() string { return p.SessionID }
func (p *StepStartPart) PartMessageID() string { return p.MessageID }

// StepFinishPart closes an inference step with its usage and cost.
type StepFinishPart struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	MessageID string      `json:"messageID"`
	Type      string      `json:"type"` // always "step-finish"
	Reason    string      `json:"reason"`
	Cost      float64     `json:"cost,omitempty"`
	Tokens    *TokenUsage `json:"tokens,omitempty"`
}

func (p *StepFinishPart) PartType() string      { return "step-finish" }
func (p *StepFinishPart) PartID() string        { return p.ID }
func (p *StepFinishPart) PartSessionID() string { return p.SessionID }
func (p *StepFinishPart) PartMessageID() string { return p.MessageID }

// RawPart is the type-sniffing envelope for part decoding.
type RawPart struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"-"`
}

// UnmarshalPart decodes a part by its "type" discriminator. Unknown
// types decode as text so old transcripts stay loadable.
func UnmarshalPart(data []byte) (Part, error) {
	var raw RawPart
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch raw.Type {
	case "text":
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "reasoning":
		var p ReasoningPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "tool":
		var p ToolPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "file":
		var p FilePart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "step-start":
		var p StepStartPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "step-finish":
		var p StepFinishPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	}
}
