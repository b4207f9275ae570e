package types

import "encoding/json"

// Message represents either a User or Assistant message in a conversation.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Role      string      `json:"role"` // "user" | "assistant"
	ParentID  string      `json:"parentID,omitempty"`
	Time      MessageTime `json:"time"`

	// User-specific fields
	Agent  string          `json:"agent,omitempty"`
	Model  *ModelRef       `json:"model,omitempty"`
	System *string         `json:"system,omitempty"`
	Tools  map[string]bool `json:"tools,omitempty"`
	Path   *MessagePath    `json:"path,omitempty"`

	// Assistant-specific fields
	ModelID    string        `json:"modelID,omitempty"`
	ProviderID string        `json:"providerID,omitempty"`
	Mode       string        `json:"mode,omitempty"`
	Finish     *string       `json:"finish,omitempty"`
	Cost       float64       `json:"cost,omitempty"`
	Tokens     *TokenUsage   `json:"tokens,omitempty"`
	Error      *MessageError `json:"error,omitempty"`

	// IsSummary marks an assistant message as a compaction summary.
	IsSummary bool `json:"-"`
	// Summary holds the change summary on a user message (title/body/diffs).
	// Serializes as an object for user messages, a bool for assistant
	// messages (true when IsSummary), and is omitted otherwise.
	Summary *UserMessageSummary `json:"-"`
}

// MessageTime contains timestamps for a message.
type MessageTime struct {
	Created int64  `json:"created"`
	Updated *int64 `json:"updated,omitempty"`
}

// MessagePath records the working directory the message was produced in.
type MessagePath struct {
	Cwd  string `json:"cwd"`
	Root string `json:"root"`
}

// ModelRef references a specific model from a provider.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// UserMessageSummary describes the change summary attached to a user message.
type UserMessageSummary struct {
	Title string     `json:"title"`
	Body  string     `json:"body"`
	Diffs []FileDiff `json:"diffs,omitempty"`
}

// TokenUsage contains token usage statistics for a message.
type TokenUsage struct {
	Input     int        `json:"input"`
	Output    int        `json:"output"`
	Reasoning int        `json:"reasoning,omitempty"`
	Cache     CacheUsage `json:"cache,omitempty"`
}

// CacheUsage contains cache hit/write statistics.
type CacheUsage struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

// MessageError represents an error that occurred during message processing.
// Discriminated on "name" with a nested "data" payload.
type MessageError struct {
	Name string           `json:"name"`
	Data MessageErrorData `json:"data"`
}

// MessageErrorData is the payload carried by a MessageError.
type MessageErrorData struct {
	Message string `json:"message"`
}

// NewUnknownError builds a generic MessageError.
func NewUnknownError(msg string) *MessageError {
	return &MessageError{Name: "UnknownError", Data: MessageErrorData{Message: msg}}
}

// NewAPIError builds a MessageError for provider/API failures.
func NewAPIError(msg string) *MessageError {
	return &MessageError{Name: "APIError", Data: MessageErrorData{Message: msg}}
}

// NewAbortError builds a MessageError for user/context-cancelled aborts.
func NewAbortError(msg string) *MessageError {
	return &MessageError{Name: "AbortError", Data: MessageErrorData{Message: msg}}
}

// NewMaxStepsError builds a MessageError for iteration-cap termination.
func NewMaxStepsError(msg string) *MessageError {
	return &MessageError{Name: "MaxStepsError", Data: MessageErrorData{Message: msg}}
}

// NewOutputLengthError builds a MessageError for truncated model output.
func NewOutputLengthError(msg string) *MessageError {
	return &MessageError{Name: "OutputLengthError", Data: MessageErrorData{Message: msg}}
}

// messageAlias avoids infinite recursion in Message's custom marshaling.
type messageAlias Message

// MarshalJSON renders Summary as an object (user), a bool (assistant), or omits it.
func (m Message) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(messageAlias(m))
	if err != nil {
		return nil, err
	}

	if m.Role == "user" && m.Summary != nil {
		return injectRawField(data, "summary", m.Summary)
	}
	if m.Role == "assistant" && m.IsSummary {
		return injectRawField(data, "summary", true)
	}
	return data, nil
}

// UnmarshalJSON restores Summary/IsSummary from the polymorphic "summary" field.
func (m *Message) UnmarshalJSON(data []byte) error {
	var alias messageAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*m = Message(alias)

	var withSummary struct {
		Summary json.RawMessage `json:"summary"`
	}
	if err := json.Unmarshal(data, &withSummary); err != nil || len(withSummary.Summary) == 0 {
		return nil
	}

	switch withSummary.Summary[0] {
	case '{':
		var s UserMessageSummary
		if err := json.Unmarshal(withSummary.Summary, &s); err != nil {
			return err
		}
		m.Summary = &s
	case 't':
		m.IsSummary = true
	}
	return nil
}

// injectRawField marshals extra and adds it to the object encoded in data under key.
func injectRawField(data []byte, key string, extra any) ([]byte, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return nil, err
	}
	raw[key] = extraJSON
	return json.Marshal(raw)
}
