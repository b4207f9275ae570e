package event

import "github.com/agentcore/orchestrator/pkg/types"

// SessionCreatedData carries the new session on session.created.
type SessionCreatedData struct {
	Info *types.Session `json:"info"`
}

// SessionUpdatedData carries the mutated session on session.updated.
type SessionUpdatedData struct {
	Info *types.Session `json:"info"`
}

// SessionDeletedData carries the removed session on session.deleted.
type SessionDeletedData struct {
	Info *types.Session `json:"info"`
}

// SessionIdleData is the data for session.idle events.
type SessionIdleData struct {
	SessionID string `json:"sessionID"`
}

// SessionStatusInfo describes the current processing status of a session.
type SessionStatusInfo struct {
	Type string `json:"type"` // "busy" | "idle"
}

// SessionStatusData is the data for session.status events.
type SessionStatusData struct {
	SessionID string            `json:"sessionID"`
	Status    SessionStatusInfo `json:"status"`
}

// SessionErrorData is the data for session.error events.
type SessionErrorData struct {
	SessionID string              `json:"sessionID,omitempty"`
	Error     *types.MessageError `json:"error,omitempty"`
}

// MessageCreatedData carries the appended message on message.created.
type MessageCreatedData struct {
	Info *types.Message `json:"info"`
}

// MessageUpdatedData carries the mutated message on message.updated.
type MessageUpdatedData struct {
	Info *types.Message `json:"info"`
}

// MessageRemovedData is the data for message.removed events.
type MessageRemovedData struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
}

// MessagePartUpdatedData carries one part plus its streaming delta on
// message.part.updated.
type MessagePartUpdatedData struct {
	Part  types.Part `json:"part"`
	Delta string     `json:"delta,omitempty"` // streaming text increment
}

// Deprecated: Use MessagePartUpdatedData instead
type PartUpdatedData = MessagePartUpdatedData

// MessagePartRemovedData is the data for message.part.removed events.
type MessagePartRemovedData struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	PartID    string `json:"partID"`
}

// FileEditedData is the data for file.edited events.
type FileEditedData struct {
	File string `json:"file"`
}

// SessionDiffData is the data for session.diff events.
type SessionDiffData struct {
	SessionID string            `json:"sessionID"`
	Diff      []types.FileDiff  `json:"diff"`
}

// SessionCompactedData is the data for session.compacted events.
type SessionCompactedData struct {
	SessionID string `json:"sessionID"`
}

// PermissionUpdatedData describes a pending permission question on
// permission.updated.
type PermissionUpdatedData struct {
	ID             string   `json:"id"`
	SessionID      string   `json:"sessionID"`
	PermissionType string   `json:"permissionType"` // "bash" | "edit" | "external_directory"
	Pattern        []string `json:"pattern"`
	Title          string   `json:"title"`
}

// Deprecated: Use PermissionUpdatedData instead
type PermissionRequiredData = PermissionUpdatedData

// PermissionRepliedData is the data for permission.replied events.
type PermissionRepliedData struct {
	PermissionID string `json:"permissionID"`
	SessionID    string `json:"sessionID"`
	Response     string `json:"response"` // "once" | "always" | "reject"
}

// Deprecated: Use PermissionRepliedData instead
type PermissionResolvedData struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Granted   bool   `json:"granted"`
}

// ClientToolRequestData is the data for client-tool.request events.
type ClientToolRequestData struct {
	ClientID string `json:"clientID"`
	Request  any    `json:"request"` // ExecutionRequest from clienttool package
}

// ClientToolRegisteredData is the data for client-tool.registered events.
type ClientToolRegisteredData struct {
	ClientID string   `json:"clientID"`
	ToolIDs  []string `json:"toolIDs"`
}

// ClientToolUnregisteredData is the data for client-tool.unregistered events.
type ClientToolUnregisteredData struct {
	ClientID string   `json:"clientID"`
	ToolIDs  []string `json:"toolIDs"`
}

// RepeatedToolErrorData is the data for tool.repeated_error events, fired
// when the same tool fails with the same error class 3 times in a row —
// distinct from the doom-loop check, which compares identical (tool, input)
// pairs rather than error classes.
type RepeatedToolErrorData struct {
	SessionID  string `json:"sessionID"`
	Tool       string `json:"tool"`
	ErrorClass string `json:"errorClass"`
	Count      int    `json:"count"`
}

// VcsBranchUpdatedData is the data for vcs.branch.updated events.
type VcsBranchUpdatedData struct {
	Branch string `json:"branch"`
}

// ClientToolStatusData is the data for client-tool.executing/completed/failed events.
type ClientToolStatusData struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	CallID    string `json:"callID"`
	Tool      string `json:"tool"`
	ClientID  string `json:"clientID"`
	Error     string `json:"error,omitempty"`
	Success   bool   `json:"success,omitempty"`
}
