package event

import "github.com/agentrun-ai/agentrun/pkg/types"

// SessionStatusData is the data for session.status events. It carries
// the full session record so consumers can rebuild their view from any
// single event.
type SessionStatusData struct {
	Info *types.Session `json:"info"`
}

// MessageAppendedData is the data for message.appended events.
type MessageAppendedData struct {
	Info *types.Message `json:"info"`
}

// ToolCallStartedData is the data for toolcall.started events.
type ToolCallStartedData struct {
	Info *types.ToolCall `json:"info"`
}

// ToolCallFinishedData is the data for toolcall.finished events.
type ToolCallFinishedData struct {
	Info *types.ToolCall `json:"info"`
}
