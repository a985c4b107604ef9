package types

import "encoding/json"

// ToolCallStatus is the lifecycle state of a single tool invocation.
type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallExecuting ToolCallStatus = "executing"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallFailed    ToolCallStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s ToolCallStatus) Terminal() bool {
	return s == ToolCallCompleted || s == ToolCallFailed
}

// CanTransition reports whether the edge s -> next is allowed. Status
// never regresses: pending -> executing -> {completed, failed}, with
// pending allowed to fail directly (e.g. argument validation).
func (s ToolCallStatus) CanTransition(next ToolCallStatus) bool {
	switch s {
	case ToolCallPending:
		return next == ToolCallExecuting || next == ToolCallCompleted || next == ToolCallFailed
	case ToolCallExecuting:
		return next == ToolCallCompleted || next == ToolCallFailed
	default:
		return false
	}
}

// ToolCall records one tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`

	// MessageID links back to the assistant message that requested the
	// call.
	MessageID string `json:"messageID"`

	// CallID is the correlation id issued by the provider. It matches
	// the result back to the right call when a turn issues several.
	CallID string `json:"callID"`

	ToolName string          `json:"toolName"`
	Request  json.RawMessage `json:"request"`
	Response json.RawMessage `json:"response,omitempty"`
	Status   ToolCallStatus  `json:"status"`

	ExecutionTimeMS int64   `json:"executionTimeMs,omitempty"`
	CompletedAt     *int64  `json:"completedAt,omitempty"`
	ErrorDetails    *string `json:"errorDetails,omitempty"`

	CreatedAt int64 `json:"createdAt"` // unix millis
}
