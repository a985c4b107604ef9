// Package tool provides the catalog of local capabilities the model may
// invoke: file access, search, patching, database inspection and the
// clarification surface. Tools are stateless singletons; everything
// session-specific arrives through the Invocation.
package tool

import (
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/agentrun-ai/agentrun/pkg/types"
)

// Tool defines the interface for all tools.
type Tool interface {
	// ID returns the tool identifier.
	ID() string

	// Description returns the tool description shown to the model.
	Description() string

	// Parameters returns the JSON Schema for tool arguments.
	Parameters() json.RawMessage

	// Timeout returns the default wall-clock limit per invocation.
	Timeout() time.Duration

	// Execute runs the tool with the given input.
	Execute(ctx context.Context, input json.RawMessage, inv *Invocation) (*Result, error)
}

// Invocation provides per-call context to tools.
type Invocation struct {
	SessionID string
	CallID    string

	// WorkspaceRoot bounds all filesystem access.
	WorkspaceRoot string

	// KindConfig is the session's agent-kind configuration; kind-bound
	// tools (db_query, read_document) read their targets from it.
	KindConfig types.KindConfig

	// Sandbox, when present, confines spawned processes. Nil means the
	// documented unrestricted mode.
	Sandbox Sandbox
}

// Sandbox is an externally supplied capability that restricts what a
// tool process may touch. Platforms without one run unrestricted.
type Sandbox interface {
	// Confine applies the restriction to a command before it starts.
	Confine(cmd *exec.Cmd) error
}

// Result is the structured output of a tool execution.
type Result struct {
	Output   string         `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// JSON renders the result for persistence on the ToolCall record.
func (r *Result) JSON() json.RawMessage {
	data, err := json.Marshal(r)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
