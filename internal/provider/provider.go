// Package provider normalizes LLM vendor protocols behind a neutral
// completion contract. Vendor specifics live in per-provider adapters
// built on Eino chat models; the orchestrator only ever sees
// CompletionRequest and CompletionResult.
package provider

import (
	"context"
	"encoding/json"

	"github.com/agentrun-ai/agentrun/pkg/types"
)

// FinishReason is the normalized reason a completion stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
)

// ChatMessage is one entry of the conversation sent to a provider.
type ChatMessage struct {
	Role    types.Role `json:"role"`
	Content string     `json:"content"`

	// CallID tags a tool-result message with the call it answers.
	CallID string `json:"callID,omitempty"`

	// ToolCalls replays the calls an assistant message issued, so the
	// vendor can pair the tool results that follow.
	ToolCalls []ToolCallSegment `json:"toolCalls,omitempty"`
}

// ToolSchema describes one tool offered to the model.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// GenOptions are the generation knobs for one completion.
// Provider-specific knobs such as reasoning effort are fixed at
// adapter construction from the provider config instead.
type GenOptions struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// CompletionRequest is a neutral completion request.
type CompletionRequest struct {
	Messages []ChatMessage `json:"messages"`
	Tools    []ToolSchema  `json:"tools,omitempty"`
	Options  GenOptions    `json:"options"`

	// Continuation is the opaque token returned by the previous turn,
	// echoed back unmodified for vendors that require it.
	Continuation []byte `json:"continuation,omitempty"`
}

// ToolCallSegment is one tool invocation requested by the model.
type ToolCallSegment struct {
	CallID    string          `json:"callID"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CompletionResult is a normalized completion reply.
type CompletionResult struct {
	Texts        []string          `json:"texts,omitempty"`
	ToolCalls    []ToolCallSegment `json:"toolCalls,omitempty"`
	FinishReason FinishReason      `json:"finishReason"`
	Usage        types.Usage       `json:"usage"`

	// Continuation is an opaque per-turn token to store and replay on
	// the next call. Nil when the vendor does not use one.
	Continuation []byte `json:"continuation,omitempty"`
}

// Text concatenates the result's text segments.
func (r *CompletionResult) Text() string {
	var out string
	for _, t := range r.Texts {
		out += t
	}
	return out
}

// Adapter is the normalization boundary for one LLM vendor.
type Adapter interface {
	// ID returns the provider identifier ("anthropic", "openai", ...).
	ID() string

	// Complete performs one blocking completion call.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)
}
