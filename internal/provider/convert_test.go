package provider

import (
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrun-ai/agentrun/pkg/types"
)

func TestToEinoMessages(t *testing.T) {
	messages := []ChatMessage{
		{Role: types.RoleSystem, Content: "system prompt"},
		{Role: types.RoleUser, Content: "hello"},
		{
			Role:    types.RoleAssistant,
			Content: "let me check",
			ToolCalls: []ToolCallSegment{
				{CallID: "call_1", Name: "read_file", Arguments: json.RawMessage(`{"filePath":"a.txt"}`)},
			},
		},
		{Role: types.RoleTool, Content: "file contents", CallID: "call_1"},
	}

	eino := toEinoMessages(messages)
	require.Len(t, eino, 4)

	assert.Equal(t, schema.System, eino[0].Role)
	assert.Equal(t, schema.User, eino[1].Role)

	assert.Equal(t, schema.Assistant, eino[2].Role)
	require.Len(t, eino[2].ToolCalls, 1)
	assert.Equal(t, "call_1", eino[2].ToolCalls[0].ID)
	assert.Equal(t, "read_file", eino[2].ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"filePath":"a.txt"}`, eino[2].ToolCalls[0].Function.Arguments)

	assert.Equal(t, schema.Tool, eino[3].Role)
	assert.Equal(t, "call_1", eino[3].ToolCallID)
}

func TestFromEinoMessage_Text(t *testing.T) {
	msg := &schema.Message{
		Role:    schema.Assistant,
		Content: "the answer",
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: "stop",
			Usage: &schema.TokenUsage{
				PromptTokens:     100,
				CompletionTokens: 20,
			},
		},
	}

	result := fromEinoMessage(msg)
	assert.Equal(t, "the answer", result.Text())
	assert.Empty(t, result.ToolCalls)
	assert.Equal(t, FinishStop, result.FinishReason)
	assert.Equal(t, types.Usage{InputTokens: 100, OutputTokens: 20}, result.Usage)
}

func TestFromEinoMessage_ToolCalls(t *testing.T) {
	msg := &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{
			{ID: "call_1", Function: schema.FunctionCall{Name: "glob", Arguments: `{"pattern":"**/*.go"}`}},
			{ID: "call_2", Function: schema.FunctionCall{Name: "list_files", Arguments: ""}},
		},
		ResponseMeta: &schema.ResponseMeta{FinishReason: "tool_use"},
	}

	result := fromEinoMessage(msg)
	require.Len(t, result.ToolCalls, 2)
	assert.Equal(t, FinishToolCalls, result.FinishReason)

	assert.Equal(t, "call_1", result.ToolCalls[0].CallID)
	assert.JSONEq(t, `{"pattern":"**/*.go"}`, string(result.ToolCalls[0].Arguments))

	// Empty vendor arguments normalize to an empty object.
	assert.JSONEq(t, `{}`, string(result.ToolCalls[1].Arguments))
}

func TestNormalizeFinish(t *testing.T) {
	tests := []struct {
		reason       string
		hasToolCalls bool
		want         FinishReason
	}{
		{"stop", false, FinishStop},
		{"end_turn", false, FinishStop},
		{"stop_sequence", false, FinishStop},
		{"", false, FinishStop},
		{"tool_calls", false, FinishToolCalls},
		{"tool_use", false, FinishToolCalls},
		{"end_turn", true, FinishToolCalls},
		{"length", false, FinishLength},
		{"max_tokens", false, FinishLength},
		{"content_filter", false, FinishContentFilter},
		{"weird_vendor_reason", false, FinishStop},
		{"weird_vendor_reason", true, FinishToolCalls},
	}

	for _, tt := range tests {
		got := normalizeFinish(tt.reason, tt.hasToolCalls)
		assert.Equal(t, tt.want, got, "reason=%q hasToolCalls=%v", tt.reason, tt.hasToolCalls)
	}
}

func TestParseJSONSchemaToParams(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "File path"},
			"limit": {"type": "integer"},
			"recursive": {"type": "boolean"}
		},
		"required": ["path"]
	}`)

	params := parseJSONSchemaToParams(raw)
	require.Len(t, params, 3)

	assert.Equal(t, schema.String, params["path"].Type)
	assert.True(t, params["path"].Required)
	assert.Equal(t, "File path", params["path"].Desc)

	assert.Equal(t, schema.Integer, params["limit"].Type)
	assert.False(t, params["limit"].Required)

	assert.Equal(t, schema.Boolean, params["recursive"].Type)
}
