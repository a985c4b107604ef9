package provider

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/agentrun-ai/agentrun/pkg/types"
)

// toEinoMessages converts the neutral conversation into Eino messages.
func toEinoMessages(messages []ChatMessage) []*schema.Message {
	result := make([]*schema.Message, 0, len(messages))

	for _, msg := range messages {
		role := schema.Assistant
		switch msg.Role {
		case types.RoleUser:
			role = schema.User
		case types.RoleSystem:
			role = schema.System
		case types.RoleTool:
			role = schema.Tool
		}

		einoMsg := &schema.Message{
			Role:    role,
			Content: msg.Content,
		}

		for _, call := range msg.ToolCalls {
			einoMsg.ToolCalls = append(einoMsg.ToolCalls, schema.ToolCall{
				ID: call.CallID,
				Function: schema.FunctionCall{
					Name:      call.Name,
					Arguments: string(call.Arguments),
				},
			})
		}

		if msg.Role == types.RoleTool {
			einoMsg.ToolCallID = msg.CallID
		}

		result = append(result, einoMsg)
	}

	return result
}

// toEinoTools converts tool schemas to Eino tool infos.
func toEinoTools(tools []ToolSchema) []*schema.ToolInfo {
	if len(tools) == 0 {
		return nil
	}

	result := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		params := parseJSONSchemaToParams(t.Parameters)
		result = append(result, &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return result
}

// fromEinoMessage normalizes a vendor reply into a CompletionResult.
func fromEinoMessage(msg *schema.Message) *CompletionResult {
	result := &CompletionResult{}

	if msg.Content != "" {
		result.Texts = append(result.Texts, msg.Content)
	}

	for _, call := range msg.ToolCalls {
		args := call.Function.Arguments
		if args == "" {
			args = "{}"
		}
		result.ToolCalls = append(result.ToolCalls, ToolCallSegment{
			CallID:    call.ID,
			Name:      call.Function.Name,
			Arguments: json.RawMessage(args),
		})
	}

	finish := ""
	if msg.ResponseMeta != nil {
		finish = msg.ResponseMeta.FinishReason
		if msg.ResponseMeta.Usage != nil {
			result.Usage = types.Usage{
				InputTokens:  msg.ResponseMeta.Usage.PromptTokens,
				OutputTokens: msg.ResponseMeta.Usage.CompletionTokens,
			}
		}
	}
	result.FinishReason = normalizeFinish(finish, len(result.ToolCalls) > 0)

	return result
}

// normalizeFinish maps vendor finish strings onto the neutral set.
func normalizeFinish(reason string, hasToolCalls bool) FinishReason {
	switch reason {
	case "tool_calls", "tool_use":
		return FinishToolCalls
	case "length", "max_tokens":
		return FinishLength
	case "content_filter", "content_filtered":
		return FinishContentFilter
	case "stop", "end_turn", "stop_sequence", "":
		if hasToolCalls {
			return FinishToolCalls
		}
		return FinishStop
	default:
		if hasToolCalls {
			return FinishToolCalls
		}
		return FinishStop
	}
}

// parseJSONSchemaToParams converts JSON Schema to Eino ParameterInfo.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}

	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool)
	for _, r := range jsonSchema.Required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo)
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}

		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: requiredSet[name],
		}
	}

	return params
}
