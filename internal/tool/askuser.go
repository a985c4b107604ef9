package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentrun-ai/agentrun/pkg/types"
)

const AskUserToolID = "ask_user"

const askUserDescription = `Asks the user one or more clarifying questions and waits for their answers.

Usage:
- Use when the task is ambiguous and you need information only the user has
- Ask all related questions in a single call
- The session pauses until the user answers, so prefer making progress with
  the information you already have`

// AskUserTool is the clarification tool. It carries the schema the model
// sees; calls to it never reach Execute because the session loop pauses
// the session and collects answers out of band.
type AskUserTool struct{}

// AskUserInput represents the input for the ask_user tool.
type AskUserInput struct {
	Questions []types.Question `json:"questions"`
}

// NewAskUserTool creates a new ask_user tool.
func NewAskUserTool() *AskUserTool { return &AskUserTool{} }

func (t *AskUserTool) ID() string             { return AskUserToolID }
func (t *AskUserTool) Description() string    { return askUserDescription }
func (t *AskUserTool) Timeout() time.Duration { return 0 }

func (t *AskUserTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"questions": {
				"type": "array",
				"description": "The questions to ask the user",
				"items": {
					"type": "object",
					"properties": {
						"prompt": {
							"type": "string",
							"description": "The question itself"
						},
						"description": {
							"type": "string",
							"description": "Optional context explaining why the answer is needed"
						}
					},
					"required": ["prompt"]
				},
				"minItems": 1
			}
		},
		"required": ["questions"]
	}`)
}

// ParseAskUserInput decodes and validates the arguments of an ask_user call.
func ParseAskUserInput(raw json.RawMessage) (*AskUserInput, error) {
	var params AskUserInput
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if len(params.Questions) == 0 {
		return nil, fmt.Errorf("at least one question is required")
	}
	for i, q := range params.Questions {
		if q.Prompt == "" {
			return nil, fmt.Errorf("question %d has an empty prompt", i)
		}
	}
	return &params, nil
}

func (t *AskUserTool) Execute(ctx context.Context, input json.RawMessage, inv *Invocation) (*Result, error) {
	return nil, fmt.Errorf("ask_user is handled by the session loop")
}
