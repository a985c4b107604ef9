package provider

import (
	"context"

	"github.com/cloudwego/eino/components/model"
)

// einoAdapter implements Adapter on top of an Eino ToolCallingChatModel.
// The concrete vendor constructors (anthropic, openai, ark) all reduce
// to this shape; none of the Eino-backed vendors currently emit a
// continuation token, so Continuation stays nil here and is exercised
// by adapters that need it.
type einoAdapter struct {
	id        string
	chatModel model.ToolCallingChatModel
}

func (a *einoAdapter) ID() string { return a.id }

// Complete performs one blocking completion and normalizes the reply.
func (a *einoAdapter) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	chatModel := a.chatModel

	if tools := toEinoTools(req.Tools); tools != nil {
		withTools, err := chatModel.WithTools(tools)
		if err != nil {
			return nil, NewError(ErrInvalidRequest, "bind tools: "+err.Error())
		}
		chatModel = withTools
	}

	var opts []model.Option
	if req.Options.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.Options.MaxTokens))
	}
	if req.Options.Temperature > 0 {
		opts = append(opts, model.WithTemperature(req.Options.Temperature))
	}

	msg, err := chatModel.Generate(ctx, toEinoMessages(req.Messages), opts...)
	if err != nil {
		return nil, Classify(err)
	}
	if msg == nil {
		return nil, NewError(ErrUnparseable, "provider returned an empty completion")
	}

	return fromEinoMessage(msg), nil
}
