package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/agentrun-ai/agentrun/internal/event"
	"github.com/agentrun-ai/agentrun/internal/executor"
	"github.com/agentrun-ai/agentrun/internal/provider"
	"github.com/agentrun-ai/agentrun/internal/store"
	"github.com/agentrun-ai/agentrun/internal/tool"
	"github.com/agentrun-ai/agentrun/pkg/types"
)

const (
	// MaxRetries is the maximum number of retries for provider errors.
	MaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime is the maximum total time for retries.
	RetryMaxElapsedTime = 2 * time.Minute

	defaultMaxTokens = 8192
)

// newRetryBackoff creates an exponential backoff with jitter for
// provider retries, bounded by MaxRetries and the loop context.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// run executes the session loop until the session settles. Every
// iteration first drains tool calls that are already durable; only when
// none remain does it issue the next provider call. Recovery needs no
// special path: a restarted loop finds the pending records and picks up
// exactly where the crash happened, without re-issuing the provider
// call that requested them.
func (o *Orchestrator) run(ctx context.Context, sessionID string) {
	log := o.log.With().Str("session", sessionID).Logger()

	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Msg("session loop could not load session")
		return
	}
	if sess.Status != types.SessionRunning {
		log.Warn().Str("status", string(sess.Status)).Msg("session loop started on settled session")
		return
	}

	for {
		if ctx.Err() != nil {
			o.abort(ctx, sessionID)
			return
		}

		pending, err := o.store.ListPendingToolCalls(ctx, sessionID)
		if err != nil {
			o.fatal(ctx, sessionID, log, fmt.Errorf("list pending tool calls: %w", err))
			return
		}

		if len(pending) > 0 {
			suspended, err := o.drainPending(ctx, sess, pending, log)
			if err != nil {
				if ctx.Err() != nil {
					o.abort(ctx, sessionID)
					return
				}
				o.fatal(ctx, sessionID, log, err)
				return
			}
			if suspended {
				return
			}
			continue
		}

		if err := o.backfillResults(ctx, sess); err != nil {
			o.fatal(ctx, sessionID, log, err)
			return
		}

		done, err := o.providerTurn(ctx, sess, log)
		if err != nil {
			if ctx.Err() != nil {
				o.abort(ctx, sessionID)
				return
			}
			o.fatal(ctx, sessionID, log, err)
			return
		}
		if done {
			return
		}
	}
}

// abort persists the cancellation outcome. The loop context is already
// dead, so writes run on a detached context.
func (o *Orchestrator) abort(ctx context.Context, sessionID string) {
	bg := context.WithoutCancel(ctx)
	if err := o.failSession(bg, sessionID, "cancelled"); err != nil {
		o.log.Error().Str("session", sessionID).Err(err).Msg("could not persist cancellation")
	}
}

// fatal fails the session on a non-recoverable loop error. Persistence
// failures land here: continuing without durable state would break the
// recovery contract.
func (o *Orchestrator) fatal(ctx context.Context, sessionID string, log zerolog.Logger, cause error) {
	log.Error().Err(cause).Msg("session loop failed")
	bg := context.WithoutCancel(ctx)
	if err := o.failSession(bg, sessionID, cause.Error()); err != nil {
		log.Error().Err(err).Msg("could not persist loop failure")
	}
}

// drainPending brings every non-terminal tool call to a terminal state.
// Ordinary calls execute in parallel (bounded by the executor); a
// clarification call suspends the session after the others finish and
// reports suspended=true.
func (o *Orchestrator) drainPending(ctx context.Context, sess *types.Session, pending []*types.ToolCall, log zerolog.Logger) (bool, error) {
	var askCall *types.ToolCall
	var regular []*types.ToolCall
	intercept := o.clarifyFor(sess.AgentKind)(resultFromPending(pending))

	for _, call := range pending {
		if intercept && call.ToolName == tool.AskUserToolID && askCall == nil {
			askCall = call
			continue
		}
		regular = append(regular, call)
	}

	if len(regular) > 0 {
		if err := o.executeBatch(ctx, sess, regular, log); err != nil {
			return false, err
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
	}

	if askCall == nil {
		return false, nil
	}
	return o.suspend(ctx, sess, askCall, log)
}

// resultFromPending reconstructs the tool-call view of a turn from its
// durable records so the clarify predicate works identically on the
// live path and on recovery.
func resultFromPending(pending []*types.ToolCall) *provider.CompletionResult {
	result := &provider.CompletionResult{FinishReason: provider.FinishToolCalls}
	for _, call := range pending {
		result.ToolCalls = append(result.ToolCalls, provider.ToolCallSegment{
			CallID:    call.CallID,
			Name:      call.ToolName,
			Arguments: call.Request,
		})
	}
	return result
}

// executeBatch runs tool calls to terminal status and appends their
// result messages. Failures of individual tools do not fail the batch;
// the model sees them as error results.
func (o *Orchestrator) executeBatch(ctx context.Context, sess *types.Session, calls []*types.ToolCall, log zerolog.Logger) error {
	var wg sync.WaitGroup
	errs := make([]error, len(calls))

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call *types.ToolCall) {
			defer wg.Done()
			errs[i] = o.executeOne(ctx, sess, call, log)
		}(i, call)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// executeOne drives a single tool call through executing to a terminal
// status, then records its tool message. Returns an error only for
// persistence failures or cancellation.
func (o *Orchestrator) executeOne(ctx context.Context, sess *types.Session, call *types.ToolCall, log zerolog.Logger) error {
	// A terminal record with no tool message means the crash hit between
	// the two writes; backfill without re-executing.
	if call.Status == types.ToolCallExecuting {
		log.Debug().Str("tool", call.ToolName).Str("call", call.CallID).Msg("re-executing interrupted tool call")
	}

	if call.Status == types.ToolCallPending {
		updated, err := o.store.UpdateToolCall(ctx, sess.ID, call.ID, func(tc *types.ToolCall) {
			tc.Status = types.ToolCallExecuting
		})
		if err != nil {
			return fmt.Errorf("mark tool call executing: %w", err)
		}
		call = updated
		o.bus.Publish(event.Event{
			Type:      event.ToolCallStarted,
			SessionID: sess.ID,
			Data:      event.ToolCallStartedData{Info: call},
		})
	}

	inv := &tool.Invocation{
		SessionID:     sess.ID,
		CallID:        call.CallID,
		WorkspaceRoot: o.workspaceRoot(sess),
		KindConfig:    sess.KindConfig,
	}
	outcome := o.exec.Execute(ctx, call.ToolName, call.Request, inv)

	if outcome.Err != nil && ctx.Err() != nil {
		// Cancelled mid-flight: close the record before the loop aborts.
		bg := context.WithoutCancel(ctx)
		o.finishToolCall(bg, sess.ID, call, executor.Outcome{
			Err:      errors.New("Cancelled"),
			Duration: outcome.Duration,
		})
		return ctx.Err()
	}

	finished, err := o.finishToolCall(ctx, sess.ID, call, outcome)
	if err != nil {
		return fmt.Errorf("persist tool call result: %w", err)
	}

	return o.appendMessage(ctx, &types.Message{
		SessionID: sess.ID,
		Role:      types.RoleTool,
		CallID:    call.CallID,
		Content:   toolMessageContent(finished),
	})
}

// finishToolCall writes the terminal record and publishes it.
func (o *Orchestrator) finishToolCall(ctx context.Context, sessionID string, call *types.ToolCall, outcome executor.Outcome) (*types.ToolCall, error) {
	finished, err := o.store.UpdateToolCall(ctx, sessionID, call.ID, func(tc *types.ToolCall) {
		now := time.Now().UnixMilli()
		tc.CompletedAt = &now
		tc.ExecutionTimeMS = outcome.Duration.Milliseconds()
		if outcome.Err != nil {
			tc.Status = types.ToolCallFailed
			detail := errorDetail(outcome.Err)
			tc.ErrorDetails = &detail
		} else {
			tc.Status = types.ToolCallCompleted
			tc.Response = outcome.Result.JSON()
		}
	})
	if err != nil {
		return nil, err
	}
	o.bus.Publish(event.Event{
		Type:      event.ToolCallFinished,
		SessionID: sessionID,
		Data:      event.ToolCallFinishedData{Info: finished},
	})
	return finished, nil
}

// errorDetail classifies a tool failure for the durable record.
func errorDetail(err error) string {
	switch {
	case errors.Is(err, executor.ErrUnknownTool):
		return "UnknownTool: " + err.Error()
	case errors.Is(err, executor.ErrArgumentInvalid):
		return "ArgumentInvalid: " + err.Error()
	case errors.Is(err, executor.ErrTimeout):
		return "Timeout: " + err.Error()
	case errors.Is(err, tool.ErrPathEscape):
		return "PermissionDenied: " + err.Error()
	case err.Error() == "Cancelled":
		return "Cancelled"
	default:
		return "ExecutionFailed: " + err.Error()
	}
}

// toolMessageContent renders a terminal tool call as the message the
// model reads next turn.
func toolMessageContent(call *types.ToolCall) string {
	if call.Status == types.ToolCallFailed {
		detail := "tool failed"
		if call.ErrorDetails != nil {
			detail = *call.ErrorDetails
		}
		return "Error: " + detail
	}
	var result tool.Result
	if err := json.Unmarshal(call.Response, &result); err != nil {
		return string(call.Response)
	}
	return result.Output
}

// suspend parses the clarification call and moves the session to
// waiting. Malformed questions fail the call instead and the loop
// continues, so the model sees its own mistake.
func (o *Orchestrator) suspend(ctx context.Context, sess *types.Session, call *types.ToolCall, log zerolog.Logger) (bool, error) {
	input, err := tool.ParseAskUserInput(call.Request)
	if err != nil {
		err = fmt.Errorf("%w: %v", executor.ErrArgumentInvalid, err)
		finished, ferr := o.finishToolCall(ctx, sess.ID, call, executor.Outcome{Err: err})
		if ferr != nil {
			return false, ferr
		}
		return false, o.appendMessage(ctx, &types.Message{
			SessionID: sess.ID,
			Role:      types.RoleTool,
			CallID:    call.CallID,
			Content:   toolMessageContent(finished),
		})
	}

	// A crash between the question message and the status write makes
	// this path re-entrant; reuse the durable round instead of minting
	// duplicate question ids.
	existing, err := o.questionMessageFor(ctx, sess.ID, call.CallID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		questions := make([]types.Question, len(input.Questions))
		for i, q := range input.Questions {
			questions[i] = types.Question{
				ID:          store.NewID(),
				Prompt:      q.Prompt,
				Description: q.Description,
			}
		}
		if err := o.appendMessage(ctx, &types.Message{
			SessionID: sess.ID,
			Role:      types.RoleTool,
			CallID:    call.CallID,
			Questions: questions,
			Content:   "Questions were sent to the user.",
		}); err != nil {
			return false, err
		}
	}

	if _, err := o.updateStatus(ctx, sess.ID, types.SessionWaiting, nil); err != nil {
		return false, err
	}
	log.Info().Int("questions", len(input.Questions)).Msg("session waiting for user input")
	return true, nil
}

// questionMessageFor finds an already persisted question message for a
// clarification call.
func (o *Orchestrator) questionMessageFor(ctx context.Context, sessionID, callID string) (*types.Message, error) {
	messages, err := o.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == types.RoleTool && m.CallID == callID && len(m.Questions) > 0 {
			return m, nil
		}
	}
	return nil, nil
}

// backfillResults appends the tool message for any terminal call that
// does not have one. A crash between the terminal record write and the
// message append leaves exactly this gap.
func (o *Orchestrator) backfillResults(ctx context.Context, sess *types.Session) error {
	calls, err := o.store.ListToolCalls(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("load tool calls: %w", err)
	}
	if len(calls) == 0 {
		return nil
	}
	messages, err := o.store.ListMessages(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	answered := make(map[string]bool)
	for _, m := range messages {
		if m.Role == types.RoleTool && m.CallID != "" {
			answered[m.CallID] = true
		}
	}

	for _, call := range calls {
		if !call.Status.Terminal() || answered[call.CallID] {
			continue
		}
		if err := o.appendMessage(ctx, &types.Message{
			SessionID: sess.ID,
			Role:      types.RoleTool,
			CallID:    call.CallID,
			Content:   toolMessageContent(call),
		}); err != nil {
			return err
		}
	}
	return nil
}

// providerTurn issues one completion and persists its outcome. Returns
// done=true when the session settled.
func (o *Orchestrator) providerTurn(ctx context.Context, sess *types.Session, log zerolog.Logger) (bool, error) {
	history, continuation, turns, err := o.buildHistory(ctx, sess)
	if err != nil {
		return false, err
	}

	if turns >= o.opts.MaxTurns {
		return true, o.failSession(ctx, sess.ID, "maximum turns exceeded")
	}

	adapter, err := o.providers.Get(sess.Provider)
	if err != nil {
		return true, o.failSession(ctx, sess.ID, err.Error())
	}

	req := &provider.CompletionRequest{
		Messages:     history,
		Tools:        o.toolSchemas(sess.AgentKind),
		Options:      provider.GenOptions{Model: sess.Model, MaxTokens: defaultMaxTokens},
		Continuation: continuation,
	}

	result, err := o.complete(ctx, adapter, req, log)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, o.failSession(ctx, sess.ID, err.Error())
	}

	if _, uerr := o.store.UpdateSession(ctx, sess.ID, func(s *types.Session) {
		s.Usage.Add(result.Usage)
	}); uerr != nil {
		return false, fmt.Errorf("persist usage: %w", uerr)
	}

	assistant := &types.Message{
		SessionID:     sess.ID,
		Role:          types.RoleAssistant,
		Content:       result.Text(),
		ProviderState: result.Continuation,
	}
	if err := o.appendMessage(ctx, assistant); err != nil {
		return false, fmt.Errorf("persist assistant message: %w", err)
	}

	if len(result.ToolCalls) == 0 {
		switch result.FinishReason {
		case provider.FinishLength:
			return true, o.failSession(ctx, sess.ID, "output length limit reached")
		case provider.FinishContentFilter:
			return true, o.failSession(ctx, sess.ID, "output blocked by content filter")
		default:
			return true, o.completeSession(ctx, sess.ID, result.Text())
		}
	}

	// Persist the whole batch as pending before anything executes; the
	// next iteration (or a recovered loop) drains it.
	for _, seg := range result.ToolCalls {
		call := &types.ToolCall{
			SessionID: sess.ID,
			MessageID: assistant.ID,
			CallID:    seg.CallID,
			ToolName:  seg.Name,
			Request:   seg.Arguments,
			Status:    types.ToolCallPending,
		}
		if err := o.store.CreateToolCall(ctx, call); err != nil {
			return false, fmt.Errorf("persist tool call: %w", err)
		}
	}

	log.Debug().Int("toolCalls", len(result.ToolCalls)).Int("turn", turns+1).Msg("provider turn requested tools")
	return false, nil
}

// complete calls the provider with retries on transient failures.
func (o *Orchestrator) complete(ctx context.Context, adapter provider.Adapter, req *provider.CompletionRequest, log zerolog.Logger) (*provider.CompletionResult, error) {
	retry := newRetryBackoff(ctx)
	for {
		result, err := adapter.Complete(ctx, req)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var perr *provider.Error
		if !errors.As(err, &perr) || !perr.Retryable() {
			return nil, err
		}

		next := retry.NextBackOff()
		if next == backoff.Stop {
			return nil, fmt.Errorf("provider retries exhausted: %w", err)
		}
		if perr.RetryAfter > next {
			next = perr.RetryAfter
		}
		log.Warn().Err(err).Dur("retryIn", next).Msg("transient provider error")

		select {
		case <-time.After(next):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// buildHistory rebuilds the provider conversation from the durable log.
// Tool-call segments on assistant messages come from the tool call
// records, keyed by message id. Returns the history, the last
// continuation token and the number of assistant turns so far.
func (o *Orchestrator) buildHistory(ctx context.Context, sess *types.Session) ([]provider.ChatMessage, []byte, int, error) {
	messages, err := o.store.ListMessages(ctx, sess.ID)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("load messages: %w", err)
	}
	calls, err := o.store.ListToolCalls(ctx, sess.ID)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("load tool calls: %w", err)
	}

	segsByMsg := make(map[string][]provider.ToolCallSegment)
	for _, call := range calls {
		segsByMsg[call.MessageID] = append(segsByMsg[call.MessageID], provider.ToolCallSegment{
			CallID:    call.CallID,
			Name:      call.ToolName,
			Arguments: call.Request,
		})
	}

	history := []provider.ChatMessage{{Role: types.RoleSystem, Content: sess.SystemPrompt}}
	var continuation []byte
	turns := 0

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleUser:
			history = append(history, provider.ChatMessage{Role: types.RoleUser, Content: msg.Content})
		case types.RoleAssistant:
			turns++
			continuation = msg.ProviderState
			history = append(history, provider.ChatMessage{
				Role:      types.RoleAssistant,
				Content:   msg.Content,
				ToolCalls: segsByMsg[msg.ID],
			})
		case types.RoleTool:
			history = append(history, provider.ChatMessage{
				Role:    types.RoleTool,
				Content: msg.Content,
				CallID:  msg.CallID,
			})
		}
	}

	return history, continuation, turns, nil
}

// toolSchemas renders the kind's tool catalog for the provider.
func (o *Orchestrator) toolSchemas(kind types.AgentKind) []provider.ToolSchema {
	var schemas []provider.ToolSchema
	for _, t := range o.tools.ForKind(kind) {
		schemas = append(schemas, provider.ToolSchema{
			Name:        t.ID(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return schemas
}

// workspaceRoot picks the filesystem boundary for a session's tools.
func (o *Orchestrator) workspaceRoot(sess *types.Session) string {
	if cfg, ok := sess.KindConfig.(types.CodebaseAnalysisConfig); ok {
		return cfg.WorkspaceRoot
	}
	return o.opts.WorkspaceRoot
}
