// Package orchestrator drives agent sessions end to end: it owns the
// session state machine, the provider/tool control loop, clarification
// hand-off and crash recovery. Everything it decides is persisted
// through the store before it acts, so a restart can always pick a
// session up where the crash left it.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentrun-ai/agentrun/internal/event"
	"github.com/agentrun-ai/agentrun/internal/executor"
	"github.com/agentrun-ai/agentrun/internal/logging"
	"github.com/agentrun-ai/agentrun/internal/provider"
	"github.com/agentrun-ai/agentrun/internal/store"
	"github.com/agentrun-ai/agentrun/internal/tool"
	"github.com/agentrun-ai/agentrun/pkg/types"
)

var (
	// ErrSessionBusy is returned when a session's loop is already running.
	ErrSessionBusy = errors.New("session is busy")

	// ErrNotWaiting is returned when a clarification operation targets a
	// session that is not waiting for user input.
	ErrNotWaiting = errors.New("session is not waiting for user input")

	// ErrSessionTerminal is returned when an operation targets a session
	// that already completed or failed.
	ErrSessionTerminal = errors.New("session is terminal")

	// ErrAnswersIncomplete is returned when submitted answers do not
	// cover every pending question exactly.
	ErrAnswersIncomplete = errors.New("answers must cover all pending questions")
)

const defaultMaxTurns = 50

// Options configures an Orchestrator.
type Options struct {
	// MaxTurns bounds how many provider calls one session may make.
	// Zero means 50.
	MaxTurns int

	// DefaultProvider and DefaultModel are used when a start request
	// does not pin them.
	DefaultProvider string
	DefaultModel    string

	// WorkspaceRoot is the filesystem boundary handed to tools for kinds
	// that do not carry their own root.
	WorkspaceRoot string
}

// Orchestrator runs agent sessions.
type Orchestrator struct {
	store     *store.Store
	providers *provider.Registry
	tools     *tool.Registry
	exec      *executor.Executor
	bus       *event.Bus
	opts      Options
	log       zerolog.Logger

	mu      sync.Mutex
	active  map[string]*activeSession
	clarify map[types.AgentKind]ClarifyPredicate
}

// activeSession tracks one in-flight loop.
type activeSession struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an Orchestrator.
func New(st *store.Store, providers *provider.Registry, tools *tool.Registry, exec *executor.Executor, bus *event.Bus, opts Options) *Orchestrator {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = defaultMaxTurns
	}
	return &Orchestrator{
		store:     st,
		providers: providers,
		tools:     tools,
		exec:      exec,
		bus:       bus,
		opts:      opts,
		log:       logging.With("orchestrator"),
		active:    make(map[string]*activeSession),
		clarify:   make(map[types.AgentKind]ClarifyPredicate),
	}
}

// StartRequest describes a new session.
type StartRequest struct {
	AgentKind  types.AgentKind `json:"agentKind"`
	KindConfig types.KindConfig
	Prompt     string `json:"prompt"`

	// Provider and Model override the configured defaults when set.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// validate rejects a start request before any durable state exists.
func (o *Orchestrator) validate(req *StartRequest) error {
	if !req.AgentKind.Known() {
		return fmt.Errorf("unknown agent kind: %q", req.AgentKind)
	}
	if req.KindConfig == nil {
		return fmt.Errorf("kind config is required")
	}
	if req.KindConfig.Kind() != req.AgentKind {
		return fmt.Errorf("kind config is for %q, session is %q", req.KindConfig.Kind(), req.AgentKind)
	}
	if err := req.KindConfig.Validate(); err != nil {
		return err
	}
	if req.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	providerID := req.Provider
	if providerID == "" {
		providerID = o.opts.DefaultProvider
	}
	if _, err := o.providers.Get(providerID); err != nil {
		return err
	}
	return nil
}

// Start validates the request, persists the session with its opening
// user message and launches the loop. Validation failures leave no
// durable state behind.
func (o *Orchestrator) Start(ctx context.Context, req *StartRequest) (*types.Session, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	providerID := req.Provider
	if providerID == "" {
		providerID = o.opts.DefaultProvider
	}
	modelID := req.Model
	if modelID == "" {
		modelID = o.opts.DefaultModel
	}

	sess := &types.Session{
		ID:         store.NewID(),
		AgentKind:  req.AgentKind,
		KindConfig: req.KindConfig,
		Provider:   providerID,
		Model:      modelID,
		UserPrompt: req.Prompt,
		Status:     types.SessionRunning,
		StartedAt:  time.Now().UnixMilli(),
	}
	sess.SystemPrompt = buildSystemPrompt(sess)

	if err := o.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	o.publishStatus(sess)

	if err := o.appendMessage(ctx, &types.Message{
		SessionID: sess.ID,
		Role:      types.RoleUser,
		Content:   req.Prompt,
	}); err != nil {
		return nil, fmt.Errorf("persist prompt: %w", err)
	}

	if err := o.launch(sess.ID); err != nil {
		return nil, err
	}

	o.log.Info().
		Str("session", sess.ID).
		Str("kind", string(sess.AgentKind)).
		Str("provider", providerID).
		Str("model", modelID).
		Msg("session started")
	return sess, nil
}

// launch registers the session as active and spawns its loop.
func (o *Orchestrator) launch(sessionID string) error {
	o.mu.Lock()
	if _, busy := o.active[sessionID]; busy {
		o.mu.Unlock()
		return ErrSessionBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	as := &activeSession{cancel: cancel, done: make(chan struct{})}
	o.active[sessionID] = as
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			delete(o.active, sessionID)
			o.mu.Unlock()
			cancel()
			close(as.done)
		}()
		o.run(ctx, sessionID)
	}()
	return nil
}

// Wait blocks until the session's loop settles (terminal status or
// waiting for input). Returns immediately when no loop is running.
func (o *Orchestrator) Wait(sessionID string) {
	o.mu.Lock()
	as, ok := o.active[sessionID]
	o.mu.Unlock()
	if ok {
		<-as.done
	}
}

// SessionView is a consistent read of one session.
type SessionView struct {
	Session   *types.Session    `json:"session"`
	Messages  []*types.Message  `json:"messages"`
	ToolCalls []*types.ToolCall `json:"toolCalls"`
}

// Get returns the session with its ordered messages and tool calls.
func (o *Orchestrator) Get(ctx context.Context, sessionID string) (*SessionView, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	messages, err := o.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	calls, err := o.store.ListToolCalls(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionView{Session: sess, Messages: messages, ToolCalls: calls}, nil
}

// PendingQuestions returns the open clarification round. Only valid
// while the session is waiting for user input.
func (o *Orchestrator) PendingQuestions(ctx context.Context, sessionID string) ([]types.Question, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != types.SessionWaiting {
		return nil, fmt.Errorf("%w: status is %s", ErrNotWaiting, sess.Status)
	}
	msg, err := o.waitingMessage(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return msg.Questions, nil
}

// waitingMessage finds the tool message that suspended the session.
func (o *Orchestrator) waitingMessage(ctx context.Context, sessionID string) (*types.Message, error) {
	messages, err := o.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if len(messages[i].Questions) > 0 {
			return messages[i], nil
		}
	}
	return nil, fmt.Errorf("no pending questions for session %s", sessionID)
}

// SubmitAnswers resolves the pending clarification round. Answers must
// cover every open question exactly; the Q/A pairs are folded into a
// user message and the loop resumes.
func (o *Orchestrator) SubmitAnswers(ctx context.Context, sessionID string, answers []types.Answer) error {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != types.SessionWaiting {
		return fmt.Errorf("%w: status is %s", ErrNotWaiting, sess.Status)
	}

	msg, err := o.waitingMessage(ctx, sessionID)
	if err != nil {
		return err
	}

	byID := make(map[string]string, len(answers))
	for _, a := range answers {
		if a.Text == "" {
			return fmt.Errorf("%w: empty answer for %s", ErrAnswersIncomplete, a.QuestionID)
		}
		byID[a.QuestionID] = a.Text
	}
	if len(byID) != len(msg.Questions) {
		return fmt.Errorf("%w: got %d answers for %d questions",
			ErrAnswersIncomplete, len(byID), len(msg.Questions))
	}
	for _, q := range msg.Questions {
		if _, ok := byID[q.ID]; !ok {
			return fmt.Errorf("%w: missing answer for %s", ErrAnswersIncomplete, q.ID)
		}
	}

	// Close the ask_user call with the answers as its response.
	if msg.CallID != "" {
		if err := o.resolveAskUser(ctx, sessionID, msg.CallID, answers); err != nil {
			return err
		}
	}

	if err := o.appendMessage(ctx, &types.Message{
		SessionID: sessionID,
		Role:      types.RoleUser,
		Content:   foldAnswers(msg.Questions, byID),
	}); err != nil {
		return err
	}

	if _, err := o.updateStatus(ctx, sessionID, types.SessionRunning, nil); err != nil {
		return err
	}

	o.log.Info().Str("session", sessionID).Int("answers", len(answers)).Msg("answers submitted")
	return o.launch(sessionID)
}

// resolveAskUser completes the suspended ask_user tool call.
func (o *Orchestrator) resolveAskUser(ctx context.Context, sessionID, callID string, answers []types.Answer) error {
	calls, err := o.store.ListToolCalls(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, c := range calls {
		if c.CallID != callID || c.Status.Terminal() {
			continue
		}
		response, _ := json.Marshal(map[string]any{"answers": answers})
		updated, err := o.store.UpdateToolCall(ctx, sessionID, c.ID, func(tc *types.ToolCall) {
			tc.Status = types.ToolCallCompleted
			tc.Response = response
			now := time.Now().UnixMilli()
			tc.CompletedAt = &now
		})
		if err != nil {
			return err
		}
		o.bus.Publish(event.Event{
			Type:      event.ToolCallFinished,
			SessionID: sessionID,
			Data:      event.ToolCallFinishedData{Info: updated},
		})
		return nil
	}
	return nil
}

// foldAnswers renders the Q/A round as plain conversation text.
func foldAnswers(questions []types.Question, byID map[string]string) string {
	var sb strings.Builder
	for i, q := range questions {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Q: %s\nA: %s", q.Prompt, byID[q.ID])
	}
	return sb.String()
}

// Cancel interrupts a session. The loop persists in-flight tool calls
// as failed and the session as failed with a "cancelled" error; waiting
// sessions are cancelled directly.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) error {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return fmt.Errorf("%w: status is %s", ErrSessionTerminal, sess.Status)
	}

	o.mu.Lock()
	as, running := o.active[sessionID]
	o.mu.Unlock()

	if running {
		as.cancel()
		<-as.done
	}

	// The loop persists the failure itself when it notices the cancel;
	// cover the window where it settled to waiting first, and waiting or
	// crash-orphaned sessions with no loop at all.
	sess, err = o.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return nil
	}
	return o.failSession(ctx, sessionID, "cancelled")
}

// Recover resumes sessions a previous process left running. Pending
// tool calls are re-executed from their durable records; the provider
// call that requested them is never re-issued.
func (o *Orchestrator) Recover(ctx context.Context) error {
	ids, err := o.store.ListSessions(ctx)
	if err != nil {
		return err
	}
	recovered := 0
	for _, id := range ids {
		sess, err := o.store.GetSession(ctx, id)
		if err != nil {
			o.log.Warn().Str("session", id).Err(err).Msg("skipping unreadable session")
			continue
		}
		if sess.Status != types.SessionRunning {
			continue
		}
		if err := o.launch(id); err != nil {
			if errors.Is(err, ErrSessionBusy) {
				continue
			}
			return err
		}
		recovered++
	}
	if recovered > 0 {
		o.log.Info().Int("sessions", recovered).Msg("recovered running sessions")
	}
	return nil
}

// appendMessage persists a message and publishes it.
func (o *Orchestrator) appendMessage(ctx context.Context, msg *types.Message) error {
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		return err
	}
	o.bus.Publish(event.Event{
		Type:      event.MessageAppended,
		SessionID: msg.SessionID,
		Data:      event.MessageAppendedData{Info: msg},
	})
	return nil
}

// updateStatus transitions the session and publishes the new record.
// extra mutates the record inside the same store update.
func (o *Orchestrator) updateStatus(ctx context.Context, sessionID string, status types.SessionStatus, extra func(*types.Session)) (*types.Session, error) {
	sess, err := o.store.UpdateSession(ctx, sessionID, func(s *types.Session) {
		s.Status = status
		if extra != nil {
			extra(s)
		}
	})
	if err != nil {
		return nil, err
	}
	o.publishStatus(sess)
	return sess, nil
}

// failSession moves the session to failed with the given error string.
func (o *Orchestrator) failSession(ctx context.Context, sessionID, reason string) error {
	_, err := o.updateStatus(ctx, sessionID, types.SessionFailed, func(s *types.Session) {
		now := time.Now().UnixMilli()
		s.EndedAt = &now
		s.Error = &reason
	})
	if err != nil && !errors.Is(err, store.ErrTerminal) {
		return err
	}
	o.log.Info().Str("session", sessionID).Str("error", reason).Msg("session failed")
	return nil
}

// completeSession moves the session to completed with its final answer.
func (o *Orchestrator) completeSession(ctx context.Context, sessionID, result string) error {
	_, err := o.updateStatus(ctx, sessionID, types.SessionCompleted, func(s *types.Session) {
		now := time.Now().UnixMilli()
		s.EndedAt = &now
		s.Result = &result
	})
	if err != nil {
		return err
	}
	o.log.Info().Str("session", sessionID).Msg("session completed")
	return nil
}

func (o *Orchestrator) publishStatus(sess *types.Session) {
	o.bus.Publish(event.Event{
		Type:      event.SessionStatus,
		SessionID: sess.ID,
		Data:      event.SessionStatusData{Info: sess},
	})
}
