// Package store is the typed persistence layer for sessions, messages
// and tool calls. It is the single source of truth for recovery and for
// the read-side API; all writes funnel through it so the write-once and
// status-monotonicity invariants are enforced in one place.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentrun-ai/agentrun/internal/storage"
	"github.com/agentrun-ai/agentrun/pkg/types"
)

var (
	// ErrNotFound mirrors the storage-layer sentinel.
	ErrNotFound = storage.ErrNotFound

	// ErrTerminal is returned when an update would move a session off a
	// terminal status, or change the terminal fields of one.
	ErrTerminal = errors.New("session is terminal")

	// ErrStatusRegression is returned when a tool call update does not
	// follow the pending -> executing -> {completed, failed} edges.
	ErrStatusRegression = errors.New("tool call status regression")
)

// Store persists sessions, messages and tool calls.
type Store struct {
	kv *storage.Storage

	// sessionMu serializes read-modify-write updates per session so
	// invariant checks cannot race with each other.
	mu        sync.Mutex
	sessionMu map[string]*sync.Mutex
}

// New creates a Store on top of the given storage.
func New(kv *storage.Storage) *Store {
	return &Store{
		kv:        kv,
		sessionMu: make(map[string]*sync.Mutex),
	}
}

// NewID returns a fresh ULID. ULIDs sort lexicographically in creation
// order, which the message log relies on.
func NewID() string {
	return ulid.Make().String()
}

func (s *Store) lockSession(sessionID string) func() {
	s.mu.Lock()
	mu, ok := s.sessionMu[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		s.sessionMu[sessionID] = mu
	}
	s.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// CreateSession persists a new session record.
func (s *Store) CreateSession(ctx context.Context, sess *types.Session) error {
	if sess.ID == "" {
		sess.ID = NewID()
	}
	if sess.StartedAt == 0 {
		sess.StartedAt = time.Now().UnixMilli()
	}
	if sess.Status == "" {
		sess.Status = types.SessionRunning
	}
	return s.kv.Put(ctx, []string{"session", sess.ID}, sess)
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	var sess types.Session
	if err := s.kv.Get(ctx, []string{"session", sessionID}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns all session ids.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	return s.kv.List(ctx, []string{"session"})
}

// UpdateSession applies fn to the stored session and writes the result
// back. Updates against a terminal session are an idempotent no-op when
// the new status equals the stored one and ErrTerminal when it differs;
// non-terminal updates must follow the state machine edges.
func (s *Store) UpdateSession(ctx context.Context, sessionID string, fn func(*types.Session)) (*types.Session, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	stored, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	updated := *stored
	fn(&updated)

	if stored.Status.Terminal() {
		if updated.Status == stored.Status {
			return stored, nil
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrTerminal, stored.Status, updated.Status)
	}

	if updated.Status != stored.Status && !stored.Status.CanTransition(updated.Status) {
		return nil, fmt.Errorf("invalid session transition: %s -> %s", stored.Status, updated.Status)
	}

	// ended_at, result and error are write-once.
	if stored.EndedAt != nil {
		updated.EndedAt = stored.EndedAt
	}
	if stored.Result != nil {
		updated.Result = stored.Result
	}
	if stored.Error != nil {
		updated.Error = stored.Error
	}

	if err := s.kv.Put(ctx, []string{"session", sessionID}, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// AppendMessage persists a new message at the tail of the session log.
func (s *Store) AppendMessage(ctx context.Context, msg *types.Message) error {
	if msg.ID == "" {
		msg.ID = NewID()
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().UnixMilli()
	}
	return s.kv.Put(ctx, []string{"message", msg.SessionID, msg.ID}, msg)
}

// ListMessages returns the session's messages ordered by creation.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	var messages []*types.Message
	err := s.kv.Scan(ctx, []string{"message", sessionID}, func(key string, data json.RawMessage) error {
		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode message %s: %w", key, err)
		}
		messages = append(messages, &msg)
		return nil
	})
	return messages, err
}

// CreateToolCall persists a new tool call record.
func (s *Store) CreateToolCall(ctx context.Context, call *types.ToolCall) error {
	if call.ID == "" {
		call.ID = NewID()
	}
	if call.CreatedAt == 0 {
		call.CreatedAt = time.Now().UnixMilli()
	}
	if call.Status == "" {
		call.Status = types.ToolCallPending
	}
	return s.kv.Put(ctx, []string{"toolcall", call.SessionID, call.ID}, call)
}

// UpdateToolCall applies fn to a stored tool call. Terminal calls are
// immutable; status must follow the forward edges.
func (s *Store) UpdateToolCall(ctx context.Context, sessionID, callID string, fn func(*types.ToolCall)) (*types.ToolCall, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	var stored types.ToolCall
	if err := s.kv.Get(ctx, []string{"toolcall", sessionID, callID}, &stored); err != nil {
		return nil, err
	}

	updated := stored
	fn(&updated)

	if updated.Status != stored.Status && !stored.Status.CanTransition(updated.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrStatusRegression, stored.Status, updated.Status)
	}
	if stored.Status.Terminal() && updated.Status == stored.Status {
		// Re-recording an identical terminal status is a no-op.
		return &stored, nil
	}

	if err := s.kv.Put(ctx, []string{"toolcall", sessionID, callID}, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListToolCalls returns all tool calls for a session in creation order.
func (s *Store) ListToolCalls(ctx context.Context, sessionID string) ([]*types.ToolCall, error) {
	var calls []*types.ToolCall
	err := s.kv.Scan(ctx, []string{"toolcall", sessionID}, func(key string, data json.RawMessage) error {
		var call types.ToolCall
		if err := json.Unmarshal(data, &call); err != nil {
			return fmt.Errorf("decode tool call %s: %w", key, err)
		}
		calls = append(calls, &call)
		return nil
	})
	return calls, err
}

// ListPendingToolCalls returns calls that never reached a terminal
// status. Used to resume a turn after a crash without re-issuing the
// provider call.
func (s *Store) ListPendingToolCalls(ctx context.Context, sessionID string) ([]*types.ToolCall, error) {
	all, err := s.ListToolCalls(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var pending []*types.ToolCall
	for _, call := range all {
		if !call.Status.Terminal() {
			pending = append(pending, call)
		}
	}
	return pending, nil
}
