// Package types provides the core data types for the agentrun server.
package types

import (
	"encoding/json"
	"fmt"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionWaiting   SessionStatus = "waiting_for_user_input"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// CanTransition reports whether the edge s -> next is part of the
// session state machine. Terminal states have no outgoing edges and
// waiting sessions may only resume or fail.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case SessionRunning:
		return next == SessionRunning || next == SessionWaiting ||
			next == SessionCompleted || next == SessionFailed
	case SessionWaiting:
		return next == SessionRunning || next == SessionFailed
	default:
		return false
	}
}

// Session represents one end-to-end agent run.
type Session struct {
	ID           string        `json:"id"`
	AgentKind    AgentKind     `json:"agentKind"`
	KindConfig   KindConfig    `json:"-"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	SystemPrompt string        `json:"systemPrompt"`
	UserPrompt   string        `json:"userPrompt"`
	Status       SessionStatus `json:"status"`
	StartedAt    int64         `json:"startedAt"` // unix millis
	EndedAt      *int64        `json:"endedAt,omitempty"`
	Result       *string       `json:"result,omitempty"`
	Error        *string       `json:"error,omitempty"`
	Usage        Usage         `json:"usage"`
}

// Usage accumulates token counters across a session's turns.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Add accumulates another usage sample.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// MarshalJSON emits the kind config under its own key so the closed sum
// round-trips without a registry lookup at read time.
func (s Session) MarshalJSON() ([]byte, error) {
	type Alias Session
	aux := struct {
		Alias
		KindConfig json.RawMessage `json:"kindConfig,omitempty"`
	}{Alias: Alias(s)}

	if s.KindConfig != nil {
		raw, err := json.Marshal(s.KindConfig)
		if err != nil {
			return nil, fmt.Errorf("marshal kind config: %w", err)
		}
		aux.KindConfig = raw
	}

	return json.Marshal(aux)
}

// UnmarshalJSON restores the kind config variant from the agentKind tag.
func (s *Session) UnmarshalJSON(data []byte) error {
	type Alias Session
	aux := struct {
		*Alias
		KindConfig json.RawMessage `json:"kindConfig,omitempty"`
	}{Alias: (*Alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if len(aux.KindConfig) > 0 {
		cfg, err := UnmarshalKindConfig(s.AgentKind, aux.KindConfig)
		if err != nil {
			return err
		}
		s.KindConfig = cfg
	}

	return nil
}
