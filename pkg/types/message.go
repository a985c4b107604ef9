package types

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one turn entry in a session's conversation log. Messages
// are append-only; their ULID ids sort in creation order, which is the
// order the provider sees the conversation on the next turn.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`

	// CallID correlates a tool-role message with the tool call it
	// answers. Empty for non-tool messages.
	CallID string `json:"callID,omitempty"`

	// Questions holds the pending clarification round while the session
	// is waiting for user input. Set only on the tool message that
	// suspended the session.
	Questions []Question `json:"questions,omitempty"`

	// ProviderState is an opaque continuation token some vendors require
	// to be echoed back on the next call. Stored and replayed, never
	// inspected.
	ProviderState []byte `json:"providerState,omitempty"`

	CreatedAt int64 `json:"createdAt"` // unix millis
}
