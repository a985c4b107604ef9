package types

// Question is one structured clarification question surfaced while a
// session is waiting for user input.
type Question struct {
	ID          string `json:"id"`
	Prompt      string `json:"prompt"`
	Description string `json:"description,omitempty"`
}

// Answer maps a question id to the user's free-text reply.
type Answer struct {
	QuestionID string `json:"questionID"`
	Text       string `json:"text"`
}
