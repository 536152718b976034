package domain

import "fmt"

// Role identifies the speaker of a single conversation turn.
type Role string

const (
	// RoleSystem marks instructions delivered out-of-band from the user.
	RoleSystem Role = "system"
	// RoleUser marks a turn written by the human side of the conversation.
	RoleUser Role = "user"
	// RoleAssistant marks a turn attributed to the model under test.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message is a single immutable conversation turn.
// Messages are passed by value so a holder can never alter another
// holder's copy.
type Message struct {
	// Role is the speaker of this turn.
	Role Role `json:"role" yaml:"role"`

	// Content is the literal text of the turn.
	Content string `json:"content" yaml:"content"`
}

// NewMessage creates a Message after checking the role.
func NewMessage(role Role, content string) (Message, error) {
	if !role.Valid() {
		return Message{}, fmt.Errorf("%w: unknown role %q", ErrInvalidConfiguration, role)
	}
	return Message{Role: role, Content: content}, nil
}

// Conversation is an ordered sequence of messages sent to a backend in a
// single Generate call.
type Conversation []Message

// With returns a new conversation holding c followed by msgs.
// The receiver is never modified, even when it has spare capacity.
func (c Conversation) With(msgs ...Message) Conversation {
	out := make(Conversation, 0, len(c)+len(msgs))
	out = append(out, c...)
	return append(out, msgs...)
}

// Last returns the final turn and true, or the zero Message and false for an
// empty conversation.
func (c Conversation) Last() (Message, bool) {
	if len(c) == 0 {
		return Message{}, false
	}
	return c[len(c)-1], true
}

// History returns every turn before the final one.
func (c Conversation) History() Conversation {
	if len(c) == 0 {
		return nil
	}
	return c[:len(c)-1]
}

// Response is the text a backend produced for a conversation along with
// backend-specific metadata such as token usage.
type Response struct {
	// Content is the generated reply.
	Content string

	// Metadata holds diagnostic values reported by the backend.
	Metadata map[string]any
}
