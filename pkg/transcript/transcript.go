// Package transcript holds the ordered, role-tagged conversation sent to the model.
package transcript

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleSystem carries the configured system prompt.
	RoleSystem Role = "system"
	// RoleUser carries human input and command results.
	RoleUser Role = "user"
	// RoleAssistant carries model responses.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single transcript entry.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

var (
	// ErrInvalidRole is returned when appending a message with an unknown role.
	ErrInvalidRole = errors.New("invalid message role")
	// ErrSystemMessage is returned when appending a second system message.
	ErrSystemMessage = errors.New("transcript already has a system message")
)

// Transcript is an append-only conversation that always starts with the system prompt.
// It is not safe for concurrent use.
type Transcript struct {
	id       string
	messages []Message
}

// New starts a transcript with a fresh session id and the system prompt.
func New(systemPrompt string) *Transcript {
	return &Transcript{
		id:       uuid.NewString(),
		messages: []Message{{Role: RoleSystem, Content: systemPrompt}},
	}
}

// ID returns the opaque session tag.
func (t *Transcript) ID() string {
	return t.id
}

// Append adds a user or assistant message to the end of the transcript.
func (t *Transcript) Append(role Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if role == RoleSystem {
		return ErrSystemMessage
	}
	t.messages = append(t.messages, Message{Role: role, Content: content})
	return nil
}

// Len returns the number of messages, including the system prompt.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the transcript contents.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Last returns the most recent message.
func (t *Transcript) Last() Message {
	return t.messages[len(t.messages)-1]
}

// RetractUnanswered removes the final message when it is a user message with
// no reply yet. It reports whether a message was removed.
func (t *Transcript) RetractUnanswered() bool {
	if len(t.messages) < 2 || t.messages[len(t.messages)-1].Role != RoleUser {
		return false
	}
	t.messages[len(t.messages)-1] = Message{}
	t.messages = t.messages[:len(t.messages)-1]
	return true
}

// WriteYAML dumps the session id and messages for inspection.
func (t *Transcript) WriteYAML(w io.Writer) error {
	doc := struct {
		ID       string    `yaml:"id"`
		Messages []Message `yaml:"messages"`
	}{
		ID:       t.id,
		Messages: t.messages,
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return enc.Close()
}
