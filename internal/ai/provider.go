package ai

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyReply is returned when a provider answers without any content.
var ErrEmptyReply = errors.New("ai: empty reply")

type Message struct {
	Role    string
	Content string
}

// Provider is a chat-completion backend.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Prompt builds the usual system + user exchange.
func Prompt(system, user string) []Message {
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	return append(msgs, Message{Role: RoleUser, Content: user})
}
