package chat

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one logical turn. User messages never carry blocks;
// assistant messages hold every block in arrival order, and Content is
// the concatenation of the content-bearing ones.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Blocks    []Block   `json:"blocks,omitempty"`
}

// NewUserMessage builds a user turn with a client-side id.
func NewUserMessage(text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	}
}

// withBlock returns a copy of m with b appended. The receiver's block
// slice is never written to.
func (m Message) withBlock(b Block) Message {
	m.Blocks = append(slices.Clip(m.Blocks), b)
	if b.Type.IsContent() {
		m.Content += b.Data
	}
	return m
}

// Conversation is the server-side container for a chat.
type Conversation struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	TokenCount int64     `json:"tokenCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// LastAssistant returns the index of the last assistant message, or -1.
func LastAssistant(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleAssistant {
			return i
		}
	}
	return -1
}

// Preview shortens text to one line of at most n runes.
func Preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
