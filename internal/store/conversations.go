// Package store defines the persisted records and storage interfaces.
// Backends live in subpackages (sqlite, pg); callers program against the
// interfaces here and pick an engine at startup.
package store

import (
	"context"
	"time"
)

// AgentSender is the From value for messages the attendant sent itself.
const AgentSender = "agent"

// StoredMessage is one message inside a tracked conversation.
type StoredMessage struct {
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the structured digest of a conversation, produced by the
// summarizer and shown on the pet surface. Fallback marks a summary built
// from raw text after the generator returned something unparseable.
type Summary struct {
	Who          string    `json:"who"`
	Intent       string    `json:"intent"`
	Requirements []string  `json:"requirements"`
	Urgency      string    `json:"urgency"`
	Sentiment    string    `json:"sentiment"`
	ActionItems  []string  `json:"action_items"`
	OneLiner     string    `json:"one_liner"`
	GeneratedAt  time.Time `json:"generated_at,omitempty"`
	Fallback     bool      `json:"-"`
}

// Conversation is the tracked state of one exchange with a contact.
// Summary is nil until the conversation has been summarized.
type Conversation struct {
	ConversationID string          `json:"conversation_id"`
	Sender         string          `json:"sender"`
	StartedAt      time.Time       `json:"started_at"`
	LastActivity   time.Time       `json:"last_activity"`
	Messages       []StoredMessage `json:"messages"`
	Read           bool            `json:"read"`
	Summary        *Summary        `json:"summary"`
}

// LastMessages returns up to n of the most recent messages, oldest first.
func (c *Conversation) LastMessages(n int) []StoredMessage {
	if n <= 0 || len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}

// ConversationStore tracks conversations for the pet surface. Mutations
// are serializable at the engine, so concurrent writers (the watcher loop
// and gateway handlers, possibly in different processes) never interleave
// a read-modify-write.
type ConversationStore interface {
	// LogMessage appends a message, creating the conversation on first
	// contact. Inbound messages mark the conversation unread; the
	// attendant's own replies leave the read state alone.
	LogMessage(ctx context.Context, conversationID, sender, text string, fromAgent bool, at time.Time) error

	// UpdateSummary replaces the stored summary. Unknown conversation ids
	// are a silent no-op.
	UpdateSummary(ctx context.Context, conversationID string, s *Summary) error

	// MarkRead marks one conversation read. Idempotent; unknown ids no-op.
	MarkRead(ctx context.Context, conversationID string) error

	// MarkAllRead marks every conversation read.
	MarkAllRead(ctx context.Context) error

	// GetConversation returns one conversation or a not-found fault.
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)

	// ListConversations returns all conversations, most recent activity first.
	ListConversations(ctx context.Context) ([]*Conversation, error)

	// ListUnread returns conversations with Read == false, most recent first.
	ListUnread(ctx context.Context) ([]*Conversation, error)

	// UnreadCount returns len(ListUnread) without loading messages.
	UnreadCount(ctx context.Context) (int, error)

	// Clear deletes every conversation.
	Clear(ctx context.Context) error
}
