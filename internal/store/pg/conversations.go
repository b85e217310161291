package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/gobutler/internal/fault"
	"github.com/nextlevelbuilder/gobutler/internal/store"
)

// LogMessage appends one message, creating the conversation on first
// contact. Inbound messages flip the conversation back to unread.
func (s *Store) LogMessage(ctx context.Context, conversationID, sender, text string, fromAgent bool, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pg.LogMessage: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, sender, started_at, last_activity, read)
		 VALUES ($1, $2, $3, $3, FALSE)
		 ON CONFLICT (id) DO NOTHING`,
		conversationID, sender, at,
	); err != nil {
		return fmt.Errorf("pg.LogMessage: %w", err)
	}

	if fromAgent {
		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET last_activity = $1 WHERE id = $2`, at, conversationID)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET last_activity = $1, read = FALSE WHERE id = $2`, at, conversationID)
	}
	if err != nil {
		return fmt.Errorf("pg.LogMessage: %w", err)
	}

	from := sender
	if fromAgent {
		from = store.AgentSender
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender, text, sent_at) VALUES ($1, $2, $3, $4)`,
		conversationID, from, text, at,
	); err != nil {
		return fmt.Errorf("pg.LogMessage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pg.LogMessage: %w", err)
	}
	return nil
}

// UpdateSummary replaces the stored summary for a conversation. A nil
// summary clears it.
func (s *Store) UpdateSummary(ctx context.Context, conversationID string, sum *store.Summary) error {
	var payload any
	if sum != nil {
		data, err := json.Marshal(sum)
		if err != nil {
			return fmt.Errorf("pg.UpdateSummary: %w", err)
		}
		payload = data
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET summary = $1 WHERE id = $2`, payload, conversationID,
	); err != nil {
		return fmt.Errorf("pg.UpdateSummary: %w", err)
	}
	return nil
}

// MarkRead marks one conversation read.
func (s *Store) MarkRead(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET read = TRUE WHERE id = $1`, conversationID,
	); err != nil {
		return fmt.Errorf("pg.MarkRead: %w", err)
	}
	return nil
}

// MarkAllRead marks every conversation read.
func (s *Store) MarkAllRead(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE conversations SET read = TRUE`); err != nil {
		return fmt.Errorf("pg.MarkAllRead: %w", err)
	}
	return nil
}

// GetConversation returns one conversation with its full message history.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (*store.Conversation, error) {
	rows, err := s.queryConversations(ctx, `WHERE c.id = $1`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("pg.GetConversation: %w", err)
	}
	if len(rows) == 0 {
		return nil, fault.NotFound("pg.GetConversation", fmt.Errorf("conversation %s", conversationID))
	}
	return rows[0], nil
}

// ListConversations returns everything, most recent activity first.
func (s *Store) ListConversations(ctx context.Context) ([]*store.Conversation, error) {
	out, err := s.queryConversations(ctx, ``)
	if err != nil {
		return nil, fmt.Errorf("pg.ListConversations: %w", err)
	}
	return out, nil
}

// ListUnread returns unread conversations, most recent activity first.
func (s *Store) ListUnread(ctx context.Context) ([]*store.Conversation, error) {
	out, err := s.queryConversations(ctx, `WHERE NOT c.read`)
	if err != nil {
		return nil, fmt.Errorf("pg.ListUnread: %w", err)
	}
	return out, nil
}

// UnreadCount counts unread conversations without loading messages.
func (s *Store) UnreadCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE NOT read`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("pg.UnreadCount: %w", err)
	}
	return n, nil
}

// Clear deletes all conversations; messages cascade.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("pg.Clear: %w", err)
	}
	return nil
}

func (s *Store) queryConversations(ctx context.Context, where string, args ...any) ([]*store.Conversation, error) {
	query := `SELECT c.id, c.sender, c.started_at, c.last_activity, c.read, c.summary
		FROM conversations c ` + where + ` ORDER BY c.last_activity DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.Conversation
	index := map[string]*store.Conversation{}
	for rows.Next() {
		var (
			c           store.Conversation
			summaryJSON []byte
		)
		if err := rows.Scan(&c.ConversationID, &c.Sender, &c.StartedAt, &c.LastActivity, &c.Read, &summaryJSON); err != nil {
			return nil, err
		}
		if len(summaryJSON) > 0 {
			var sum store.Summary
			if err := json.Unmarshal(summaryJSON, &sum); err == nil {
				c.Summary = &sum
			}
		}
		c.Messages = []store.StoredMessage{}
		out = append(out, &c)
		index[c.ConversationID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	msgQuery := `SELECT m.conversation_id, m.sender, m.text, m.sent_at
		FROM messages m JOIN conversations c ON m.conversation_id = c.id ` + where + ` ORDER BY m.id ASC`
	msgRows, err := s.db.QueryContext(ctx, msgQuery, args...)
	if err != nil {
		return nil, err
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var (
			convoID string
			m       store.StoredMessage
		)
		if err := msgRows.Scan(&convoID, &m.From, &m.Text, &m.Timestamp); err != nil {
			return nil, err
		}
		if c, ok := index[convoID]; ok {
			c.Messages = append(c.Messages, m)
		}
	}
	return out, msgRows.Err()
}
