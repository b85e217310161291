// Package sqlite is the default storage engine: one local database file in
// WAL mode. Every mutation is a single transaction, so the read/unread and
// summary invariants hold even with the watcher and gateway writing from
// different processes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/gobutler/internal/fault"
	"github.com/nextlevelbuilder/gobutler/internal/store"
)

// Store implements store.ConversationStore and store.ApprovalStore.
type Store struct {
	db *sql.DB
}

// migrations run in order; PRAGMA user_version tracks the last applied.
var migrations = []string{
	`CREATE TABLE conversations (
		id            TEXT PRIMARY KEY,
		sender        TEXT NOT NULL,
		started_at    INTEGER NOT NULL,
		last_activity INTEGER NOT NULL,
		read          INTEGER NOT NULL DEFAULT 0,
		summary       TEXT
	);
	CREATE TABLE messages (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender          TEXT NOT NULL,
		text            TEXT NOT NULL,
		timestamp       INTEGER NOT NULL
	);
	CREATE INDEX idx_messages_conversation ON messages(conversation_id);
	CREATE TABLE approvals (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL,
		other_user_id     TEXT NOT NULL,
		name              TEXT NOT NULL DEFAULT '',
		reason            TEXT NOT NULL DEFAULT '',
		match_score       REAL NOT NULL DEFAULT 0,
		shared_attributes TEXT,
		draft             TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL DEFAULT 'pending',
		created_at        INTEGER NOT NULL,
		resolved_at       INTEGER
	);
	CREATE INDEX idx_approvals_pending ON approvals(user_id, status);`,
}

// Open opens (creating if needed) the database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	// Single connection serializes all statements through one writer,
	// which is how SQLite wants to be used from Go.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			return fmt.Errorf("bump schema version: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// LogMessage appends one message, creating the conversation on first
// contact. Inbound messages flip the conversation back to unread.
func (s *Store) LogMessage(ctx context.Context, conversationID, sender, text string, fromAgent bool, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite.LogMessage: %w", err)
	}
	defer tx.Rollback()

	now := at.UnixNano()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, sender, started_at, last_activity, read)
		 VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT (id) DO NOTHING`,
		conversationID, sender, now, now,
	); err != nil {
		return fmt.Errorf("sqlite.LogMessage: %w", err)
	}

	if fromAgent {
		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET last_activity = ? WHERE id = ?`, now, conversationID)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET last_activity = ?, read = 0 WHERE id = ?`, now, conversationID)
	}
	if err != nil {
		return fmt.Errorf("sqlite.LogMessage: %w", err)
	}

	from := sender
	if fromAgent {
		from = store.AgentSender
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender, text, timestamp) VALUES (?, ?, ?, ?)`,
		conversationID, from, text, now,
	); err != nil {
		return fmt.Errorf("sqlite.LogMessage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite.LogMessage: %w", err)
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
			return fmt.Errorf("sqlite.UpdateSummary: %w", err)
		}
		payload = string(data)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET summary = ? WHERE id = ?`, payload, conversationID,
	); err != nil {
		return fmt.Errorf("sqlite.UpdateSummary: %w", err)
	}
	return nil
}

// MarkRead marks one conversation read.
func (s *Store) MarkRead(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET read = 1 WHERE id = ?`, conversationID,
	); err != nil {
		return fmt.Errorf("sqlite.MarkRead: %w", err)
	}
	return nil
}

// MarkAllRead marks every conversation read.
func (s *Store) MarkAllRead(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE conversations SET read = 1`); err != nil {
		return fmt.Errorf("sqlite.MarkAllRead: %w", err)
	}
	return nil
}

// GetConversation returns one conversation with its full message history.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (*store.Conversation, error) {
	rows, err := s.queryConversations(ctx, `WHERE c.id = ?`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite.GetConversation: %w", err)
	}
	if len(rows) == 0 {
		return nil, fault.NotFound("sqlite.GetConversation", fmt.Errorf("conversation %s", conversationID))
	}
	return rows[0], nil
}

// ListConversations returns everything, most recent activity first.
func (s *Store) ListConversations(ctx context.Context) ([]*store.Conversation, error) {
	out, err := s.queryConversations(ctx, ``)
	if err != nil {
		return nil, fmt.Errorf("sqlite.ListConversations: %w", err)
	}
	return out, nil
}

// ListUnread returns unread conversations, most recent activity first.
func (s *Store) ListUnread(ctx context.Context) ([]*store.Conversation, error) {
	out, err := s.queryConversations(ctx, `WHERE c.read = 0`)
	if err != nil {
		return nil, fmt.Errorf("sqlite.ListUnread: %w", err)
	}
	return out, nil
}

// UnreadCount counts unread conversations without loading messages.
func (s *Store) UnreadCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE read = 0`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite.UnreadCount: %w", err)
	}
	return n, nil
}

// Clear deletes all conversations and their messages.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("sqlite.Clear: %w", err)
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
			startedAt   int64
			lastActive  int64
			summaryJSON sql.NullString
		)
		if err := rows.Scan(&c.ConversationID, &c.Sender, &startedAt, &lastActive, &c.Read, &summaryJSON); err != nil {
			return nil, err
		}
		c.StartedAt = time.Unix(0, startedAt)
		c.LastActivity = time.Unix(0, lastActive)
		if summaryJSON.Valid && summaryJSON.String != "" {
			var sum store.Summary
			if err := json.Unmarshal([]byte(summaryJSON.String), &sum); err == nil {
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

	msgQuery := `SELECT m.conversation_id, m.sender, m.text, m.timestamp
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
			ts      int64
		)
		if err := msgRows.Scan(&convoID, &m.From, &m.Text, &ts); err != nil {
			return nil, err
		}
		m.Timestamp = time.Unix(0, ts)
		if c, ok := index[convoID]; ok {
			c.Messages = append(c.Messages, m)
		}
	}
	return out, msgRows.Err()
}

// CreateApproval stores a new pending approval.
func (s *Store) CreateApproval(ctx context.Context, ap *store.Approval) error {
	attrs, err := json.Marshal(ap.SharedAttributes)
	if err != nil {
		return fmt.Errorf("sqlite.CreateApproval: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO approvals (id, user_id, other_user_id, name, reason, match_score, shared_attributes, draft, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ap.ID, ap.UserID, ap.OtherUserID, ap.Name, ap.Reason, ap.MatchScore,
		string(attrs), ap.Draft, ap.Status, ap.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("sqlite.CreateApproval: %w", err)
	}
	return nil
}

// GetApproval returns one approval by id.
func (s *Store) GetApproval(ctx context.Context, id string) (*store.Approval, error) {
	ap, err := s.scanApproval(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, other_user_id, name, reason, match_score, shared_attributes, draft, status, created_at, resolved_at
		 FROM approvals WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fault.NotFound("sqlite.GetApproval", fmt.Errorf("approval %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite.GetApproval: %w", err)
	}
	return ap, nil
}

// ListPending returns a user's pending approvals, oldest first.
func (s *Store) ListPending(ctx context.Context, userID string) ([]*store.Approval, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, other_user_id, name, reason, match_score, shared_attributes, draft, status, created_at, resolved_at
		 FROM approvals WHERE user_id = ? AND status = ? ORDER BY created_at ASC`,
		userID, store.ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("sqlite.ListPending: %w", err)
	}
	defer rows.Close()

	var out []*store.Approval
	for rows.Next() {
		ap, err := s.scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite.ListPending: %w", err)
		}
		out = append(out, ap)
	}
	return out, rows.Err()
}

// ResolveApproval flips a pending approval to its final status.
func (s *Store) ResolveApproval(ctx context.Context, id string, approved bool) (*store.Approval, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite.ResolveApproval: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM approvals WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return nil, fault.NotFound("sqlite.ResolveApproval", fmt.Errorf("approval %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite.ResolveApproval: %w", err)
	}
	if status != store.ApprovalPending {
		return nil, fault.Malformed("sqlite.ResolveApproval", fmt.Errorf("approval %s already %s", id, status))
	}

	final := store.ApprovalDenied
	if approved {
		final = store.ApprovalApproved
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE approvals SET status = ?, resolved_at = ? WHERE id = ?`,
		final, time.Now().UnixNano(), id,
	); err != nil {
		return nil, fmt.Errorf("sqlite.ResolveApproval: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite.ResolveApproval: %w", err)
	}
	return s.GetApproval(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanApproval(row rowScanner) (*store.Approval, error) {
	var (
		ap         store.Approval
		attrs      sql.NullString
		createdAt  int64
		resolvedAt sql.NullInt64
	)
	if err := row.Scan(&ap.ID, &ap.UserID, &ap.OtherUserID, &ap.Name, &ap.Reason,
		&ap.MatchScore, &attrs, &ap.Draft, &ap.Status, &createdAt, &resolvedAt); err != nil {
		return nil, err
	}
	if attrs.Valid && attrs.String != "" {
		json.Unmarshal([]byte(attrs.String), &ap.SharedAttributes)
	}
	ap.CreatedAt = time.Unix(0, createdAt)
	if resolvedAt.Valid {
		t := time.Unix(0, resolvedAt.Int64)
		ap.ResolvedAt = &t
	}
	return &ap, nil
}
