// Package msglog reads the external append-only message log (the macOS
// Messages chat.db) without ever writing to it. Rows are keyed by ROWID,
// which only grows, so a single watermark is enough to find unseen mail.
package msglog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/gobutler/internal/fault"
)

// appleEpochOffset is the number of seconds between the Unix epoch and
// 2001-01-01, the zero point of chat.db timestamps.
const appleEpochOffset = 978307200

// Message is one inbound row from the log, normalized: Apple-epoch
// nanoseconds become a time.Time and the sender handle is resolved.
type Message struct {
	ID        int64
	Text      string
	Sender    string
	ChatID    string
	Timestamp time.Time
}

// Log is a read-only view over the message database.
type Log struct {
	db   *sql.DB
	path string
}

// Open opens the message log read-only. A missing or unreadable file is a
// fatal precondition: there is nothing to watch without it.
func Open(path string) (*Log, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fault.Fatal("msglog.Open", fmt.Errorf("message log not found at %s: %w", path, err))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Fatal("msglog.Open", fmt.Errorf("message log not readable (grant Full Disk Access): %w", err))
	}
	f.Close()

	dsn := "file:" + path + "?mode=ro&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fault.Fatal("msglog.Open", fmt.Errorf("open message log: %w", err))
	}
	// One connection: this is a foreign database owned by another process,
	// and a single reader keeps our lock footprint minimal.
	db.SetMaxOpenConns(1)

	return &Log{db: db, path: path}, nil
}

// Close releases the database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// LatestID returns the highest ROWID currently in the log, or 0 when empty.
// Used at startup so only messages arriving after the daemon starts are
// answered; anything older is intentionally skipped.
func (l *Log) LatestID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := l.db.QueryRowContext(ctx, `SELECT MAX(ROWID) FROM message`).Scan(&id)
	if err != nil {
		return 0, classify("msglog.LatestID", err)
	}
	if !id.Valid {
		return 0, nil
	}
	return id.Int64, nil
}

// Unseen returns inbound messages with ROWID greater than since, ascending.
// Outbound rows, empty texts, and attachment-only rows are filtered at the
// query. Lock contention surfaces as a transient fault; the caller drops
// the whole attempt and retries next cycle.
func (l *Log) Unseen(ctx context.Context, since int64) ([]Message, error) {
	const query = `
		SELECT
			message.ROWID,
			message.text,
			message.date,
			handle.id,
			chat.chat_identifier
		FROM message
		LEFT JOIN handle ON message.handle_id = handle.ROWID
		LEFT JOIN chat_message_join ON message.ROWID = chat_message_join.message_id
		LEFT JOIN chat ON chat_message_join.chat_id = chat.ROWID
		WHERE message.ROWID > ?
		  AND message.is_from_me = 0
		  AND message.text IS NOT NULL
		  AND message.text != ''
		ORDER BY message.ROWID ASC`

	rows, err := l.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, classify("msglog.Unseen", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			id     int64
			text   string
			date   int64
			sender sql.NullString
			chatID sql.NullString
		)
		if err := rows.Scan(&id, &text, &date, &sender, &chatID); err != nil {
			return nil, classify("msglog.Unseen", err)
		}
		if !sender.Valid || sender.String == "" {
			// No handle means no stable identity to correlate a
			// conversation against; nothing useful can be done.
			continue
		}
		msgs = append(msgs, Message{
			ID:        id,
			Text:      text,
			Sender:    sender.String,
			ChatID:    chatID.String,
			Timestamp: appleTime(date),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("msglog.Unseen", err)
	}
	return msgs, nil
}

// appleTime converts chat.db's nanoseconds-since-2001 to a time.Time.
func appleTime(raw int64) time.Time {
	sec := raw/1e9 + appleEpochOffset
	nsec := raw % 1e9
	return time.Unix(sec, nsec)
}

// classify maps driver errors onto the fault taxonomy. SQLite reports
// contention with the writing Messages process as "database is locked" or
// "database table is locked"; both clear on their own.
func classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "locked") || strings.Contains(msg, "busy") {
		return fault.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
