package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nextlevelbuilder/gobutler/internal/fault"
	"github.com/nextlevelbuilder/gobutler/internal/store"
)

// CreateApproval stores a new pending approval.
func (s *Store) CreateApproval(ctx context.Context, ap *store.Approval) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO approvals (id, user_id, other_user_id, name, reason, match_score, shared_attributes, draft, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ap.ID, ap.UserID, ap.OtherUserID, ap.Name, ap.Reason, ap.MatchScore,
		pq.Array(ap.SharedAttributes), ap.Draft, ap.Status, ap.CreatedAt,
	); err != nil {
		return fmt.Errorf("pg.CreateApproval: %w", err)
	}
	return nil
}

// GetApproval returns one approval by id.
func (s *Store) GetApproval(ctx context.Context, id string) (*store.Approval, error) {
	ap, err := scanApproval(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, other_user_id, name, reason, match_score, shared_attributes, draft, status, created_at, resolved_at
		 FROM approvals WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fault.NotFound("pg.GetApproval", fmt.Errorf("approval %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("pg.GetApproval: %w", err)
	}
	return ap, nil
}

// ListPending returns a user's pending approvals, oldest first.
func (s *Store) ListPending(ctx context.Context, userID string) ([]*store.Approval, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, other_user_id, name, reason, match_score, shared_attributes, draft, status, created_at, resolved_at
		 FROM approvals WHERE user_id = $1 AND status = $2 ORDER BY created_at ASC`,
		userID, store.ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("pg.ListPending: %w", err)
	}
	defer rows.Close()

	var out []*store.Approval
	for rows.Next() {
		ap, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("pg.ListPending: %w", err)
		}
		out = append(out, ap)
	}
	return out, rows.Err()
}

// ResolveApproval flips a pending approval to its final status.
func (s *Store) ResolveApproval(ctx context.Context, id string, approved bool) (*store.Approval, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("pg.ResolveApproval: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM approvals WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return nil, fault.NotFound("pg.ResolveApproval", fmt.Errorf("approval %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("pg.ResolveApproval: %w", err)
	}
	if status != store.ApprovalPending {
		return nil, fault.Malformed("pg.ResolveApproval", fmt.Errorf("approval %s already %s", id, status))
	}

	final := store.ApprovalDenied
	if approved {
		final = store.ApprovalApproved
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE approvals SET status = $1, resolved_at = $2 WHERE id = $3`,
		final, time.Now(), id,
	); err != nil {
		return nil, fmt.Errorf("pg.ResolveApproval: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("pg.ResolveApproval: %w", err)
	}
	return s.GetApproval(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApproval(row rowScanner) (*store.Approval, error) {
	var (
		ap         store.Approval
		attrs      []string
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&ap.ID, &ap.UserID, &ap.OtherUserID, &ap.Name, &ap.Reason,
		&ap.MatchScore, pq.Array(&attrs), &ap.Draft, &ap.Status, &ap.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	ap.SharedAttributes = attrs
	if resolvedAt.Valid {
		t := resolvedAt.Time
		ap.ResolvedAt = &t
	}
	return &ap, nil
}
