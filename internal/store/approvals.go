package store

import (
	"context"
	"time"
)

// Approval statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalDenied   = "denied"
)

// Approval is an outreach the attendant wants to make but is not allowed
// to make on its own. It stays pending until the owner resolves it.
type Approval struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	OtherUserID      string     `json:"other_user_id"`
	Name             string     `json:"name,omitempty"`
	Reason           string     `json:"reason"`
	MatchScore       float64    `json:"match_score"`
	SharedAttributes []string   `json:"shared_attributes,omitempty"`
	Draft            string     `json:"draft,omitempty"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// ApprovalStore persists pending outreach decisions across restarts.
type ApprovalStore interface {
	// CreateApproval stores a new pending approval.
	CreateApproval(ctx context.Context, ap *Approval) error

	// GetApproval returns one approval or a not-found fault.
	GetApproval(ctx context.Context, id string) (*Approval, error)

	// ListPending returns pending approvals for a user, oldest first.
	ListPending(ctx context.Context, userID string) ([]*Approval, error)

	// ResolveApproval flips a pending approval to approved or denied and
	// stamps ResolvedAt. Resolving twice is a malformed-request fault.
	ResolveApproval(ctx context.Context, id string, approved bool) (*Approval, error)
}
