package gateway

import (
	"context"
	"net/http"

	"github.com/nextlevelbuilder/gobutler/internal/fault"
	"github.com/nextlevelbuilder/gobutler/internal/gate"
	"github.com/nextlevelbuilder/gobutler/internal/store"
	"github.com/nextlevelbuilder/gobutler/pkg/protocol"
)

// Approval endpoints let the owner resolve queued outreach. Approving
// sends the drafted introduction over the relay; denying just closes
// the record.

func (s *Server) handleApprovalsList(w http.ResponseWriter, r *http.Request) {
	if status := r.URL.Query().Get("status"); status != "" && status != store.ApprovalPending {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "only status=pending is supported",
		})
		return
	}

	pending, err := s.stores.Approvals.ListPending(r.Context(), s.cfg.Owner.UserID)
	if err != nil {
		s.httpError(w, err)
		return
	}
	if pending == nil {
		pending = []*store.Approval{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"approvals": pending,
		"count":     len(pending),
	})
}

func (s *Server) handleApprovalApprove(w http.ResponseWriter, r *http.Request) {
	approvalID := r.PathValue("approvalID")

	ap, err := s.stores.Approvals.ResolveApproval(r.Context(), approvalID, true)
	if err != nil {
		s.approvalError(w, err)
		return
	}

	text := ap.Draft
	if text == "" {
		text = s.composeApprovedIntro(r.Context(), ap)
	}

	sent := false
	if text != "" {
		if phone := s.recipientPhone(r.Context(), ap.OtherUserID); phone != "" {
			if err := s.dispatch.Send(r.Context(), phone, text); err != nil {
				s.log.Error("approved outreach send failed",
					"approval_id", ap.ID, "other_user_id", ap.OtherUserID, "error", err)
			} else {
				sent = true
			}
		} else {
			s.log.Warn("approved outreach has no reachable recipient",
				"approval_id", ap.ID, "other_user_id", ap.OtherUserID)
		}
	}

	if sent {
		if err := s.dir.LogInteraction(r.Context(), ap.UserID, ap.OtherUserID, "approved_outreach", map[string]any{
			"approval_id": ap.ID,
			"match_score": ap.MatchScore,
		}); err != nil {
			s.log.Warn("interaction log failed", "approval_id", ap.ID, "error", err)
		}
	}

	s.broadcast(protocol.EventApprovalResolved, map[string]any{
		"approval_id": ap.ID,
		"approved":    true,
		"sent":        sent,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"approval": ap,
		"sent":     sent,
	})
}

func (s *Server) handleApprovalDeny(w http.ResponseWriter, r *http.Request) {
	approvalID := r.PathValue("approvalID")

	ap, err := s.stores.Approvals.ResolveApproval(r.Context(), approvalID, false)
	if err != nil {
		s.approvalError(w, err)
		return
	}

	s.broadcast(protocol.EventApprovalResolved, map[string]any{
		"approval_id": ap.ID,
		"approved":    false,
	})
	writeJSON(w, http.StatusOK, map[string]any{"approval": ap})
}

// approvalError maps resolution failures: resolving an already-resolved
// approval is a conflict, not a bad request.
func (s *Server) approvalError(w http.ResponseWriter, err error) {
	if fault.IsMalformed(err) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	s.httpError(w, err)
}

// composeApprovedIntro drafts the introduction for an approval created
// before drafts were stored on the record. Profile lookups degrade to
// bare IDs; a failed generation returns "" and the approval resolves
// without an outbound message.
func (s *Server) composeApprovedIntro(ctx context.Context, ap *store.Approval) string {
	owner, err := s.dir.Profile(ctx, ap.UserID)
	if err != nil {
		owner = gate.Profile{UserID: ap.UserID}
	}
	other, err := s.dir.Profile(ctx, ap.OtherUserID)
	if err != nil {
		other = gate.Profile{UserID: ap.OtherUserID, Name: ap.Name}
	}

	text, err := s.butler.Composer().ComposeIntro(ctx, gate.IntroRequest{
		Owner:  owner,
		Other:  other,
		Reason: ap.Reason,
		Score:  ap.MatchScore,
	})
	if err != nil {
		s.log.Warn("intro draft failed", "approval_id", ap.ID, "error", err)
		return ""
	}
	return text
}

// recipientPhone resolves a user to a dispatchable phone number, or ""
// when the directory is down or the profile has no number.
func (s *Server) recipientPhone(ctx context.Context, userID string) string {
	profile, err := s.dir.Profile(ctx, userID)
	if err != nil {
		return ""
	}
	return profile.Contact.Phone
}
