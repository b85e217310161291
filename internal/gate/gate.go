package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/gobutler/internal/fault"
	"github.com/nextlevelbuilder/gobutler/internal/store"
	"github.com/nextlevelbuilder/gobutler/pkg/protocol"
)

// Directory looks up people and policies.
type Directory interface {
	Profile(ctx context.Context, userID string) (Profile, error)
	Preferences(ctx context.Context, userID string) (Preferences, error)
	LogInteraction(ctx context.Context, userID, otherUserID, kind string, detail map[string]any) error
}

// Composer drafts an introduction message for a scored pair.
type Composer interface {
	ComposeIntro(ctx context.Context, req IntroRequest) (string, error)
}

// Sender delivers a message to a recipient handle.
type Sender interface {
	Send(ctx context.Context, recipient, text string) error
}

// Notifier tells the owner something needs their attention.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Broadcaster pushes events to live subscribers.
type Broadcaster interface {
	Broadcast(event string, data map[string]any)
}

// IntroRequest carries everything the composer needs to draft an intro.
type IntroRequest struct {
	Owner     Profile
	Other     Profile
	Reason    string
	Score     float64
	EventName string
	Style     ConversationStyle
}

// Outcome is the terminal result of one detection. Action is one of the
// protocol.Action* values; there is no retry state to carry forward.
type Outcome struct {
	Action     string  `json:"action"`
	Score      float64 `json:"match_score"`
	Reason     string  `json:"reason,omitempty"`
	Draft      string  `json:"message,omitempty"`
	Sent       bool    `json:"sent,omitempty"`
	ApprovalID string  `json:"approval_id,omitempty"`
	SkipCause  string  `json:"skip_cause,omitempty"`
}

// Gate evaluates detections end to end: score the pair, resolve the
// owner's policy, then either reach out, queue an approval, or skip.
type Gate struct {
	dir       Directory
	composer  Composer
	sender    Sender
	approvals store.ApprovalStore
	notify    Notifier
	bus       Broadcaster
	log       *slog.Logger
}

// New returns a Gate. Notify and bus may be nil; approvals may be nil only
// if the policy can never resolve to asking.
func New(dir Directory, composer Composer, sender Sender, approvals store.ApprovalStore, notify Notifier, bus Broadcaster, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		dir:       dir,
		composer:  composer,
		sender:    sender,
		approvals: approvals,
		notify:    notify,
		bus:       bus,
		log:       log,
	}
}

// HandleDetection runs the detection flow for one nearby person. The
// returned Outcome is terminal: Skipped detections are not retried, and a
// failed autonomous send is reported, not re-queued.
func (g *Gate) HandleDetection(ctx context.Context, userID, otherUserID string, detCtx map[string]any) (Outcome, error) {
	owner, err := g.dir.Profile(ctx, userID)
	if err != nil {
		// The attendant still works without an owner profile, it just
		// has less to match on.
		g.log.Warn("owner profile unavailable", "user_id", userID, "error", err)
		owner = Profile{UserID: userID}
	}

	other, err := g.dir.Profile(ctx, otherUserID)
	if err != nil {
		if fault.IsNotFound(err) {
			return Outcome{Action: protocol.ActionSkipped, SkipCause: "no profile found"}, nil
		}
		return Outcome{}, fmt.Errorf("gate.HandleDetection: %w", err)
	}
	if owner.UserID == "" {
		owner.UserID = userID
	}
	if other.UserID == "" {
		other.UserID = otherUserID
	}

	prefs := g.preferencesOrDefault(ctx, userID)
	eng := NewEngine(prefs.Threshold())
	score := eng.MatchScore(owner, other)
	high := eng.IsHighMatch(score)
	reason := eng.MatchReason(owner, other, score)

	g.broadcast(protocol.EventDetectionScored, map[string]any{
		"user_id":       userID,
		"other_user_id": otherUserID,
		"match_score":   score,
		"high_match":    high,
	})

	switch Resolve(prefs.PermissionFor(ActionSendMessage), high) {
	case DecisionAutoExecute:
		return g.autoOutreach(ctx, owner, other, prefs, score, reason, detCtx)
	case DecisionRequestApproval:
		return g.queueApproval(ctx, owner, other, score, reason, detCtx)
	default:
		return Outcome{Action: protocol.ActionSkipped, Score: score, Reason: reason, SkipCause: "not permitted"}, nil
	}
}

func (g *Gate) autoOutreach(ctx context.Context, owner, other Profile, prefs Preferences, score float64, reason string, detCtx map[string]any) (Outcome, error) {
	draft, err := g.composer.ComposeIntro(ctx, IntroRequest{
		Owner:     owner,
		Other:     other,
		Reason:    reason,
		Score:     score,
		EventName: eventName(detCtx),
		Style:     prefs.ConversationStyle,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("gate.HandleDetection: compose intro: %w", err)
	}

	phone := other.Contact.Phone
	if phone == "" {
		return Outcome{
			Action:    protocol.ActionSkipped,
			Score:     score,
			Reason:    reason,
			Draft:     draft,
			SkipCause: "no contact method",
		}, nil
	}

	out := Outcome{Action: protocol.ActionAutoDispatch, Score: score, Reason: reason, Draft: draft}
	if err := g.sender.Send(ctx, phone, draft); err != nil {
		g.log.Warn("autonomous outreach failed to send", "other_user_id", other.UserID, "error", err)
	} else {
		out.Sent = true
	}

	if err := g.dir.LogInteraction(ctx, owner.UserID, other.UserID, "autonomous_outreach", map[string]any{
		"match_score": score,
		"context":     detCtx,
	}); err != nil {
		g.log.Warn("interaction log failed", "error", err)
	}

	g.broadcast(protocol.EventOutreachSent, map[string]any{
		"user_id":       owner.UserID,
		"other_user_id": other.UserID,
		"recipient":     other.Name,
		"sent":          out.Sent,
	})
	return out, nil
}

func (g *Gate) queueApproval(ctx context.Context, owner, other Profile, score float64, reason string, detCtx map[string]any) (Outcome, error) {
	draft := ""
	if g.composer != nil {
		// Best effort: give the owner proposed text to approve, but a
		// drafting failure should not lose the approval itself.
		d, err := g.composer.ComposeIntro(ctx, IntroRequest{
			Owner:     owner,
			Other:     other,
			Reason:    reason,
			Score:     score,
			EventName: eventName(detCtx),
		})
		if err != nil {
			g.log.Warn("draft for approval failed", "other_user_id", other.UserID, "error", err)
		} else {
			draft = d
		}
	}

	ap := &store.Approval{
		ID:               uuid.NewString(),
		UserID:           owner.UserID,
		OtherUserID:      other.UserID,
		Name:             other.Name,
		Reason:           reason,
		MatchScore:       score,
		SharedAttributes: SharedAttributes(owner, other),
		Draft:            draft,
		Status:           store.ApprovalPending,
		CreatedAt:        time.Now(),
	}
	if err := g.approvals.CreateApproval(ctx, ap); err != nil {
		return Outcome{}, fmt.Errorf("gate.HandleDetection: persist approval: %w", err)
	}

	if g.notify != nil {
		text := fmt.Sprintf("Met %s (%.0f%% match). %s\nApprove the intro? id=%s", displayName(other), score*100, reason, ap.ID)
		if err := g.notify.Notify(ctx, text); err != nil {
			g.log.Warn("approval notification failed", "approval_id", ap.ID, "error", err)
		}
	}

	g.broadcast(protocol.EventApprovalRequested, map[string]any{
		"approval_id":   ap.ID,
		"user_id":       ap.UserID,
		"other_user_id": ap.OtherUserID,
		"match_score":   score,
	})
	return Outcome{Action: protocol.ActionPendingApproval, Score: score, Reason: reason, Draft: draft, ApprovalID: ap.ID}, nil
}

func (g *Gate) preferencesOrDefault(ctx context.Context, userID string) Preferences {
	prefs, err := g.dir.Preferences(ctx, userID)
	if err != nil {
		g.log.Warn("preferences unavailable, using defaults", "user_id", userID, "error", err)
		return DefaultPreferences()
	}
	return prefs
}

func (g *Gate) broadcast(event string, data map[string]any) {
	if g.bus != nil {
		g.bus.Broadcast(event, data)
	}
}

func eventName(detCtx map[string]any) string {
	if detCtx != nil {
		if name, ok := detCtx["event_name"].(string); ok && name != "" {
			return name
		}
	}
	return "the same event"
}

func displayName(p Profile) string {
	if p.Name != "" {
		return p.Name
	}
	return p.UserID
}
