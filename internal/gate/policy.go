package gate

import (
	"context"
	"log/slog"
)

// Resolve maps a permission level and a high-match flag to a verdict.
// Unrecognized levels resolve to asking, never to acting.
func Resolve(level PermissionLevel, highMatch bool) Decision {
	switch level {
	case PermissionAlwaysAuto:
		return DecisionAutoExecute
	case PermissionAutoHighMatch:
		if highMatch {
			return DecisionAutoExecute
		}
		return DecisionRequestApproval
	case PermissionAlwaysAsk:
		return DecisionRequestApproval
	case PermissionNever:
		return DecisionDeny
	default:
		return DecisionRequestApproval
	}
}

// PreferenceSource provides the owner's autonomy policy.
type PreferenceSource interface {
	Preferences(ctx context.Context, userID string) (Preferences, error)
}

// Policy resolves permissions for a user, degrading to the default policy
// when the directory cannot be reached.
type Policy struct {
	source PreferenceSource
	log    *slog.Logger
}

// NewPolicy returns a Policy backed by the given preference source.
func NewPolicy(source PreferenceSource, log *slog.Logger) *Policy {
	if log == nil {
		log = slog.Default()
	}
	return &Policy{source: source, log: log}
}

// PreferencesOrDefault fetches the user's preferences, returning the
// defaults when the source fails or is absent.
func (p *Policy) PreferencesOrDefault(ctx context.Context, userID string) Preferences {
	if p.source == nil {
		return DefaultPreferences()
	}
	prefs, err := p.source.Preferences(ctx, userID)
	if err != nil {
		p.log.Warn("preferences unavailable, using defaults", "user_id", userID, "error", err)
		return DefaultPreferences()
	}
	return prefs
}

// Decide resolves the verdict for one action given the match standing.
func (p *Policy) Decide(ctx context.Context, userID string, action ActionType, highMatch bool) Decision {
	prefs := p.PreferencesOrDefault(ctx, userID)
	return Resolve(prefs.PermissionFor(action), highMatch)
}

// CanAutoExecute reports whether the action may run without asking.
func (p *Policy) CanAutoExecute(ctx context.Context, userID string, action ActionType, highMatch bool) bool {
	return p.Decide(ctx, userID, action, highMatch) == DecisionAutoExecute
}
