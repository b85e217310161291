package gate

import (
	"context"
	"errors"
	"testing"
)

// TestResolve verifies every permission level against both match standings.
func TestResolve(t *testing.T) {
	tests := []struct {
		level     PermissionLevel
		highMatch bool
		want      Decision
	}{
		{PermissionAlwaysAuto, true, DecisionAutoExecute},
		{PermissionAlwaysAuto, false, DecisionAutoExecute},
		{PermissionAutoHighMatch, true, DecisionAutoExecute},
		{PermissionAutoHighMatch, false, DecisionRequestApproval},
		{PermissionAlwaysAsk, true, DecisionRequestApproval},
		{PermissionAlwaysAsk, false, DecisionRequestApproval},
		{PermissionNever, true, DecisionDeny},
		{PermissionNever, false, DecisionDeny},
		{PermissionLevel("garbled"), true, DecisionRequestApproval},
	}
	for _, tt := range tests {
		if got := Resolve(tt.level, tt.highMatch); got != tt.want {
			t.Errorf("Resolve(%q, %v) = %q, want %q", tt.level, tt.highMatch, got, tt.want)
		}
	}
}

type stubPrefs struct {
	prefs Preferences
	err   error
}

func (s stubPrefs) Preferences(ctx context.Context, userID string) (Preferences, error) {
	return s.prefs, s.err
}

// TestPolicyDefaultsOnError verifies an unreachable directory degrades to
// the default policy instead of blocking decisions.
func TestPolicyDefaultsOnError(t *testing.T) {
	p := NewPolicy(stubPrefs{err: errors.New("directory down")}, nil)
	ctx := context.Background()

	if !p.CanAutoExecute(ctx, "u1", ActionSendMessage, true) {
		t.Error("CanAutoExecute(send_message, high) = false, want true under default policy")
	}
	if p.CanAutoExecute(ctx, "u1", ActionSendMessage, false) {
		t.Error("CanAutoExecute(send_message, low) = true, want false under default policy")
	}
	if !p.CanAutoExecute(ctx, "u1", ActionShareProfile, false) {
		t.Error("CanAutoExecute(share_profile, low) = false, want true under default policy")
	}
	if p.CanAutoExecute(ctx, "u1", ActionScheduleMeeting, true) {
		t.Error("CanAutoExecute(schedule_meeting, high) = true, want false under default policy")
	}
}

// TestPolicyUsesConfiguredLevels verifies explicit preferences override
// the defaults.
func TestPolicyUsesConfiguredLevels(t *testing.T) {
	prefs := DefaultPreferences()
	prefs.Permissions[ActionSendMessage] = PermissionNever
	p := NewPolicy(stubPrefs{prefs: prefs}, nil)

	got := p.Decide(context.Background(), "u1", ActionSendMessage, true)
	if got != DecisionDeny {
		t.Errorf("Decide(send_message, high) = %q, want %q", got, DecisionDeny)
	}
}
