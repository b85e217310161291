package gate

import "testing"

// TestDefaultPreferences verifies the fallback policy matches the
// documented defaults.
func TestDefaultPreferences(t *testing.T) {
	p := DefaultPreferences()

	wantPerms := map[ActionType]PermissionLevel{
		ActionSendMessage:       PermissionAutoHighMatch,
		ActionSendEmail:         PermissionAutoHighMatch,
		ActionRequestConnection: PermissionAutoHighMatch,
		ActionScheduleMeeting:   PermissionAlwaysAsk,
		ActionShareProfile:      PermissionAlwaysAuto,
	}
	for action, want := range wantPerms {
		if got := p.PermissionFor(action); got != want {
			t.Errorf("PermissionFor(%q) = %q, want %q", action, got, want)
		}
	}
	if p.HighMatchThreshold != 0.75 {
		t.Errorf("HighMatchThreshold = %v, want 0.75", p.HighMatchThreshold)
	}
	if p.ConversationStyle.Tone != "professional" {
		t.Errorf("ConversationStyle.Tone = %q, want %q", p.ConversationStyle.Tone, "professional")
	}
	if !p.AutoScheduleEnabled {
		t.Error("AutoScheduleEnabled = false, want true")
	}
}

// TestPermissionForUnknownAction verifies unlisted actions require asking.
func TestPermissionForUnknownAction(t *testing.T) {
	p := DefaultPreferences()
	if got := p.PermissionFor(ActionType("launch_rocket")); got != PermissionAlwaysAsk {
		t.Errorf("PermissionFor(unknown) = %q, want %q", got, PermissionAlwaysAsk)
	}
}

// TestThresholdFallback verifies a zero threshold falls back to the default.
func TestThresholdFallback(t *testing.T) {
	p := Preferences{}
	if got := p.Threshold(); got != DefaultHighMatchThreshold {
		t.Errorf("Threshold() = %v, want %v", got, DefaultHighMatchThreshold)
	}
	p.HighMatchThreshold = 0.9
	if got := p.Threshold(); got != 0.9 {
		t.Errorf("Threshold() = %v, want 0.9", got)
	}
}

// TestProfileFromMap verifies loose directory documents convert with
// malformed fields degrading to zero values.
func TestProfileFromMap(t *testing.T) {
	p := ProfileFromMap(map[string]any{
		"user_id":   "u42",
		"name":      "Ana",
		"role":      "Engineer",
		"interests": []any{"go", 7, "coffee"},
		"skills":    []string{"sql"},
		"goals":     "not-a-list",
		"contact":   map[string]any{"phone": "+15551234567", "email": "ana@example.com"},
	})

	if p.UserID != "u42" || p.Name != "Ana" || p.Role != "Engineer" {
		t.Errorf("scalar fields = %q/%q/%q, want u42/Ana/Engineer", p.UserID, p.Name, p.Role)
	}
	if len(p.Interests) != 2 || p.Interests[0] != "go" || p.Interests[1] != "coffee" {
		t.Errorf("Interests = %v, want [go coffee]", p.Interests)
	}
	if len(p.Skills) != 1 || p.Skills[0] != "sql" {
		t.Errorf("Skills = %v, want [sql]", p.Skills)
	}
	if p.Goals != nil {
		t.Errorf("Goals = %v, want nil for malformed field", p.Goals)
	}
	if p.Contact.Phone != "+15551234567" {
		t.Errorf("Contact.Phone = %q, want +15551234567", p.Contact.Phone)
	}
}

// TestPreferencesFromMap verifies partial documents overlay the defaults.
func TestPreferencesFromMap(t *testing.T) {
	p := PreferencesFromMap(map[string]any{
		"conversation_style":   map[string]any{"tone": "casual"},
		"permissions":          map[string]any{"send_message": "never"},
		"high_match_threshold": 0.9,
	})

	if p.ConversationStyle.Tone != "casual" {
		t.Errorf("Tone = %q, want casual", p.ConversationStyle.Tone)
	}
	if p.ConversationStyle.Length != "moderate" {
		t.Errorf("Length = %q, want default moderate", p.ConversationStyle.Length)
	}
	if got := p.PermissionFor(ActionSendMessage); got != PermissionNever {
		t.Errorf("PermissionFor(send_message) = %q, want never", got)
	}
	if got := p.PermissionFor(ActionShareProfile); got != PermissionAlwaysAuto {
		t.Errorf("PermissionFor(share_profile) = %q, want default always_auto", got)
	}
	if p.HighMatchThreshold != 0.9 {
		t.Errorf("HighMatchThreshold = %v, want 0.9", p.HighMatchThreshold)
	}
}

// TestPreferencesFromMapNil verifies a missing document yields the defaults.
func TestPreferencesFromMapNil(t *testing.T) {
	p := PreferencesFromMap(nil)
	if got := p.PermissionFor(ActionSendMessage); got != PermissionAutoHighMatch {
		t.Errorf("PermissionFor(send_message) = %q, want auto_high_match", got)
	}
}
