// Package gate decides how much autonomy the attendant has for a given
// action: score the match between two people, look up the owner's
// permission policy, and resolve to execute, ask, or deny.
package gate

import "strconv"

// ActionType names an action the attendant can take on the owner's behalf.
type ActionType string

const (
	ActionSendMessage       ActionType = "send_message"
	ActionSendEmail         ActionType = "send_email"
	ActionScheduleMeeting   ActionType = "schedule_meeting"
	ActionShareProfile      ActionType = "share_profile"
	ActionRequestConnection ActionType = "request_connection"
)

// PermissionLevel is the owner's standing policy for one action type.
type PermissionLevel string

const (
	PermissionAlwaysAuto    PermissionLevel = "always_auto"
	PermissionAutoHighMatch PermissionLevel = "auto_high_match"
	PermissionAlwaysAsk     PermissionLevel = "always_ask"
	PermissionNever         PermissionLevel = "never"
)

// Decision is the resolved verdict for one concrete action.
type Decision string

const (
	DecisionAutoExecute     Decision = "auto_execute"
	DecisionRequestApproval Decision = "request_approval"
	DecisionDeny            Decision = "deny"
)

// DefaultHighMatchThreshold is the score at and above which a contact
// counts as a high match.
const DefaultHighMatchThreshold = 0.75

// Contact is how a person can be reached.
type Contact struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Profile describes a person in the directory. Zero values are valid: the
// attendant degrades to generic behavior when fields are missing rather
// than refusing to act.
type Profile struct {
	UserID     string   `json:"user_id,omitempty"`
	Name       string   `json:"name,omitempty"`
	Role       string   `json:"role,omitempty"`
	Company    string   `json:"company,omitempty"`
	Bio        string   `json:"bio,omitempty"`
	Interests  []string `json:"interests,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	LookingFor []string `json:"looking_for,omitempty"`
	Goals      []string `json:"goals,omitempty"`
	Contact    Contact  `json:"contact,omitempty"`
}

// ConversationStyle shapes how drafted messages should read.
type ConversationStyle struct {
	Tone       string `json:"tone"`
	Length     string `json:"length"`
	Formality  string `json:"formality"`
	EmojiUsage bool   `json:"emoji_usage"`
}

// Preferences is the owner's autonomy policy.
type Preferences struct {
	ConversationStyle   ConversationStyle              `json:"conversation_style"`
	Permissions         map[ActionType]PermissionLevel `json:"permissions"`
	HighMatchThreshold  float64                        `json:"high_match_threshold"`
	AutoScheduleEnabled bool                           `json:"auto_schedule_enabled"`
}

// DefaultPreferences returns the policy used when the directory is
// unreachable or has no record for the owner.
func DefaultPreferences() Preferences {
	return Preferences{
		ConversationStyle: ConversationStyle{
			Tone:       "professional",
			Length:     "moderate",
			Formality:  "semi-formal",
			EmojiUsage: false,
		},
		Permissions: map[ActionType]PermissionLevel{
			ActionSendMessage:       PermissionAutoHighMatch,
			ActionSendEmail:         PermissionAutoHighMatch,
			ActionRequestConnection: PermissionAutoHighMatch,
			ActionScheduleMeeting:   PermissionAlwaysAsk,
			ActionShareProfile:      PermissionAlwaysAuto,
		},
		HighMatchThreshold:  DefaultHighMatchThreshold,
		AutoScheduleEnabled: true,
	}
}

// PermissionFor returns the configured level for an action. Actions the
// policy does not mention require asking.
func (p Preferences) PermissionFor(action ActionType) PermissionLevel {
	if level, ok := p.Permissions[action]; ok && level != "" {
		return level
	}
	return PermissionAlwaysAsk
}

// Threshold returns the high-match threshold, falling back to the default
// when the record carries none.
func (p Preferences) Threshold() float64 {
	if p.HighMatchThreshold > 0 {
		return p.HighMatchThreshold
	}
	return DefaultHighMatchThreshold
}

// ProfileFromMap builds a Profile from a loosely typed document, as
// returned by the directory. Unknown keys are ignored and wrong types
// degrade to zero values, never errors.
func ProfileFromMap(m map[string]any) Profile {
	p := Profile{
		UserID:     asString(m["user_id"]),
		Name:       asString(m["name"]),
		Role:       asString(m["role"]),
		Company:    asString(m["company"]),
		Bio:        asString(m["bio"]),
		Interests:  asStrings(m["interests"]),
		Skills:     asStrings(m["skills"]),
		LookingFor: asStrings(m["looking_for"]),
		Goals:      asStrings(m["goals"]),
	}
	if c, ok := m["contact"].(map[string]any); ok {
		p.Contact = Contact{Phone: asString(c["phone"]), Email: asString(c["email"])}
	}
	return p
}

// PreferencesFromMap builds Preferences from a loosely typed document,
// filling anything missing or malformed from the defaults.
func PreferencesFromMap(m map[string]any) Preferences {
	p := DefaultPreferences()
	if m == nil {
		return p
	}
	if cs, ok := m["conversation_style"].(map[string]any); ok {
		if v := asString(cs["tone"]); v != "" {
			p.ConversationStyle.Tone = v
		}
		if v := asString(cs["length"]); v != "" {
			p.ConversationStyle.Length = v
		}
		if v := asString(cs["formality"]); v != "" {
			p.ConversationStyle.Formality = v
		}
		if v, ok := asBool(cs["emoji_usage"]); ok {
			p.ConversationStyle.EmojiUsage = v
		}
	}
	if perms, ok := m["permissions"].(map[string]any); ok {
		for action, raw := range perms {
			if level := PermissionLevel(asString(raw)); level != "" {
				p.Permissions[ActionType(action)] = level
			}
		}
	}
	if v, ok := asFloat(m["high_match_threshold"]); ok && v > 0 {
		p.HighMatchThreshold = v
	}
	if v, ok := asBool(m["auto_schedule_enabled"]); ok {
		p.AutoScheduleEnabled = v
	}
	return p
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStrings(v any) []string {
	switch vs := v.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, item := range vs {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	}
	return false, false
}

func asFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case int:
		return float64(f), true
	case string:
		parsed, err := strconv.ParseFloat(f, 64)
		return parsed, err == nil
	}
	return 0, false
}
