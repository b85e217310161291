package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/nextlevelbuilder/gobutler/internal/config"
	"github.com/nextlevelbuilder/gobutler/internal/gate"
	"github.com/nextlevelbuilder/gobutler/internal/registry"
	"github.com/nextlevelbuilder/gobutler/internal/store"
)

// seedPeople loads a deterministic cast: bob is a perfect match with a
// phone, carol a middling one, dave a perfect match with no number.
func seedPeople(g *testGateway) {
	g.dir.addProfile(gate.Profile{
		UserID:     "owner1",
		Name:       "Alice Chen",
		Interests:  []string{"climbing", "go"},
		LookingFor: []string{"designer"},
		Goals:      []string{"ship v1"},
		Contact:    gate.Contact{Phone: "+15550001"},
	})
	g.dir.addProfile(gate.Profile{
		UserID:    "bob",
		Name:      "Bob",
		Interests: []string{"climbing", "go"},
		Skills:    []string{"designer"},
		Goals:     []string{"ship v1"},
		Contact:   gate.Contact{Phone: "+15550002"},
	})
	g.dir.addProfile(gate.Profile{
		UserID:    "carol",
		Name:      "Carol",
		Interests: []string{"climbing", "go"},
	})
	g.dir.addProfile(gate.Profile{
		UserID:    "dave",
		Name:      "Dave",
		Interests: []string{"climbing", "go"},
		Skills:    []string{"designer"},
		Goals:     []string{"ship v1"},
	})
}

// TestDetectedAutoDispatch verifies a high match with a reachable
// contact sends the drafted intro without asking.
func TestDetectedAutoDispatch(t *testing.T) {
	g := newTestGateway(t)
	seedPeople(g)

	status, body := g.do(t, http.MethodPost, "/users/owner1/detected", map[string]any{
		"other_user_id": "bob",
		"context":       map[string]any{"event_name": "GopherCon"},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", status, body)
	}
	if body["action"] != "auto_dispatch" {
		t.Errorf("action = %v, want auto_dispatch", body["action"])
	}
	if body["match_score"] != 1.0 {
		t.Errorf("match_score = %v, want 1", body["match_score"])
	}
	if body["sent"] != true {
		t.Errorf("sent = %v, want true", body["sent"])
	}

	sent := g.dispatch.sentMessages()
	if len(sent) != 1 || sent[0].Recipient != "+15550002" {
		t.Fatalf("sent = %+v, want one message to bob's number", sent)
	}
	if sent[0].Text != g.provider.reply {
		t.Errorf("sent text = %q, want the drafted intro", sent[0].Text)
	}

	kinds := g.dir.loggedKinds()
	if len(kinds) != 1 || kinds[0] != "autonomous_outreach" {
		t.Errorf("logged interactions = %v, want [autonomous_outreach]", kinds)
	}
}

// TestDetectedQueuesApproval verifies a sub-threshold match queues an
// approval carrying a draft instead of sending.
func TestDetectedQueuesApproval(t *testing.T) {
	g := newTestGateway(t)
	seedPeople(g)

	status, body := g.do(t, http.MethodPost, "/users/owner1/detected", map[string]any{
		"other_user_id": "carol",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", status, body)
	}
	if body["action"] != "pending_approval" {
		t.Errorf("action = %v, want pending_approval", body["action"])
	}
	approvalID, _ := body["approval_id"].(string)
	if approvalID == "" {
		t.Fatal("approval_id missing from outcome")
	}
	if len(g.dispatch.sentMessages()) != 0 {
		t.Error("nothing should be dispatched while approval is pending")
	}

	ap, err := g.st.GetApproval(context.Background(), approvalID)
	if err != nil {
		t.Fatalf("GetApproval() error: %v", err)
	}
	if ap.Status != store.ApprovalPending {
		t.Errorf("status = %q, want pending", ap.Status)
	}
	if ap.Draft != g.provider.reply {
		t.Errorf("draft = %q, want the composed intro", ap.Draft)
	}
}

// TestDetectedSkips covers the terminal skip outcomes: unknown contacts
// and matches with no way to reach them.
func TestDetectedSkips(t *testing.T) {
	tests := []struct {
		name      string
		otherID   string
		skipCause string
	}{
		{"unknown contact", "nobody", "no profile found"},
		{"no contact method", "dave", "no contact method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t)
			seedPeople(g)

			status, body := g.do(t, http.MethodPost, "/users/owner1/detected", map[string]any{
				"other_user_id": tt.otherID,
			})
			if status != http.StatusOK {
				t.Fatalf("status = %d, want 200: %v", status, body)
			}
			if body["action"] != "skipped" {
				t.Errorf("action = %v, want skipped", body["action"])
			}
			if body["skip_cause"] != tt.skipCause {
				t.Errorf("skip_cause = %v, want %q", body["skip_cause"], tt.skipCause)
			}
		})
	}
}

// TestDetectedValidation rejects detections without a contact id.
func TestDetectedValidation(t *testing.T) {
	g := newTestGateway(t)

	status, body := g.do(t, http.MethodPost, "/users/owner1/detected", map[string]any{
		"context": map[string]any{},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %v", status, body)
	}
}

// TestDetectedRateLimited verifies the per-user detection cap returns
// 429 once the window is spent.
func TestDetectedRateLimited(t *testing.T) {
	g := newTestGateway(t, func(cfg *config.Config) {
		cfg.Gateway.DetectionRPM = 1
	})
	seedPeople(g)

	status, _ := g.do(t, http.MethodPost, "/users/owner1/detected", map[string]any{
		"other_user_id": "carol",
	})
	if status != http.StatusOK {
		t.Fatalf("first detection status = %d, want 200", status)
	}

	status, body := g.do(t, http.MethodPost, "/users/owner1/detected", map[string]any{
		"other_user_id": "bob",
	})
	if status != http.StatusTooManyRequests {
		t.Fatalf("second detection status = %d, want 429: %v", status, body)
	}
	if body["error"] != "rate limit exceeded" {
		t.Errorf("error = %v, want rate limit exceeded", body["error"])
	}
}

// TestIncomingRepliesAndPersists verifies the out-of-band message
// endpoint runs the reply pipeline and records both sides.
func TestIncomingRepliesAndPersists(t *testing.T) {
	g := newTestGateway(t)

	status, body := g.do(t, http.MethodPost, "/users/owner1/messages/incoming", map[string]any{
		"sender_id": "+15550100",
		"message":   "hey, are you around?",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", status, body)
	}
	if body["response"] != g.provider.reply {
		t.Errorf("response = %v, want the drafted reply", body["response"])
	}
	if body["should_notify_user"] != false {
		t.Errorf("should_notify_user = %v, want false", body["should_notify_user"])
	}

	wantID := registry.ConversationID("owner1", "+15550100")
	if body["conversation_id"] != wantID {
		t.Errorf("conversation_id = %v, want %q", body["conversation_id"], wantID)
	}

	convo, err := g.st.GetConversation(context.Background(), wantID)
	if err != nil {
		t.Fatalf("GetConversation() error: %v", err)
	}
	if len(convo.Messages) != 2 {
		t.Fatalf("stored %d messages, want inbound + reply", len(convo.Messages))
	}
}

// TestIncomingExplicitConversationID verifies a caller-chosen id is
// used as-is.
func TestIncomingExplicitConversationID(t *testing.T) {
	g := newTestGateway(t)

	status, body := g.do(t, http.MethodPost, "/users/owner1/messages/incoming", map[string]any{
		"sender_id":       "+15550100",
		"message":         "hello",
		"conversation_id": "bridge-42",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", status, body)
	}
	if body["conversation_id"] != "bridge-42" {
		t.Errorf("conversation_id = %v, want bridge-42", body["conversation_id"])
	}
	if _, err := g.st.GetConversation(context.Background(), "bridge-42"); err != nil {
		t.Errorf("conversation not stored under explicit id: %v", err)
	}
}

// TestIncomingValidation rejects bodies missing the sender or text.
func TestIncomingValidation(t *testing.T) {
	g := newTestGateway(t)

	status, _ := g.do(t, http.MethodPost, "/users/owner1/messages/incoming", map[string]any{
		"message": "no sender",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

// TestSendMessage covers recipient resolution for the manual send
// endpoint.
func TestSendMessage(t *testing.T) {
	tests := []struct {
		name       string
		recipient  string
		wantStatus int
		wantError  string
	}{
		{"delivered", "bob", http.StatusOK, ""},
		{"unknown recipient", "nobody", http.StatusNotFound, "Recipient not found"},
		{"no phone number", "carol", http.StatusBadRequest, "Recipient has no phone number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t)
			seedPeople(g)

			status, body := g.do(t, http.MethodPost, "/users/owner1/messages/send", map[string]any{
				"recipient_id": tt.recipient,
				"message":      "see you at the meetup",
			})
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %v", status, tt.wantStatus, body)
			}
			if tt.wantError != "" {
				if body["error"] != tt.wantError {
					t.Errorf("error = %v, want %q", body["error"], tt.wantError)
				}
				return
			}
			if body["method"] != "imessage" || body["success"] != true {
				t.Errorf("body = %v, want method=imessage success=true", body)
			}
			sent := g.dispatch.sentMessages()
			if len(sent) != 1 || sent[0].Recipient != "+15550002" {
				t.Errorf("sent = %+v, want one message to bob", sent)
			}
		})
	}
}

// TestSendReportsFailure verifies a relay error surfaces as success
// false, not as an HTTP failure.
func TestSendReportsFailure(t *testing.T) {
	g := newTestGateway(t)
	seedPeople(g)
	g.dispatch.sendErr = errors.New("relay down")

	status, body := g.do(t, http.MethodPost, "/users/owner1/messages/send", map[string]any{
		"recipient_id": "bob",
		"message":      "hello",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", status, body)
	}
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
}

// TestProfileEndpoints covers fetch, missing user, and patch.
func TestProfileEndpoints(t *testing.T) {
	g := newTestGateway(t)
	seedPeople(g)

	status, body := g.do(t, http.MethodGet, "/users/owner1/profile", nil)
	if status != http.StatusOK {
		t.Fatalf("GET status = %d, want 200: %v", status, body)
	}
	if body["name"] != "Alice Chen" {
		t.Errorf("name = %v, want Alice Chen", body["name"])
	}

	status, body = g.do(t, http.MethodGet, "/users/ghost/profile", nil)
	if status != http.StatusNotFound {
		t.Fatalf("GET unknown status = %d, want 404", status)
	}
	if body["error"] != "User not found" {
		t.Errorf("error = %v, want User not found", body["error"])
	}

	status, body = g.do(t, http.MethodPatch, "/users/owner1/profile", map[string]any{
		"bio": "building things",
	})
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("PATCH = %d %v, want 200 success", status, body)
	}
	if g.dir.updates["owner1"]["bio"] != "building things" {
		t.Errorf("update not forwarded to directory: %v", g.dir.updates)
	}
}

// TestPreferencesDefaultWhenMissing verifies an unconfigured user reads
// the default policy instead of a 404.
func TestPreferencesDefaultWhenMissing(t *testing.T) {
	g := newTestGateway(t)

	status, body := g.do(t, http.MethodGet, "/users/owner1/preferences", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", status, body)
	}
	if body["high_match_threshold"] != gate.DefaultHighMatchThreshold {
		t.Errorf("high_match_threshold = %v, want %v", body["high_match_threshold"], gate.DefaultHighMatchThreshold)
	}

	status, body = g.do(t, http.MethodPatch, "/users/owner1/preferences", map[string]any{
		"high_match_threshold": 0.9,
	})
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("PATCH = %d %v, want 200 success", status, body)
	}
}

// TestConversationWindow verifies the limit parameter trims to the most
// recent messages.
func TestConversationWindow(t *testing.T) {
	g := newTestGateway(t)

	id := registry.ConversationID("owner1", "+15550100")
	base := time.Now().UTC()
	for i, text := range []string{"first", "second", "third"} {
		if err := g.st.LogMessage(context.Background(), id, "+15550100", text, false, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("LogMessage() error: %v", err)
		}
	}

	status, body := g.do(t, http.MethodGet, "/users/owner1/conversations/"+id+"?limit=2", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", status, body)
	}
	if body["count"] != 2.0 {
		t.Errorf("count = %v, want 2", body["count"])
	}
	messages, _ := body["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %v, want the last two", body["messages"])
	}
	first := messages[0].(map[string]any)
	if first["text"] != "second" {
		t.Errorf("window starts at %v, want second", first["text"])
	}

	status, _ = g.do(t, http.MethodGet, "/users/owner1/conversations/missing", nil)
	if status != http.StatusNotFound {
		t.Errorf("unknown conversation status = %d, want 404", status)
	}
}
