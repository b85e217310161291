package gateway

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/nextlevelbuilder/gobutler/internal/store"
)

func seedApproval(t *testing.T, g *testGateway, id, otherID, draft string) {
	t.Helper()
	err := g.st.CreateApproval(context.Background(), &store.Approval{
		ID:          id,
		UserID:      "owner1",
		OtherUserID: otherID,
		Name:        otherID,
		Reason:      "shared interests: climbing",
		MatchScore:  0.5,
		Draft:       draft,
		Status:      store.ApprovalPending,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateApproval() error: %v", err)
	}
}

// TestApprovalApproveSendsDraft verifies approving dispatches the
// stored draft to the contact's number and logs the interaction.
func TestApprovalApproveSendsDraft(t *testing.T) {
	g := newTestGateway(t)
	seedPeople(g)
	seedApproval(t, g, "ap-1", "bob", "Hi Bob - Alice thought you two should talk.")

	status, body := g.do(t, http.MethodPost, "/approvals/ap-1/approve", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", status, body)
	}
	if body["sent"] != true {
		t.Errorf("sent = %v, want true", body["sent"])
	}
	approval, _ := body["approval"].(map[string]any)
	if approval["status"] != store.ApprovalApproved {
		t.Errorf("approval status = %v, want approved", approval["status"])
	}

	sent := g.dispatch.sentMessages()
	if len(sent) != 1 || sent[0].Recipient != "+15550002" {
		t.Fatalf("sent = %+v, want the draft to bob's number", sent)
	}
	if sent[0].Text != "Hi Bob - Alice thought you two should talk." {
		t.Errorf("sent text = %q, want the stored draft", sent[0].Text)
	}
	if g.provider.calls() != 0 {
		t.Errorf("provider calls = %d, stored draft should not re-generate", g.provider.calls())
	}

	kinds := g.dir.loggedKinds()
	if len(kinds) != 1 || kinds[0] != "approved_outreach" {
		t.Errorf("logged interactions = %v, want [approved_outreach]", kinds)
	}
}

// TestApprovalApproveComposesMissingDraft verifies records without a
// stored draft get one generated at approval time.
func TestApprovalApproveComposesMissingDraft(t *testing.T) {
	g := newTestGateway(t)
	seedPeople(g)
	seedApproval(t, g, "ap-2", "bob", "")

	status, body := g.do(t, http.MethodPost, "/approvals/ap-2/approve", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", status, body)
	}
	if body["sent"] != true {
		t.Errorf("sent = %v, want true", body["sent"])
	}
	if g.provider.calls() != 1 {
		t.Errorf("provider calls = %d, want 1 for the fresh draft", g.provider.calls())
	}
	sent := g.dispatch.sentMessages()
	if len(sent) != 1 || sent[0].Text != g.provider.reply {
		t.Fatalf("sent = %+v, want the generated intro", sent)
	}
}

// TestApprovalApproveUnreachable verifies approving still resolves the
// record when the contact has no number, it just cannot send.
func TestApprovalApproveUnreachable(t *testing.T) {
	g := newTestGateway(t)
	seedPeople(g)
	seedApproval(t, g, "ap-3", "carol", "Hi Carol!")

	status, body := g.do(t, http.MethodPost, "/approvals/ap-3/approve", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", status, body)
	}
	if body["sent"] != false {
		t.Errorf("sent = %v, want false", body["sent"])
	}
	if len(g.dispatch.sentMessages()) != 0 {
		t.Error("nothing should be dispatched without a number")
	}
	if len(g.dir.loggedKinds()) != 0 {
		t.Errorf("interactions = %v, nothing was sent to log", g.dir.loggedKinds())
	}
}

// TestApprovalDeny verifies denying closes the record silently.
func TestApprovalDeny(t *testing.T) {
	g := newTestGateway(t)
	seedPeople(g)
	seedApproval(t, g, "ap-4", "bob", "Hi Bob!")

	status, body := g.do(t, http.MethodPost, "/approvals/ap-4/deny", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", status, body)
	}
	approval, _ := body["approval"].(map[string]any)
	if approval["status"] != store.ApprovalDenied {
		t.Errorf("approval status = %v, want denied", approval["status"])
	}
	if len(g.dispatch.sentMessages()) != 0 {
		t.Error("denying must not dispatch anything")
	}
}

// TestApprovalResolveTwice verifies a second resolution conflicts.
func TestApprovalResolveTwice(t *testing.T) {
	g := newTestGateway(t)
	seedPeople(g)
	seedApproval(t, g, "ap-5", "bob", "Hi Bob!")

	if status, _ := g.do(t, http.MethodPost, "/approvals/ap-5/approve", nil); status != http.StatusOK {
		t.Fatalf("first resolve status = %d, want 200", status)
	}
	status, _ := g.do(t, http.MethodPost, "/approvals/ap-5/deny", nil)
	if status != http.StatusConflict {
		t.Fatalf("second resolve status = %d, want 409", status)
	}
}

// TestApprovalUnknown verifies resolving a nonexistent id is a 404.
func TestApprovalUnknown(t *testing.T) {
	g := newTestGateway(t)

	status, _ := g.do(t, http.MethodPost, "/approvals/ghost/approve", nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

// TestApprovalsList verifies only pending records are listed and the
// status filter rejects anything else.
func TestApprovalsList(t *testing.T) {
	g := newTestGateway(t)
	seedPeople(g)
	seedApproval(t, g, "ap-6", "bob", "Hi Bob!")
	seedApproval(t, g, "ap-7", "carol", "Hi Carol!")
	if _, err := g.st.ResolveApproval(context.Background(), "ap-7", false); err != nil {
		t.Fatalf("ResolveApproval() error: %v", err)
	}

	status, body := g.do(t, http.MethodGet, "/approvals", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", status, body)
	}
	if body["count"] != 1.0 {
		t.Errorf("count = %v, want 1", body["count"])
	}
	approvals, _ := body["approvals"].([]any)
	if len(approvals) != 1 {
		t.Fatalf("approvals = %v, want the single pending record", body["approvals"])
	}
	if first := approvals[0].(map[string]any); first["id"] != "ap-6" {
		t.Errorf("approvals[0].id = %v, want ap-6", first["id"])
	}

	status, body = g.do(t, http.MethodGet, "/approvals?status=denied", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("filtered status = %d, want 400: %v", status, body)
	}
}
