package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/gobutler/internal/fault"
)

// TestSendSuccess verifies the request shape and that a delivered message
// is remembered for echo suppression.
func TestSendSuccess(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/send" {
			t.Errorf("relay got %s %s, want POST /send", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(sendResponse{Success: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0, 0, nil)
	if err := c.Send(context.Background(), "+15551234567", "hello there"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if got.Recipient != "+15551234567" {
		t.Errorf("recipient = %q, want +15551234567", got.Recipient)
	}
	if got.Message != "hello there" {
		t.Errorf("message = %q, want %q", got.Message, "hello there")
	}
	if !c.Dedup().Seen("hello there") {
		t.Error("Dedup().Seen() = false after successful send, want true")
	}
}

// TestSendRelayFailure verifies a success=false response surfaces the
// relay's error and does not poison the dedup set.
func TestSendRelayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sendResponse{Success: false, Error: "no such buddy"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0, 0, nil)
	err := c.Send(context.Background(), "+15551234567", "hello")
	if err == nil {
		t.Fatal("Send() returned nil, want error")
	}
	if !strings.Contains(err.Error(), "no such buddy") {
		t.Errorf("Send() error = %q, want it to carry the relay's reason", err)
	}
	if c.Dedup().Seen("hello") {
		t.Error("failed send was remembered in the dedup set")
	}
}

// TestSendServerError verifies a 5xx maps to a transient fault.
func TestSendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0, 0, nil)
	err := c.Send(context.Background(), "+15551234567", "hello")
	if !fault.IsTransient(err) {
		t.Errorf("Send() error kind = %v, want transient", fault.KindOf(err))
	}
}

// TestSendConnectionRefused verifies an unreachable relay is transient.
func TestSendConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, 0, 0, nil)
	err := c.Send(context.Background(), "+15551234567", "hello")
	if !fault.IsTransient(err) {
		t.Errorf("Send() error kind = %v, want transient", fault.KindOf(err))
	}
}

// TestHealth verifies the health probe accepts 200 and rejects the rest.
func TestHealth(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("relay got %s, want /health", r.URL.Path)
		}
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0, 0, nil)
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health() with 200 = %v, want nil", err)
	}

	status = http.StatusServiceUnavailable
	if err := c.Health(context.Background()); err == nil {
		t.Error("Health() with 503 = nil, want error")
	}
}
