package directory

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/gobutler/internal/config"
	"github.com/nextlevelbuilder/gobutler/internal/fault"
)

// newTestDirectory runs a directory server in-process and returns a
// Client wired to it.
func newTestDirectory(t *testing.T, srv *mcpserver.MCPServer) *Client {
	t.Helper()

	mc, err := mcpclient.NewInProcessClient(srv)
	if err != nil {
		t.Fatalf("NewInProcessClient: %v", err)
	}
	t.Cleanup(func() { _ = mc.Close() })

	ctx := context.Background()
	if err := mc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "gobutler-test", Version: "0"}
	if _, err := mc.Initialize(ctx, initReq); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	return &Client{
		mcp:     mc,
		timeout: 2 * time.Second,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func profileServer(t *testing.T) *mcpserver.MCPServer {
	t.Helper()
	srv := mcpserver.NewMCPServer("directory-test", "0.1.0")
	srv.AddTool(
		mcpgo.NewTool(toolProfileGet, mcpgo.WithString("user_id", mcpgo.Required())),
		func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			switch req.GetString("user_id", "") {
			case "alice":
				return mcpgo.NewToolResultText(`{
					"user_id": "alice", "name": "Alice", "role": "founder",
					"interests": ["go", "coffee"], "looking_for": ["designer"],
					"contact": {"phone": "+15550100"}
				}`), nil
			case "broken":
				return mcpgo.NewToolResultText("not json at all"), nil
			default:
				return mcpgo.NewToolResultError("profile not found"), nil
			}
		},
	)
	return srv
}

// TestProfile fetches a profile through a live in-process MCP server
// and checks the field mapping.
func TestProfile(t *testing.T) {
	c := newTestDirectory(t, profileServer(t))

	p, err := c.Profile(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.UserID != "alice" || p.Name != "Alice" || p.Role != "founder" {
		t.Errorf("profile header = %q/%q/%q", p.UserID, p.Name, p.Role)
	}
	if len(p.Interests) != 2 || p.Interests[0] != "go" {
		t.Errorf("interests = %v", p.Interests)
	}
	if p.Contact.Phone != "+15550100" {
		t.Errorf("phone = %q", p.Contact.Phone)
	}
}

// TestProfileNotFound maps the directory's "not found" tool error to a
// not-found fault.
func TestProfileNotFound(t *testing.T) {
	c := newTestDirectory(t, profileServer(t))

	_, err := c.Profile(context.Background(), "nobody")
	if !fault.IsNotFound(err) {
		t.Fatalf("err = %v, want not-found fault", err)
	}
}

// TestProfileMalformed flags non-JSON payloads instead of returning a
// zero profile silently.
func TestProfileMalformed(t *testing.T) {
	c := newTestDirectory(t, profileServer(t))

	_, err := c.Profile(context.Background(), "broken")
	if !fault.IsMalformed(err) {
		t.Fatalf("err = %v, want malformed fault", err)
	}
}

// TestPreferencesAndLog exercises preferences_get and interaction_log
// against the in-process server.
func TestPreferencesAndLog(t *testing.T) {
	var logged map[string]any
	srv := mcpserver.NewMCPServer("directory-test", "0.1.0")
	srv.AddTool(
		mcpgo.NewTool(toolPreferencesGet, mcpgo.WithString("user_id", mcpgo.Required())),
		func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			return mcpgo.NewToolResultText(`{
				"permissions": {"send_message": "always_auto"},
				"high_match_threshold": 0.6
			}`), nil
		},
	)
	srv.AddTool(
		mcpgo.NewTool(toolInteractionLog, mcpgo.WithString("user_id", mcpgo.Required())),
		func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			logged = req.GetArguments()
			return mcpgo.NewToolResultText("ok"), nil
		},
	)
	c := newTestDirectory(t, srv)

	prefs, err := c.Preferences(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Preferences: %v", err)
	}
	if prefs.Threshold() != 0.6 {
		t.Errorf("threshold = %v, want 0.6", prefs.Threshold())
	}

	err = c.LogInteraction(context.Background(), "alice", "bob", "autonomous_outreach", map[string]any{"match_score": 0.8})
	if err != nil {
		t.Fatalf("LogInteraction: %v", err)
	}
	if logged["interaction_type"] != "autonomous_outreach" || logged["other_user_id"] != "bob" {
		t.Errorf("logged arguments = %v", logged)
	}
}

// TestDisabled checks the stub errors every call with ErrDisabled.
func TestDisabled(t *testing.T) {
	d := Disabled{}
	ctx := context.Background()

	if _, err := d.Profile(ctx, "x"); err != ErrDisabled {
		t.Errorf("Profile err = %v", err)
	}
	if _, err := d.Preferences(ctx, "x"); err != ErrDisabled {
		t.Errorf("Preferences err = %v", err)
	}
	if err := d.LogInteraction(ctx, "x", "y", "z", nil); err != ErrDisabled {
		t.Errorf("LogInteraction err = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close err = %v", err)
	}
}

// TestTransportName defaults to streamable-http when unset.
func TestTransportName(t *testing.T) {
	if got := transportName(config.DirectoryConfig{}); got != "streamable-http" {
		t.Errorf("default transport = %q", got)
	}
	if got := transportName(config.DirectoryConfig{Transport: "stdio"}); got != "stdio" {
		t.Errorf("explicit transport = %q", got)
	}
}

// TestMapToEnvSlice converts an env map to KEY=VALUE form.
func TestMapToEnvSlice(t *testing.T) {
	if got := mapToEnvSlice(nil); got != nil {
		t.Errorf("nil map = %v", got)
	}
	got := mapToEnvSlice(map[string]string{"A": "1"})
	if len(got) != 1 || got[0] != "A=1" {
		t.Errorf("got %v", got)
	}
}
