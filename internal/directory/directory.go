// Package directory talks to the profile directory over MCP. The
// directory owns user profiles, conversation preferences, message
// templates and the interaction log; the attendant is one of its
// clients and keeps working in a degraded mode when it is away.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/gobutler/internal/config"
	"github.com/nextlevelbuilder/gobutler/internal/fault"
	"github.com/nextlevelbuilder/gobutler/internal/gate"
	"github.com/nextlevelbuilder/gobutler/internal/tracing"
)

// Tool names the directory server exposes.
const (
	toolProfileGet        = "profile_get"
	toolProfileUpdate     = "profile_update"
	toolPreferencesGet    = "preferences_get"
	toolPreferencesUpdate = "preferences_update"
	toolTemplatesGet      = "templates_get"
	toolInteractionLog    = "interaction_log"
)

var requiredTools = []string{
	toolProfileGet, toolProfileUpdate,
	toolPreferencesGet, toolPreferencesUpdate,
	toolTemplatesGet, toolInteractionLog,
}

// Client is an MCP client bound to one directory server.
type Client struct {
	mcp     *mcpclient.Client
	timeout time.Duration
	log     *slog.Logger
}

// Connect creates the transport, runs the MCP handshake and verifies
// the directory advertises the tools the attendant relies on. Missing
// tools are logged, not fatal: a partial directory still serves the
// lookups it knows.
func Connect(ctx context.Context, cfg config.DirectoryConfig, log *slog.Logger) (*Client, error) {
	mc, err := newMCPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("directory: create client: %w", err)
	}

	// SSE and streamable-http need an explicit Start; stdio auto-starts.
	if transportName(cfg) != "stdio" {
		if err := mc.Start(ctx); err != nil {
			_ = mc.Close()
			return nil, fmt.Errorf("directory: start transport: %w", err)
		}
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    "gobutler",
		Version: "1.0.0",
	}
	if _, err := mc.Initialize(ctx, initReq); err != nil {
		_ = mc.Close()
		return nil, fmt.Errorf("directory: initialize: %w", err)
	}

	c := &Client{mcp: mc, timeout: cfg.Timeout(), log: log}
	c.checkTools(ctx)

	log.Info("directory.connected", "transport", transportName(cfg))
	return c, nil
}

// Close shuts the transport down.
func (c *Client) Close() error {
	return c.mcp.Close()
}

// Profile fetches one user's profile.
func (c *Client) Profile(ctx context.Context, userID string) (gate.Profile, error) {
	m, err := c.callMap(ctx, toolProfileGet, map[string]any{"user_id": userID})
	if err != nil {
		return gate.Profile{}, err
	}
	return gate.ProfileFromMap(m), nil
}

// UpdateProfile applies a partial update and returns the stored result.
func (c *Client) UpdateProfile(ctx context.Context, userID string, updates map[string]any) (gate.Profile, error) {
	m, err := c.callMap(ctx, toolProfileUpdate, map[string]any{
		"user_id": userID,
		"updates": updates,
	})
	if err != nil {
		return gate.Profile{}, err
	}
	return gate.ProfileFromMap(m), nil
}

// Preferences fetches one user's autonomy preferences.
func (c *Client) Preferences(ctx context.Context, userID string) (gate.Preferences, error) {
	m, err := c.callMap(ctx, toolPreferencesGet, map[string]any{"user_id": userID})
	if err != nil {
		return gate.Preferences{}, err
	}
	return gate.PreferencesFromMap(m), nil
}

// UpdatePreferences applies a partial update and returns the stored result.
func (c *Client) UpdatePreferences(ctx context.Context, userID string, updates map[string]any) (gate.Preferences, error) {
	m, err := c.callMap(ctx, toolPreferencesUpdate, map[string]any{
		"user_id": userID,
		"updates": updates,
	})
	if err != nil {
		return gate.Preferences{}, err
	}
	return gate.PreferencesFromMap(m), nil
}

// Templates fetches the user's message templates, keyed by template name.
func (c *Client) Templates(ctx context.Context, userID string) (map[string]string, error) {
	text, err := c.call(ctx, toolTemplatesGet, map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fault.Malformed("directory."+toolTemplatesGet, err)
	}
	return out, nil
}

// LogInteraction records one interaction between two users.
func (c *Client) LogInteraction(ctx context.Context, userID, otherUserID, kind string, detail map[string]any) error {
	_, err := c.call(ctx, toolInteractionLog, map[string]any{
		"user_id":          userID,
		"other_user_id":    otherUserID,
		"interaction_type": kind,
		"details":          detail,
	})
	return err
}

// call invokes one directory tool and returns its text payload.
// Transport failures come back transient so callers can degrade;
// a "not found" result from the directory maps to a not-found fault.
func (c *Client) call(ctx context.Context, tool string, args map[string]any) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "directory."+tool)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	res, err := c.mcp.CallTool(ctx, req)
	if err != nil {
		return "", fault.Transient("directory."+tool, err)
	}

	text := textContent(res)
	if res.IsError {
		if strings.Contains(strings.ToLower(text), "not found") {
			return "", fault.NotFound("directory."+tool, errors.New(text))
		}
		return "", fmt.Errorf("directory.%s: %s", tool, text)
	}
	return text, nil
}

func (c *Client) callMap(ctx context.Context, tool string, args map[string]any) (map[string]any, error) {
	text, err := c.call(ctx, tool, args)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, fault.Malformed("directory."+tool, err)
	}
	return m, nil
}

func (c *Client) checkTools(ctx context.Context) {
	res, err := c.mcp.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		c.log.Warn("directory.tools.list_failed", "error", err)
		return
	}
	have := make(map[string]bool, len(res.Tools))
	for _, t := range res.Tools {
		have[t.Name] = true
	}
	for _, name := range requiredTools {
		if !have[name] {
			c.log.Warn("directory.tools.missing", "tool", name)
		}
	}
}

func newMCPClient(cfg config.DirectoryConfig) (*mcpclient.Client, error) {
	switch transportName(cfg) {
	case "stdio":
		return mcpclient.NewStdioMCPClient(cfg.Command, mapToEnvSlice(cfg.Env), cfg.Args...)

	case "sse":
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, mcpclient.WithHeaders(cfg.Headers))
		}
		return mcpclient.NewSSEMCPClient(cfg.URL, opts...)

	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		return mcpclient.NewStreamableHttpClient(cfg.URL, opts...)

	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

func transportName(cfg config.DirectoryConfig) string {
	if cfg.Transport == "" {
		return "streamable-http"
	}
	return cfg.Transport
}

func textContent(res *mcpgo.CallToolResult) string {
	var sb strings.Builder
	for _, content := range res.Content {
		if tc, ok := mcpgo.AsTextContent(content); ok {
			sb.WriteString(tc.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func mapToEnvSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	s := make([]string, 0, len(env))
	for k, v := range env {
		s = append(s, k+"="+v)
	}
	return s
}
