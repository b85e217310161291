// Package dispatch delivers outbound messages through the local relay and
// remembers what was sent so echoes can be suppressed.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/gobutler/internal/fault"
	"github.com/nextlevelbuilder/gobutler/internal/tracing"
)

const healthTimeout = 5 * time.Second

// Client talks to the relay's small HTTP API. Sends are paced so a burst
// of replies still reads like a human typing.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	dedup   *DedupSet
	log     *slog.Logger
}

// NewClient returns a relay client. minGap is the minimum spacing between
// sends; zero disables pacing.
func NewClient(baseURL string, timeout, minGap time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if minGap > 0 {
		limiter = rate.NewLimiter(rate.Every(minGap), 1)
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		dedup:   NewDedupSet(),
		log:     log,
	}
}

// Dedup exposes the sent-message set for echo checks.
func (c *Client) Dedup() *DedupSet { return c.dedup }

// Echoed reports whether text matches something this process already
// sent, meaning an inbound copy of it is our own message coming back.
func (c *Client) Echoed(text string) bool { return c.dedup.Seen(text) }

type sendRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

type sendResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Send delivers one message. On success the text is remembered for echo
// suppression. Failures are returned to the caller and are not retried
// here: the message log has already moved on.
func (c *Client) Send(ctx context.Context, recipient, text string) error {
	ctx, span := tracing.Tracer().Start(ctx, "dispatch.send")
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("dispatch.Send: %w", err)
	}

	body, err := json.Marshal(sendRequest{Recipient: recipient, Message: text})
	if err != nil {
		return fmt.Errorf("dispatch.Send: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dispatch.Send: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Transient("dispatch.Send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fault.Transient("dispatch.Send", fmt.Errorf("relay returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return fault.Malformed("dispatch.Send", fmt.Errorf("relay returned %d", resp.StatusCode))
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fault.Malformed("dispatch.Send", fmt.Errorf("decode relay response: %w", err))
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = "unspecified failure"
		}
		return fmt.Errorf("dispatch.Send: relay reported failure: %s", out.Error)
	}

	c.dedup.Remember(text)
	c.log.Debug("message dispatched", "recipient", recipient, "chars", len(text))
	return nil
}

// Health checks the relay is up. Used at preflight and by the gateway's
// health report; kept short so a dead relay fails fast.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("dispatch.Health: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Transient("dispatch.Health", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fault.Transient("dispatch.Health", fmt.Errorf("relay returned %d", resp.StatusCode))
	}
	return nil
}
