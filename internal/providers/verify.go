package providers

import (
	"context"
	"fmt"
	"time"
)

const verifyTimeout = 15 * time.Second

// Verify probes the provider with the cheapest possible request: one user
// message capped at a single output token. A nil return means credentials
// and connectivity are good.
func Verify(ctx context.Context, p Provider) error {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	_, err := p.Chat(ctx, ChatRequest{
		Messages: []Message{{Role: "user", Content: "ping"}},
		Options:  map[string]any{"max_tokens": 1},
	})
	if err != nil {
		return fmt.Errorf("provider %s verify: %w", p.Name(), err)
	}
	return nil
}
