package butler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Cron refreshes conversation summaries on a schedule, so the pet
// surface stays current even when nobody opens it.
type Cron struct {
	expr       string
	summarizer *Summarizer
	gron       gronx.Gronx
	log        *slog.Logger
}

// NewCron builds the refresh job. The expression is validated up front;
// a bad schedule should fail startup, not the first tick.
func NewCron(expr string, s *Summarizer, log *slog.Logger) (*Cron, error) {
	if log == nil {
		log = slog.Default()
	}
	gron := gronx.New()
	if !gron.IsValid(expr) {
		return nil, fmt.Errorf("invalid summary schedule %q", expr)
	}
	return &Cron{expr: expr, summarizer: s, gron: gron, log: log}, nil
}

// Run checks the schedule once per minute until ctx is cancelled.
func (c *Cron) Run(ctx context.Context) error {
	c.log.Info("summary schedule active", "schedule", c.expr)
	for {
		now := time.Now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Until(next)):
		}

		due, err := c.gron.IsDue(c.expr, next)
		if err != nil {
			c.log.Error("schedule check failed", "error", err)
			continue
		}
		if !due {
			continue
		}

		summaries, err := c.summarizer.SummarizeAll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("scheduled summary refresh failed", "error", err)
			continue
		}
		c.log.Info("scheduled summary refresh done", "conversations", len(summaries))
	}
}
