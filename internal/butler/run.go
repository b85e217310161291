package butler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/gobutler/internal/directory"
	"github.com/nextlevelbuilder/gobutler/internal/fault"
	"github.com/nextlevelbuilder/gobutler/internal/msglog"
	"github.com/nextlevelbuilder/gobutler/internal/notify"
	"github.com/nextlevelbuilder/gobutler/internal/providers"
	"github.com/nextlevelbuilder/gobutler/internal/store"
	"github.com/nextlevelbuilder/gobutler/pkg/protocol"
)

// fileWatcher is the optional fast-wake capability of a Source.
type fileWatcher interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// Preflight verifies the collaborators the loop cannot run without.
// The dispatch relay and the generation provider are hard requirements;
// a missing directory only costs personalization, so it downgrades to a
// warning.
func (b *Butler) Preflight(ctx context.Context) error {
	if err := b.dispatch.Health(ctx); err != nil {
		b.log.Error("dispatch relay DOWN", "error", err)
		return fault.Fatal("butler.Preflight", fmt.Errorf("dispatch relay unreachable: %w", err))
	}
	b.log.Info("dispatch relay UP")

	if err := providers.Verify(ctx, b.provider); err != nil {
		b.log.Error("generation provider DOWN", "error", err)
		return fault.Fatal("butler.Preflight", err)
	}
	b.log.Info("generation provider UP")

	_, err := b.dir.Profile(ctx, b.cfg.Owner.UserID)
	switch {
	case err == nil || fault.IsNotFound(err):
		b.log.Info("directory UP")
	case errors.Is(err, directory.ErrDisabled):
		b.log.Info("directory not configured, using defaults")
	default:
		b.log.Warn("directory DOWN, continuing with defaults", "error", err)
	}
	return nil
}

// Run watches the message log until ctx is cancelled. The watermark
// starts at the newest existing row, so history present before startup
// is never answered. Returns nil on cancellation; any other return is a
// startup failure.
func (b *Butler) Run(ctx context.Context) error {
	latest, err := b.source.LatestID(ctx)
	if err != nil {
		return fmt.Errorf("butler: read log watermark: %w", err)
	}
	b.watermark.Store(latest)
	b.log.Info("watcher started", "watermark", latest, "interval", b.cfg.Source.Interval())
	b.broadcast(protocol.EventWatcherStarted, map[string]any{"watermark": latest})

	var wake <-chan struct{}
	if b.cfg.Source.Watch {
		if fw, ok := b.source.(fileWatcher); ok {
			wake, err = fw.Watch(ctx)
			if err != nil {
				b.log.Warn("filesystem watch unavailable, polling only", "error", err)
				wake = nil
			}
		}
	}

	ticker := time.NewTicker(b.cfg.Source.Interval())
	defer ticker.Stop()

	for {
		b.poll(ctx)
		select {
		case <-ctx.Done():
			b.broadcast(protocol.EventWatcherStopped, nil)
			b.log.Info("watcher stopped", "watermark", b.watermark.Load())
			return nil
		case <-ticker.C:
		case <-wake:
		}
	}
}

// poll drains everything above the watermark. Each message advances the
// watermark whether or not its reply succeeded: a poison message must
// not be retried forever.
func (b *Butler) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	msgs, err := b.source.Unseen(ctx, b.watermark.Load())
	if err != nil {
		if fault.IsTransient(err) {
			b.log.Warn("message log busy, retrying next cycle", "error", err)
		} else if ctx.Err() == nil {
			b.log.Error("message log read failed", "error", err)
		}
		return
	}
	if len(msgs) == 0 {
		return
	}
	b.log.Info("unseen messages", "count", len(msgs))

	for _, m := range msgs {
		if ctx.Err() != nil {
			return
		}
		b.handle(ctx, m)
		b.watermark.Store(m.ID)
		b.broadcast(protocol.EventWatermarkMoved, map[string]any{"watermark": m.ID})
	}
}

// handle runs one message through the reply pipeline. Messages the
// attendant sent itself come back through the log too; the dispatch
// dedup set recognizes them before any generation happens.
func (b *Butler) handle(ctx context.Context, m msglog.Message) {
	if b.dispatch.Echoed(m.Text) {
		b.log.Debug("own message echoed back, skipping", "id", m.ID, "sender", m.Sender)
		b.broadcast(protocol.EventWatcherEcho, map[string]any{"id": m.ID})
		return
	}

	conversationID := b.reg.GetOrCreate(m.Sender)
	b.log.Info("inbound message",
		"sender", m.Sender,
		"conversation_id", conversationID,
		"preview", notify.Preview(m.Text))

	reply, _, err := b.HandleIncoming(ctx, m.Sender, m.Text, conversationID)
	if err != nil {
		b.log.Error("reply pipeline failed", "sender", m.Sender, "error", err)
		return
	}
	if reply == "" {
		return
	}
	if err := b.dispatch.Send(ctx, m.Sender, reply); err != nil {
		b.log.Error("failed to send reply", "sender", m.Sender, "error", err)
	}
}

// HandleIncoming records an inbound message, drafts a reply and records
// it too. Shared by the poll loop and the gateway's incoming-message
// endpoint so both paths leave the same trail. The reply is returned,
// not sent; delivery is the caller's decision.
//
// Recording the inbound message must succeed before any generation: a
// conversation record with holes is worse than no reply.
func (b *Butler) HandleIncoming(ctx context.Context, senderID, message, conversationID string) (reply string, takeover bool, err error) {
	if err := b.convos.LogMessage(ctx, conversationID, senderID, message, false, time.Now().UTC()); err != nil {
		return "", false, fmt.Errorf("record inbound message: %w", err)
	}
	b.broadcast(protocol.EventMessageInbound, map[string]any{
		"conversation_id": conversationID,
		"sender":          senderID,
		"preview":         notify.Preview(message),
	})

	var history []store.StoredMessage
	if convo, herr := b.convos.GetConversation(ctx, conversationID); herr == nil {
		history = convo.LastMessages(historyDepth)
	}

	reply, takeover, err = b.composer.ComposeReply(ctx, senderID, message, history)
	if err != nil {
		return "", false, err
	}

	if reply != "" {
		if lerr := b.convos.LogMessage(ctx, conversationID, store.AgentSender, reply, true, time.Now().UTC()); lerr != nil {
			// The reply still goes out; the record is just missing a row.
			b.log.Error("failed to record outbound message", "conversation_id", conversationID, "error", lerr)
		}
		b.broadcast(protocol.EventMessageOutbound, map[string]any{
			"conversation_id": conversationID,
			"preview":         notify.Preview(reply),
		})
	}

	if takeover {
		b.broadcast(protocol.EventTakeoverSuggested, map[string]any{
			"conversation_id": conversationID,
			"sender":          senderID,
		})
		if b.notify != nil {
			text := fmt.Sprintf("%s may need you to take over. Latest: %s", senderID, notify.Preview(message))
			if nerr := b.notify.Notify(ctx, text); nerr != nil {
				b.log.Warn("takeover notification failed", "error", nerr)
			}
		}
	}
	return reply, takeover, nil
}
