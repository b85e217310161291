package butler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/gobutler/internal/bus"
	"github.com/nextlevelbuilder/gobutler/internal/config"
	"github.com/nextlevelbuilder/gobutler/internal/providers"
	"github.com/nextlevelbuilder/gobutler/internal/store"
	"github.com/nextlevelbuilder/gobutler/internal/tracing"
	"github.com/nextlevelbuilder/gobutler/pkg/protocol"
)

// summarySystemPrompt pins the summary shape. The model must answer in
// JSON matching store.Summary or the raw text lands in the fallback.
const summarySystemPrompt = `You are a concise assistant. Produce a structured JSON summary of this iMessage conversation. Return ONLY valid JSON with these keys: who (string - who contacted), intent (string - what do they want), requirements (array of strings - specific requirements/asks), urgency (low/medium/high), sentiment (positive/neutral/negative), action_items (array of strings), one_liner (string - 1 sentence summary).`

// summaryMaxTokens caps summary generations below the reply budget;
// a digest never needs the full window.
const summaryMaxTokens = 1024

// Summarizer turns tracked conversations into structured digests for
// the pet surface and stores them back on the conversation.
type Summarizer struct {
	provider providers.Provider
	convos   store.ConversationStore
	bus      *bus.Bus
	gen      config.GenerationConfig
	log      *slog.Logger
}

// NewSummarizer builds a Summarizer.
func NewSummarizer(provider providers.Provider, convos store.ConversationStore, b *bus.Bus, gen config.GenerationConfig, log *slog.Logger) *Summarizer {
	if log == nil {
		log = slog.Default()
	}
	return &Summarizer{provider: provider, convos: convos, bus: b, gen: gen, log: log}
}

// Summarize digests one conversation, persists the result and returns
// it. A model answer that is not the expected JSON still produces a
// summary: the raw text becomes the one-liner and the rest is filled
// with neutral defaults.
func (s *Summarizer) Summarize(ctx context.Context, conversationID string) (*store.Summary, error) {
	ctx, span := tracing.Tracer().Start(ctx, "butler.summarize")
	defer span.End()
	span.SetAttributes(attribute.String("conversation_id", conversationID))

	convo, err := s.convos.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, s.gen.Timeout())
	defer cancel()

	resp, err := s.provider.Chat(genCtx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: "Summarize this conversation:\n\n" + transcript(convo)},
		},
		Model:   s.gen.Model,
		Options: map[string]any{"max_tokens": summaryMaxTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", conversationID, err)
	}

	summary := parseSummary(resp.Content, convo)
	summary.GeneratedAt = time.Now().UTC()
	if summary.Fallback {
		s.log.Warn("summary not parseable, keeping raw text",
			"conversation_id", conversationID)
	}

	if err := s.convos.UpdateSummary(ctx, conversationID, summary); err != nil {
		return nil, err
	}
	if s.bus != nil {
		s.bus.Broadcast(protocol.EventSummaryUpdated, map[string]any{
			"conversation_id": conversationID,
			"one_liner":       summary.OneLiner,
		})
	}
	return summary, nil
}

// SummarizeAll digests every tracked conversation. Conversations that
// already carry a summary are returned as-is without regeneration; a
// conversation that fails to summarize is logged and skipped so one bad
// generation does not sink the batch.
func (s *Summarizer) SummarizeAll(ctx context.Context) (map[string]*store.Summary, error) {
	convos, err := s.convos.ListConversations(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make(map[string]*store.Summary, len(convos))
	for _, convo := range convos {
		if convo.Summary != nil {
			summaries[convo.ConversationID] = convo.Summary
			continue
		}
		summary, err := s.Summarize(ctx, convo.ConversationID)
		if err != nil {
			if ctx.Err() != nil {
				return summaries, ctx.Err()
			}
			s.log.Warn("summarize failed, skipping conversation",
				"conversation_id", convo.ConversationID, "error", err)
			continue
		}
		summaries[convo.ConversationID] = summary
	}
	return summaries, nil
}

// transcript renders the conversation the way the summary prompt
// expects it, one "[sender]: text" line per message.
func transcript(c *store.Conversation) string {
	lines := make([]string, 0, len(c.Messages))
	for _, m := range c.Messages {
		from := m.From
		if from == store.AgentSender {
			from = "AGENT"
		}
		lines = append(lines, fmt.Sprintf("[%s]: %s", from, m.Text))
	}
	return strings.Join(lines, "\n")
}

// parseSummary decodes the model answer, tolerating markdown fences.
// Anything that does not decode to a summary with a one-liner becomes a
// fallback summary carrying the raw text.
func parseSummary(raw string, convo *store.Conversation) *store.Summary {
	text := stripFences(raw)

	var summary store.Summary
	if err := json.Unmarshal([]byte(text), &summary); err == nil && summary.OneLiner != "" {
		return &summary
	}

	return &store.Summary{
		Who:          convo.Sender,
		Intent:       "unknown",
		Requirements: []string{},
		Urgency:      "medium",
		Sentiment:    "neutral",
		ActionItems:  []string{},
		OneLiner:     text,
		Fallback:     true,
	}
}

// stripFences removes a ```json ... ``` wrapper if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
