package butler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/gobutler/internal/config"
	"github.com/nextlevelbuilder/gobutler/internal/directory"
	"github.com/nextlevelbuilder/gobutler/internal/gate"
	"github.com/nextlevelbuilder/gobutler/internal/providers"
	"github.com/nextlevelbuilder/gobutler/internal/store"
	"github.com/nextlevelbuilder/gobutler/internal/tracing"
)

// historyDepth is how many prior messages the reply prompt carries.
const historyDepth = 5

// takeoverPhrase in a drafted reply means the model thinks the owner
// should continue the conversation personally.
const takeoverPhrase = "take over"

// Composer turns conversation state into prompts and prompts into text.
// It is shared by the poll loop (replies), the decision gate
// (introductions) and nothing else.
type Composer struct {
	provider providers.Provider
	dir      directory.Service
	gen      config.GenerationConfig
	owner    config.OwnerConfig
	log      *slog.Logger

	dirWarn sync.Once
}

// NewComposer builds a Composer.
func NewComposer(provider providers.Provider, dir directory.Service, gen config.GenerationConfig, owner config.OwnerConfig, log *slog.Logger) *Composer {
	if log == nil {
		log = slog.Default()
	}
	return &Composer{provider: provider, dir: dir, gen: gen, owner: owner, log: log}
}

// ComposeReply drafts a reply to one inbound message. The returned
// takeover flag is true when the draft suggests the owner should pick
// the thread up personally.
func (c *Composer) ComposeReply(ctx context.Context, sender, message string, history []store.StoredMessage) (reply string, takeover bool, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "butler.reply")
	defer span.End()
	span.SetAttributes(attribute.String("sender", sender))

	profile, prefs := c.ownerContext(ctx)

	historyText := "No prior history"
	if len(history) > 0 {
		if len(history) > historyDepth {
			history = history[len(history)-historyDepth:]
		}
		if data, merr := json.MarshalIndent(history, "", "  "); merr == nil {
			historyText = string(data)
		}
	}

	// The sender is a raw iMessage handle; the directory keys profiles by
	// user ID, not handle, so the prompt names them generically.
	prompt := fmt.Sprintf(`You are replying to an iMessage from someone.

Their message: %q

Conversation history:
%s

Write your reply. Output the reply text only - no analysis, no headers, no bullet points, no markdown. Just the plain message text you would send back.`,
		message, historyText)

	reply, err = c.chat(ctx, c.systemPrompt(profile, prefs.ConversationStyle), prompt, nil)
	if err != nil {
		return "", false, err
	}
	return reply, strings.Contains(strings.ToLower(reply), takeoverPhrase), nil
}

// ComposeIntro drafts a first-contact introduction for a scored pair.
// Implements the decision gate's composer.
func (c *Composer) ComposeIntro(ctx context.Context, req gate.IntroRequest) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "butler.intro")
	defer span.End()
	span.SetAttributes(attribute.Float64("match_score", req.Score))

	style := req.Style
	if style == (gate.ConversationStyle{}) {
		_, prefs := c.ownerContext(ctx)
		style = prefs.ConversationStyle
	}

	otherJSON, err := json.MarshalIndent(req.Other, "", "  ")
	if err != nil {
		return "", fmt.Errorf("composer: encode profile: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `You're reaching out to %s on behalf of %s.

Context:
- You're both at: %s
- Match reason: %s
- Match score: %.0f%%

%s's profile:
%s

Craft a brief, friendly iMessage introduction (2-3 sentences max). Be authentic and mention the specific connection point.`,
		displayName(req.Other), displayName(req.Owner), req.EventName,
		req.Reason, req.Score*100, displayName(req.Other), otherJSON)

	// The directory may hold an introduction template the owner wrote;
	// offer it to the model as raw material, not a constraint.
	if hint := c.introTemplate(ctx, req.Owner.UserID); hint != "" {
		fmt.Fprintf(&sb, "\n\nTemplate to adapt:\n%s", hint)
	}

	return c.chat(ctx, c.systemPrompt(req.Owner, style), sb.String(), nil)
}

// chat runs one provider round trip under the generation timeout.
func (c *Composer) chat(ctx context.Context, system, user string, options map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.gen.Timeout())
	defer cancel()

	resp, err := c.provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Model:   c.gen.Model,
		Options: options,
	})
	if err != nil {
		return "", err
	}
	return sanitizeDraft(resp.Content), nil
}

// systemPrompt frames every generation with who the attendant works for
// and how that person wants to sound.
func (c *Composer) systemPrompt(profile gate.Profile, style gate.ConversationStyle) string {
	assistant := c.owner.AssistantName
	if assistant == "" {
		assistant = "Butler"
	}
	name := profile.Name
	if name == "" {
		name = "User"
	}
	role := profile.Role
	if role == "" {
		role = "professional"
	}
	styleJSON, _ := json.Marshal(style)

	return fmt.Sprintf(`You are %[1]s, an AI networking assistant for %[2]s.

Your primary role is to help %[2]s connect with interesting people at events and build meaningful professional relationships.

About %[2]s:
- Role: %[3]s
- Interests: %[4]s
- Communication style: %[5]s

Your capabilities:
1. Send iMessages and emails on %[2]s's behalf
2. Schedule calendar meetings
3. Calculate compatibility with potential connections
4. Adapt conversation style based on the person you're talking to

Guidelines:
- Be friendly, professional, and authentic
- Match %[2]s's communication style (tone, length, formality)
- When reaching out, mention why you think there's a good connection
- Always prioritize building genuine relationships over forced networking
- For high-match people, you can autonomously reach out
- For lower matches, describe why you want to connect and ask for approval first
- Learn from responses and adapt your approach

When someone responds:
1. Analyze their response tone and style
2. Find common ground or interesting topics
3. Keep the conversation flowing naturally
4. Look for opportunities to suggest meeting in person
5. Ask if %[2]s wants to take over the conversation when appropriate

Remember: You represent %[2]s, so maintain their reputation and authenticity.`,
		assistant, name, role, strings.Join(profile.Interests, ", "), styleJSON)
}

// ownerContext fetches the owner's profile and preferences, degrading
// to zero values and defaults when the directory is away. The warning
// fires once per process, not once per message.
func (c *Composer) ownerContext(ctx context.Context) (gate.Profile, gate.Preferences) {
	profile, perr := c.dir.Profile(ctx, c.owner.UserID)
	prefs, prerr := c.dir.Preferences(ctx, c.owner.UserID)
	if perr != nil || prerr != nil {
		c.dirWarn.Do(func() {
			c.log.Warn("directory unavailable, composing with defaults",
				"profile_error", perr, "preferences_error", prerr)
		})
	}
	if perr != nil {
		profile = gate.Profile{UserID: c.owner.UserID}
	}
	if prerr != nil {
		prefs = gate.DefaultPreferences()
	}
	return profile, prefs
}

func (c *Composer) introTemplate(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	templates, err := c.dir.Templates(ctx, userID)
	if err != nil {
		if !errors.Is(err, directory.ErrDisabled) {
			c.log.Debug("introduction template unavailable", "error", err)
		}
		return ""
	}
	return templates["introduction"]
}

func displayName(p gate.Profile) string {
	if p.Name != "" {
		return p.Name
	}
	if p.UserID != "" {
		return p.UserID
	}
	return "someone"
}
