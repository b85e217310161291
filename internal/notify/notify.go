// Package notify pushes short owner-facing alerts through chat bots.
// Approval requests and takeover suggestions land on whatever the owner
// actually reads; the daemon runs fine with zero notifiers configured.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/mattn/go-runewidth"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/gobutler/internal/config"
)

// previewWidth caps message excerpts in notification text. Measured in
// display cells, not bytes, so CJK text truncates cleanly.
const previewWidth = 120

// Notifier is one push target.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Preview collapses whitespace and truncates a message for use inside
// notification text.
func Preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	return runewidth.Truncate(text, previewWidth, "…")
}

// Telegram pushes notifications to one chat over the Bot API.
type Telegram struct {
	bot    *telego.Bot
	chatID int64
}

// NewTelegram builds the Telegram notifier.
func NewTelegram(cfg config.TelegramNotifyConfig) (*Telegram, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("notify: create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: cfg.ChatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, text string) error {
	if _, err := t.bot.SendMessage(ctx, tu.Message(tu.ID(t.chatID), text)); err != nil {
		return fmt.Errorf("notify: telegram: %w", err)
	}
	return nil
}

// Discord pushes notifications to one channel. The session makes REST
// calls only; no gateway connection is opened.
type Discord struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscord builds the Discord notifier.
func NewDiscord(cfg config.DiscordNotifyConfig) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("notify: create discord session: %w", err)
	}
	return &Discord{session: session, channelID: cfg.ChannelID}, nil
}

func (d *Discord) Notify(ctx context.Context, text string) error {
	if _, err := d.session.ChannelMessageSend(d.channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("notify: discord: %w", err)
	}
	return nil
}

// Fanout delivers to every configured target. Delivery counts as
// successful when at least one target accepts the notification.
type Fanout struct {
	targets []Notifier
	log     *slog.Logger
}

// NewFanout wraps zero or more targets. With no targets, Notify is a
// silent no-op.
func NewFanout(log *slog.Logger, targets ...Notifier) *Fanout {
	return &Fanout{targets: targets, log: log}
}

// FromConfig builds a fanout over every notifier the config enables.
func FromConfig(cfg config.NotifyConfig, log *slog.Logger) (*Fanout, error) {
	var targets []Notifier
	if cfg.Telegram.Enabled() {
		t, err := NewTelegram(cfg.Telegram)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
		log.Info("notify.telegram.enabled", "chat_id", cfg.Telegram.ChatID)
	}
	if cfg.Discord.Enabled() {
		d, err := NewDiscord(cfg.Discord)
		if err != nil {
			return nil, err
		}
		targets = append(targets, d)
		log.Info("notify.discord.enabled", "channel_id", cfg.Discord.ChannelID)
	}
	return NewFanout(log, targets...), nil
}

func (f *Fanout) Notify(ctx context.Context, text string) error {
	if len(f.targets) == 0 {
		return nil
	}
	var errs []error
	for _, t := range f.targets {
		if err := t.Notify(ctx, text); err != nil {
			f.log.Warn("notify.target_failed", "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(f.targets) {
		return errors.Join(errs...)
	}
	return nil
}
