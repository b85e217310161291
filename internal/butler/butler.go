// Package butler runs the attendant itself: watch the message log,
// decide what deserves a reply, draft it, send it, and keep the
// conversation record the desktop pet reads. Everything the loop needs
// is held explicitly on the Butler; there is no package-level state.
package butler

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/nextlevelbuilder/gobutler/internal/bus"
	"github.com/nextlevelbuilder/gobutler/internal/config"
	"github.com/nextlevelbuilder/gobutler/internal/directory"
	"github.com/nextlevelbuilder/gobutler/internal/msglog"
	"github.com/nextlevelbuilder/gobutler/internal/notify"
	"github.com/nextlevelbuilder/gobutler/internal/providers"
	"github.com/nextlevelbuilder/gobutler/internal/registry"
	"github.com/nextlevelbuilder/gobutler/internal/store"
)

// Source yields new rows from the watched message log.
type Source interface {
	LatestID(ctx context.Context) (int64, error)
	Unseen(ctx context.Context, since int64) ([]msglog.Message, error)
}

// Dispatcher delivers outbound texts and remembers what it sent.
type Dispatcher interface {
	Send(ctx context.Context, recipient, text string) error
	Health(ctx context.Context) error
	Echoed(text string) bool
}

// Deps are the collaborators a Butler is built from.
type Deps struct {
	Source    Source
	Dispatch  Dispatcher
	Provider  providers.Provider
	Convos    store.ConversationStore
	Directory directory.Service
	Bus       *bus.Bus
	Notify    notify.Notifier
	Log       *slog.Logger
}

// Butler owns the poll loop and the reply pipeline.
type Butler struct {
	cfg        *config.Config
	log        *slog.Logger
	source     Source
	reg        *registry.Registry
	dispatch   Dispatcher
	provider   providers.Provider
	convos     store.ConversationStore
	dir        directory.Service
	bus        *bus.Bus
	notify     notify.Notifier
	composer   *Composer
	summarizer *Summarizer

	// watermark is the highest message-log id already handled. Only Run
	// writes it; reads may come from any goroutine.
	watermark atomic.Int64
}

// New wires a Butler. Notify may be nil.
func New(cfg *config.Config, d Deps) *Butler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	b := &Butler{
		cfg:      cfg,
		log:      log,
		source:   d.Source,
		reg:      registry.New(cfg.Owner.UserID),
		dispatch: d.Dispatch,
		provider: d.Provider,
		convos:   d.Convos,
		dir:      d.Directory,
		bus:      d.Bus,
		notify:   d.Notify,
	}
	b.composer = NewComposer(d.Provider, d.Directory, cfg.Generation, cfg.Owner, log)
	b.summarizer = NewSummarizer(d.Provider, d.Convos, d.Bus, cfg.Generation, log)
	return b
}

// Composer returns the prompt pipeline, shared with the decision gate.
func (b *Butler) Composer() *Composer { return b.composer }

// Summarizer returns the summary pipeline, shared with the gateway.
func (b *Butler) Summarizer() *Summarizer { return b.summarizer }

// Watermark reports the highest message-log id already handled.
func (b *Butler) Watermark() int64 { return b.watermark.Load() }

func (b *Butler) broadcast(event string, data map[string]any) {
	if b.bus != nil {
		b.bus.Broadcast(event, data)
	}
}
