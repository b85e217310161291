package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/gobutler/internal/bus"
	"github.com/nextlevelbuilder/gobutler/internal/butler"
	"github.com/nextlevelbuilder/gobutler/internal/config"
	"github.com/nextlevelbuilder/gobutler/internal/directory"
	"github.com/nextlevelbuilder/gobutler/internal/dispatch"
	"github.com/nextlevelbuilder/gobutler/internal/gate"
	"github.com/nextlevelbuilder/gobutler/internal/gateway"
	"github.com/nextlevelbuilder/gobutler/internal/msglog"
	"github.com/nextlevelbuilder/gobutler/internal/notify"
	"github.com/nextlevelbuilder/gobutler/internal/providers"
	"github.com/nextlevelbuilder/gobutler/internal/store"
	"github.com/nextlevelbuilder/gobutler/internal/store/pg"
	"github.com/nextlevelbuilder/gobutler/internal/store/sqlite"
	"github.com/nextlevelbuilder/gobutler/internal/tracing"
	"github.com/nextlevelbuilder/gobutler/pkg/protocol"
)

func runDaemon() {
	applyLogLevel("")

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("config load failed", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", "error", err)
		os.Exit(1)
	}
	applyLogLevel(cfg.Log.Level)
	log := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tel, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Warn("tracing setup failed, continuing without export", "error", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	stores, err := openStores(cfg)
	if err != nil {
		log.Error("store open failed", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	source, err := msglog.Open(config.ExpandHome(cfg.Source.MessagesDB))
	if err != nil {
		log.Error("message log open failed", "path", cfg.Source.MessagesDB, "error", err)
		os.Exit(1)
	}
	defer source.Close()

	dispatchClient := dispatch.NewClient(cfg.Relay.BaseURL, cfg.Relay.Timeout(), cfg.Relay.MinSendGap(), log)

	provider := providers.NewAnthropicProvider(cfg.Generation.APIKey,
		providers.WithAnthropicBaseURL(cfg.Generation.BaseURL),
		providers.WithAnthropicModel(cfg.Generation.Model),
		providers.WithAnthropicMaxTokens(cfg.Generation.MaxTokens),
		providers.WithAnthropicTemperature(cfg.Generation.Temperature),
		providers.WithAnthropicTimeout(cfg.Generation.Timeout()),
	)

	var dir directory.Service = directory.Disabled{}
	if cfg.Directory.Enabled() {
		client, err := directory.Connect(ctx, cfg.Directory, log)
		if err != nil {
			log.Warn("directory connect failed, running without profiles", "error", err)
		} else {
			dir = client
		}
	}
	defer dir.Close()

	notifier, err := notify.FromConfig(cfg.Notify, log)
	if err != nil {
		log.Error("notifier setup failed", "error", err)
		os.Exit(1)
	}

	eventBus := bus.New()

	attendant := butler.New(cfg, butler.Deps{
		Source:    source,
		Dispatch:  dispatchClient,
		Provider:  provider,
		Convos:    stores.Conversations,
		Directory: dir,
		Bus:       eventBus,
		Notify:    notifier,
		Log:       log,
	})

	// Fail on a bad schedule before touching the network.
	var cronJob *butler.Cron
	if cfg.Summaries.Schedule != "" {
		cronJob, err = butler.NewCron(cfg.Summaries.Schedule, attendant.Summarizer(), log)
		if err != nil {
			log.Error("summary schedule invalid", "error", err)
			os.Exit(1)
		}
	}

	decisionGate := gate.New(dir, attendant.Composer(), dispatchClient, stores.Approvals, notifier, eventBus, log)

	server := gateway.NewServer(cfg, gateway.Deps{
		Butler:    attendant,
		Gate:      decisionGate,
		Stores:    stores,
		Directory: dir,
		Dispatch:  dispatchClient,
		Bus:       eventBus,
		Log:       log,
	})

	if err := attendant.Preflight(ctx); err != nil {
		log.Error("preflight failed", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("graceful shutdown initiated", "signal", sig)
		eventBus.Broadcast(protocol.EventShutdown, nil)
		cancel()

		sig = <-sigCh
		log.Warn("forced exit", "signal", sig)
		os.Exit(1)
	}()

	log.Info("gobutler starting",
		"version", Version,
		"owner", cfg.Owner.UserID,
		"store", cfg.Store.Backend,
		"relay", cfg.Relay.BaseURL,
		"gateway", fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
	)

	// Tailscale listener: build the mux first, then pass it to initTailscale
	// so the same routes are served on both the main listener and the tailnet.
	// Compiled via build tags: `go build -tags tsnet` to enable.
	mux := server.BuildMux()
	if tsCleanup := initTailscale(ctx, cfg, mux); tsCleanup != nil {
		defer tsCleanup()
	}
	if cfg.Tailscale.Enabled() && cfg.Gateway.Host == "0.0.0.0" {
		log.Info("tailscale enabled; consider GOBUTLER_HOST=127.0.0.1 for localhost-only + tailnet access")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return attendant.Run(gctx) })
	g.Go(func() error { return server.Start(gctx) })
	if cronJob != nil {
		g.Go(func() error { return cronJob.Run(gctx) })
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error("daemon exited", "error", err)
		os.Exit(1)
	}
	log.Info("gobutler stopped")
}

// applyLogLevel installs the default text logger. The verbose flag
// wins over the configured level.
func applyLogLevel(level string) {
	lv := slog.LevelInfo
	switch {
	case verbose || level == "debug":
		lv = slog.LevelDebug
	case level == "warn":
		lv = slog.LevelWarn
	case level == "error":
		lv = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lv,
	})))
}

// openStores picks the storage engine from config. Both backends serve
// conversations and approvals from the same engine.
func openStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.Store.IsPostgres() {
		st, err := pg.Open(cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &store.Stores{Conversations: st, Approvals: st, Closer: st}, nil
	}
	st, err := sqlite.Open(config.ExpandHome(cfg.Store.SQLitePath))
	if err != nil {
		return nil, err
	}
	return &store.Stores{Conversations: st, Approvals: st, Closer: st}, nil
}
