//go:build tsnet

package cmd

import (
	"context"
	"log/slog"
	"net/http"

	"tailscale.com/tsnet"

	"github.com/nextlevelbuilder/gobutler/internal/config"
)

// initTailscale serves the gateway mux on a tailnet listener so the pet
// can reach the daemon from another machine without opening a public
// port. Returns a cleanup func, or nil when Tailscale is not configured.
func initTailscale(ctx context.Context, cfg *config.Config, handler http.Handler) func() {
	if !cfg.Tailscale.Enabled() {
		return nil
	}

	srv := &tsnet.Server{
		Hostname:  cfg.Tailscale.Hostname,
		Dir:       config.ExpandHome(cfg.Tailscale.StateDir),
		AuthKey:   cfg.Tailscale.AuthKey,
		Ephemeral: cfg.Tailscale.Ephemeral,
	}

	ln, err := srv.Listen("tcp", ":80")
	if err != nil {
		slog.Error("tailscale listen failed", "hostname", cfg.Tailscale.Hostname, "error", err)
		srv.Close()
		return nil
	}
	slog.Info("tailscale listener up", "hostname", cfg.Tailscale.Hostname)

	go func() {
		if err := http.Serve(ln, handler); err != nil {
			slog.Debug("tailscale serve ended", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	return func() { srv.Close() }
}
