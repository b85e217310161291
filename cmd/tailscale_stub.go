//go:build !tsnet

package cmd

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/gobutler/internal/config"
)

// initTailscale is a no-op in builds without the tsnet tag.
func initTailscale(_ context.Context, cfg *config.Config, _ http.Handler) func() {
	if cfg.Tailscale.Enabled() {
		slog.Warn("tailscale configured but this build lacks tsnet support (rebuild with -tags tsnet)")
	}
	return nil
}
