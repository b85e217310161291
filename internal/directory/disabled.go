package directory

import (
	"context"
	"errors"

	"github.com/nextlevelbuilder/gobutler/internal/gate"
)

// ErrDisabled is returned by every lookup when no directory endpoint is
// configured.
var ErrDisabled = errors.New("directory not configured")

// Service is the directory surface the daemon consumes. Client serves
// it over MCP; Disabled serves it when the directory is not configured.
type Service interface {
	Profile(ctx context.Context, userID string) (gate.Profile, error)
	UpdateProfile(ctx context.Context, userID string, updates map[string]any) (gate.Profile, error)
	Preferences(ctx context.Context, userID string) (gate.Preferences, error)
	UpdatePreferences(ctx context.Context, userID string, updates map[string]any) (gate.Preferences, error)
	Templates(ctx context.Context, userID string) (map[string]string, error)
	LogInteraction(ctx context.Context, userID, otherUserID, kind string, detail map[string]any) error
	Close() error
}

var (
	_ Service = (*Client)(nil)
	_ Service = Disabled{}
)

// Disabled stands in when no directory is configured. Every call fails
// with ErrDisabled, which pushes callers onto their degraded paths:
// empty owner profile, built-in default preferences.
type Disabled struct{}

func (Disabled) Profile(context.Context, string) (gate.Profile, error) {
	return gate.Profile{}, ErrDisabled
}

func (Disabled) UpdateProfile(context.Context, string, map[string]any) (gate.Profile, error) {
	return gate.Profile{}, ErrDisabled
}

func (Disabled) Preferences(context.Context, string) (gate.Preferences, error) {
	return gate.Preferences{}, ErrDisabled
}

func (Disabled) UpdatePreferences(context.Context, string, map[string]any) (gate.Preferences, error) {
	return gate.Preferences{}, ErrDisabled
}

func (Disabled) Templates(context.Context, string) (map[string]string, error) {
	return nil, ErrDisabled
}

func (Disabled) LogInteraction(context.Context, string, string, string, map[string]any) error {
	return ErrDisabled
}

func (Disabled) Close() error { return nil }
