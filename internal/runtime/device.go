package runtime

import (
	"context"
	"log/slog"

	"github.com/tjfontaine/launchgate/internal/core/ports"
	"github.com/tjfontaine/launchgate/internal/persistence"
	"github.com/tjfontaine/launchgate/internal/pkg/config"
)

// staticDevice is the device profile of a headless session: identifiers come
// from config, the push token from the vault when one was registered.
type staticDevice struct {
	cfg   config.DeviceConfig
	vault *persistence.Vault
}

var _ ports.DeviceProfile = (*staticDevice)(nil)

func (d *staticDevice) AttributionID() string { return d.cfg.AttributionID }

func (d *staticDevice) Locale() string { return d.cfg.Locale }

func (d *staticDevice) PushToken(ctx context.Context) string {
	if token, err := d.vault.PushToken(ctx); err == nil && token != "" {
		return token
	}
	return d.cfg.PushToken
}

// tokenRegistrar completes push registration by storing the configured token.
type tokenRegistrar struct {
	token  string
	vault  *persistence.Vault
	logger *slog.Logger
}

var _ ports.PushRegistrar = (*tokenRegistrar)(nil)

func (r *tokenRegistrar) Register(ctx context.Context) error {
	if r.token == "" {
		r.logger.Debug("no push token configured, skipping registration")
		return nil
	}
	return r.vault.SavePushToken(ctx, r.token)
}
