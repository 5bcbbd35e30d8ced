package orchestrator

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/launchgate/internal/core/domain"
)

var (
	errInvalidRecord = errors.New("validation record is not a URL")
	errEmptyTracking = errors.New("tracking data is empty")
)

// initialize starts the session: Started, the launch timeout and the
// restored snapshot.
func (h *Handler) initialize() {
	h.publish(domain.Started{})

	h.timeout.Cancel()
	h.timeout = schedule(h.exec, h.timing.LaunchTimeout, h.onTimeout)

	cfg, err := h.deps.Vault.LoadConfig(h.ctx)
	if err != nil {
		h.logger.Error("failed to load persisted state, starting fresh",
			slog.String("error", err.Error()))
		cfg = domain.RestoredConfig{FirstLaunch: true}
	}
	h.publish(domain.ConfigRestored{Config: cfg})
}

// onTimeout runs on the executor; the lock always wins.
func (h *Handler) onTimeout() {
	if h.deps.State.IsLocked() {
		return
	}
	h.logger.Warn("launch timed out", slog.Duration("timeout", h.timing.LaunchTimeout))
	h.publish(domain.TimedOut{})
}

func (h *Handler) performValidation() {
	if h.deps.State.IsLocked() {
		return
	}
	h.publish(domain.ValidationStarted{})

	fail := func(err error) {
		h.logger.Warn("validation failed", slog.String("error", err.Error()))
		h.publish(domain.ValidationFailed{Reason: err.Error()})
	}

	h.spawn("validate", func(ctx context.Context) func() {
		ctx, span := h.tracer.Start(ctx, "orchestrator.validate")
		defer span.End()

		ok, err := h.deps.Remote.Validate(ctx)
		if err == nil && !ok {
			err = errInvalidRecord
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return func() { fail(err) }
		}
		return func() {
			if h.deps.State.IsLocked() {
				return
			}
			h.publish(domain.ValidationSucceeded{})
			h.afterValidation()
		}
	}, fail)
}

// afterValidation routes organic first launches through the attribution
// fetch and everything else straight to destination resolution.
func (h *Handler) afterValidation() {
	if h.deps.State.ShouldRunOrganicFlow() {
		h.fetchAttribution()
		return
	}
	h.fetchDestination()
}

func (h *Handler) fetchAttribution() {
	if h.deps.State.IsLocked() {
		return
	}
	h.publish(domain.AttributionFetchStarted{})

	var deviceID string
	if h.deps.Device != nil {
		deviceID = h.deps.Device.AttributionID()
	}

	fail := func(err error) {
		h.logger.Warn("attribution fetch failed", slog.String("error", err.Error()))
		h.publish(domain.AttributionFetchFailed{Reason: err.Error()})
	}

	delay := h.timing.OrganicDelay
	h.spawn("fetch_attribution", func(ctx context.Context) func() {
		if err := sleepContext(ctx, delay); err != nil {
			return func() { fail(err) }
		}

		ctx, span := h.tracer.Start(ctx, "orchestrator.fetch_attribution")
		defer span.End()

		data, err := h.deps.Remote.FetchAttribution(ctx, deviceID)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return func() { fail(err) }
		}
		return func() {
			if h.deps.State.IsLocked() {
				return
			}
			merged := domain.FillMissing(data, h.deps.State.Navigation())
			h.publish(domain.AttributionFetchSucceeded{Data: merged})
			h.persist("tracking", func(ctx context.Context) error { return h.deps.Vault.SaveTracking(ctx, merged) })
			h.fetchDestination()
		}
	}, fail)
}

func (h *Handler) fetchDestination() {
	if h.deps.State.IsLocked() {
		return
	}

	fail := func(err error) {
		h.logger.Warn("destination fetch failed", slog.String("error", err.Error()))
		h.publish(domain.DestinationFetchFailed{Reason: err.Error()})
	}

	tracking := h.deps.State.Tracking()
	if len(tracking) == 0 {
		fail(errEmptyTracking)
		return
	}
	h.publish(domain.DestinationFetchStarted{})

	h.spawn("resolve_destination", func(ctx context.Context) func() {
		ctx, span := h.tracer.Start(ctx, "orchestrator.resolve_destination")
		defer span.End()

		url, err := h.deps.Remote.ResolveDestination(ctx, tracking)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return func() { fail(err) }
		}
		return func() { h.lock(url) }
	}, fail)
}

// lock finalizes the session on a resolved destination. Only the first
// resolution of a session wins; later completions are dropped.
func (h *Handler) lock(url string) {
	if h.deps.State.IsLocked() {
		h.logger.Debug("dropping destination resolved after lock", slog.String("url", url))
		return
	}
	h.timeout.Cancel()

	h.publish(domain.DestinationFetchSucceeded{URL: url})
	h.publish(domain.Locked{})
	h.logger.Info("destination locked", slog.String("url", url))

	h.persist("endpoint", func(ctx context.Context) error { return h.deps.Vault.SaveEndpoint(ctx, url) })
	h.persist("mode", func(ctx context.Context) error { return h.deps.Vault.SaveMode(ctx, domain.ModeActive) })
	h.persist("launched", h.deps.Vault.MarkLaunched)
}

func (h *Handler) requestPermission() {
	h.publish(domain.PermissionRequested{})

	prompter := h.deps.Prompter
	if prompter == nil {
		h.logger.Warn("no permission prompter configured, treating as declined")
		h.decline()
		return
	}

	h.spawn("request_permission", func(ctx context.Context) func() {
		granted, err := prompter.RequestAuthorization(ctx)
		if err != nil {
			h.logger.Warn("permission prompt failed", slog.String("error", err.Error()))
		}
		if err == nil && granted {
			return h.approve
		}
		return h.decline
	}, func(error) { h.decline() })
}

func (h *Handler) approve() {
	now := h.now()
	state := domain.PermissionState{Approved: true, LastAsked: &now}
	h.publish(domain.PermissionApproved{At: now})
	h.persist("permissions", func(ctx context.Context) error { return h.deps.Vault.SavePermissions(ctx, state) })

	registrar := h.deps.Registrar
	if registrar == nil {
		return
	}
	h.spawn("register_push", func(ctx context.Context) func() {
		if err := registrar.Register(ctx); err != nil {
			h.logger.Warn("push registration failed", slog.String("error", err.Error()))
		}
		return nil
	}, nil)
}

func (h *Handler) decline() {
	now := h.now()
	state := domain.PermissionState{Declined: true, LastAsked: &now}
	h.publish(domain.PermissionDeclined{At: now})
	h.persist("permissions", func(ctx context.Context) error { return h.deps.Vault.SavePermissions(ctx, state) })
}

func (h *Handler) deferPermission() {
	h.publish(domain.PermissionDeferred{})
	h.persist("permissions", func(ctx context.Context) error {
		return h.deps.Vault.SavePermissions(ctx, domain.PermissionState{})
	})
}
