// Package handler provides the HTTP handlers of the diagnostics API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/orionwholesale/storefront/internal/api/models"
	"github.com/orionwholesale/storefront/internal/api/response"
	"github.com/orionwholesale/storefront/internal/clock"
	"github.com/orionwholesale/storefront/internal/kvstore"
	"github.com/orionwholesale/storefront/internal/provider/resilience"
	"github.com/orionwholesale/storefront/internal/push"
	"github.com/orionwholesale/storefront/internal/session"
)

// PushStatusSource reports the latest push bootstrap result.
type PushStatusSource interface {
	PushStatus() push.Status
}

// SessionSource exposes the session snapshot.
type SessionSource interface {
	State() session.State
}

// OpsConfig holds the dependencies of OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string
	Store     kvstore.Store
	Session   SessionSource
	Push      PushStatusSource
	Registry  *resilience.Registry
	Clock     clock.Clock
	Logger    zerolog.Logger
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	store     kvstore.Store
	session   SessionSource
	push      PushStatusSource
	registry  *resilience.Registry
	clock     clock.Clock
	logger    zerolog.Logger
	startedAt time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Registry == nil {
		cfg.Registry = resilience.NewRegistry()
	}
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		store:     cfg.Store,
		session:   cfg.Session,
		push:      cfg.Push,
		registry:  cfg.Registry,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		startedAt: cfg.Clock.Now(),
	}
}

// HealthCheck handles GET /v1/ops/health.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(now),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
			"uptime":    now.Sub(h.startedAt).Round(time.Second).String(),
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The client is ready once the
// bootstrap sequence has signalled completion.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.clock.Now()),
	}
	if h.session == nil || !h.session.State().InitComplete {
		health.Status = models.HealthStatusFail
		health.Details = map[string]any{"reason": "bootstrap has not completed"}
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status: push state, the cached payload
// watermark, and the breaker state of every backend client.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()

	cache, err := h.cacheStatus(r.Context(), now)
	if err != nil {
		h.logger.Error().Err(err).Msg("reading cache status")
		response.InternalError(w, r, "failed to read the local cache")
		return
	}

	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(now),
		Cache:     cache,
		Upstreams: []models.UpstreamStatus{},
	}

	if h.push != nil {
		status.Push = h.push.PushStatus()
		if status.Push.State == push.StateFailed {
			status.Status = status.Status.Worse(models.HealthStatusDegraded)
		}
	}

	for _, health := range h.registry.Snapshot() {
		upstream := upstreamStatus(health)
		status.Upstreams = append(status.Upstreams, upstream)
		status.Status = status.Status.Worse(upstream.Status)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) cacheStatus(ctx context.Context, now time.Time) (models.CacheStatus, error) {
	cache := models.CacheStatus{Expired: true}
	if h.store == nil {
		return cache, nil
	}

	var raw string
	found, err := kvstore.GetJSON(ctx, h.store, kvstore.KeyLastRequest, &raw)
	if err != nil {
		return cache, err
	}
	if found {
		if watermark, err := time.Parse(time.RFC3339, raw); err == nil {
			cache.Watermark = models.TimestampPtr(&watermark)
			cache.Expired = now.After(watermark)
		}
	}

	var refetch bool
	found, err = kvstore.GetJSON(ctx, h.store, kvstore.KeyGetUpdatedData, &refetch)
	if err != nil {
		return cache, err
	}
	if found {
		cache.RefetchRequested = &refetch
	}

	_, err = h.store.Get(ctx, kvstore.KeyAPIData)
	switch {
	case err == nil:
		cache.HasPayload = true
	case !errors.Is(err, kvstore.ErrNotFound):
		return cache, err
	}
	return cache, nil
}

func upstreamStatus(health resilience.Health) models.UpstreamStatus {
	status := models.HealthStatusOK
	switch health.CircuitState {
	case gobreaker.StateHalfOpen:
		status = models.HealthStatusDegraded
	case gobreaker.StateOpen:
		status = models.HealthStatusFail
	}
	return models.UpstreamStatus{
		Name:          health.Name,
		Status:        status,
		CircuitState:  health.CircuitState.String(),
		Requests:      health.Counts.Requests,
		Failures:      health.Counts.ConsecutiveFailures,
		LastSuccessAt: models.TimestampPtr(health.LastSuccessAt),
		LastFailureAt: models.TimestampPtr(health.LastFailureAt),
		LastError:     health.LastError,
	}
}
