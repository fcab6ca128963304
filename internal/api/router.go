// Package api provides the diagnostics HTTP API of the storefront client.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/orionwholesale/storefront/internal/api/handler"
	"github.com/orionwholesale/storefront/internal/api/middleware"
	"github.com/orionwholesale/storefront/internal/api/models"
	"github.com/orionwholesale/storefront/internal/api/response"
	"github.com/orionwholesale/storefront/internal/app"
	"github.com/orionwholesale/storefront/internal/clock"
	"github.com/orionwholesale/storefront/internal/featureflags"
	"github.com/orionwholesale/storefront/internal/kvstore"
	"github.com/orionwholesale/storefront/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger

	// Metrics records HTTP instruments. Optional.
	Metrics *middleware.Metrics

	// RequireTLS rejects plain HTTP forwarded by a proxy.
	RequireTLS bool

	// AdminToken guards /v1/admin. Empty disables those endpoints.
	AdminToken string

	App          *app.App
	Store        kvstore.Store
	Registry     *resilience.Registry
	FeatureFlags *featureflags.Service
	Clock        clock.Clock

	// Session reports bootstrap completion for /v1/ops/ready.
	Session handler.SessionSource

	// Notifications is the promotional notification log.
	Notifications handler.NotificationSource

	// SessionControl backs /v1/admin/session. Optional.
	SessionControl handler.SessionControl
}

// NewRouter creates the chi router with every diagnostics route.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Tracing())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.RequireJSON)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, models.NewMethodNotAllowed(middleware.GetRequestID(r.Context()), r.Method+" is not supported here"))
	})

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Store:     cfg.Store,
		Session:   cfg.Session,
		Push:      cfg.App,
		Registry:  cfg.Registry,
		Clock:     cfg.Clock,
		Logger:    cfg.Logger,
	})
	landingHandler := handler.NewLandingHandler(cfg.App.Screen())
	lifecycleHandler := handler.NewLifecycleHandler(cfg.App)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit, cfg.Metrics)
	refreshRateLimit := middleware.RateLimitByIP(middleware.RefreshRateLimit, cfg.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(standardRateLimit).Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/landing", func(r chi.Router) {
			r.With(standardRateLimit).Get("/", landingHandler.GetLanding)
			r.With(refreshRateLimit).Post("/refresh", landingHandler.Refresh)
			r.With(refreshRateLimit).Post("/retry", landingHandler.Retry)
			r.Post("/dismiss-error", landingHandler.DismissError)
		})

		r.Route("/lifecycle", func(r chi.Router) {
			r.Post("/foreground", lifecycleHandler.Foreground)
			r.Post("/background", lifecycleHandler.Background)
		})

		if cfg.Notifications != nil {
			notificationsHandler := handler.NewNotificationsHandler(cfg.Notifications, cfg.Logger)
			r.With(standardRateLimit).Get("/notifications", notificationsHandler.ListNotifications)
		}

		if cfg.FeatureFlags != nil {
			flagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlags)
			r.Route("/admin/feature-flags", func(r chi.Router) {
				r.Use(middleware.RequireAdminToken(cfg.AdminToken))
				r.Use(standardRateLimit)
				r.Get("/", flagsHandler.ListFeatureFlags)
				r.Put("/", flagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", flagsHandler.InvalidateCache)
			})
		}

		if cfg.SessionControl != nil {
			sessionHandler := handler.NewSessionHandler(cfg.SessionControl)
			r.Route("/admin/session", func(r chi.Router) {
				r.Use(middleware.RequireAdminToken(cfg.AdminToken))
				r.Use(standardRateLimit)
				r.Get("/", sessionHandler.GetSession)
				r.Put("/", sessionHandler.SetAuth)
				r.Delete("/", sessionHandler.Logout)
			})
		}
	})

	return r
}
