// Package main runs the storefront client: it bootstraps the cache, wires
// push delivery and the landing screen, and serves the diagnostics API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/orionwholesale/storefront/internal/api"
	"github.com/orionwholesale/storefront/internal/api/middleware"
	"github.com/orionwholesale/storefront/internal/app"
	"github.com/orionwholesale/storefront/internal/bootstrap"
	"github.com/orionwholesale/storefront/internal/clock"
	"github.com/orionwholesale/storefront/internal/config"
	"github.com/orionwholesale/storefront/internal/database"
	"github.com/orionwholesale/storefront/internal/device"
	"github.com/orionwholesale/storefront/internal/featureflags"
	"github.com/orionwholesale/storefront/internal/gateway"
	"github.com/orionwholesale/storefront/internal/kvstore"
	"github.com/orionwholesale/storefront/internal/landing"
	"github.com/orionwholesale/storefront/internal/navigation"
	"github.com/orionwholesale/storefront/internal/provider/resilience"
	"github.com/orionwholesale/storefront/internal/push"
	"github.com/orionwholesale/storefront/internal/push/fcm"
	"github.com/orionwholesale/storefront/internal/replay"
	"github.com/orionwholesale/storefront/internal/session"
	"github.com/orionwholesale/storefront/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "storefront"

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log = log.Level(level)

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Server.Env).
		Str("store", cfg.Store.Driver).
		Msg("starting storefront")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("storefront exited")
	}
	log.Info().Msg("storefront stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Server.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	store, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeStore()

	clk := clock.Real()
	sessionStore := session.NewStore(session.State{}, log.With().Str("component", "session").Logger())
	registry := resilience.NewRegistry()

	clientConfig := resilience.DefaultClientConfig(serviceName)
	clientConfig.Timeout = cfg.API.Timeout
	clientConfig.MaxRetries = 0
	clientConfig.Registry = registry

	navigator := navigation.NewDeduper(navigation.DeduperConfig{
		Next:   navigation.NewRecorder(log.With().Str("component", "navigation").Logger()),
		Clock:  clk,
		Logger: log,
	})

	gw, err := gateway.New(gateway.Config{
		BaseURL:     cfg.API.BaseURL,
		AccessToken: cfg.API.AccessToken,
		HTTPClient:  resilience.NewClient(clientConfig),
		Navigator:   navigator,
		Tokens:      sessionStore,
		Logger:      log.With().Str("component", "gateway").Logger(),
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	flags := featureflags.NewService(featureflags.ServiceConfig{Clock: clk, Logger: log})
	if err := flags.SetFlags(ctx, cfg.Policy.Refetch.Flags()); err != nil {
		return fmt.Errorf("seeding feature flags: %w", err)
	}

	devices, err := device.NewService(device.ServiceConfig{
		Store:    store,
		Platform: cfg.Device.Platform,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating device service: %w", err)
	}

	sequencer, err := bootstrap.NewSequencer(bootstrap.SequencerConfig{
		Store:   store,
		Gateway: gw,
		Devices: devices,
		Session: sessionStore,
		Policy:  flags,
		Clock:   clk,
		Logger:  log.With().Str("component", "bootstrap").Logger(),
		Meter:   tp.Meter,
	})
	if err != nil {
		return fmt.Errorf("creating bootstrap sequencer: %w", err)
	}
	outcome := sequencer.Run(ctx)
	log.Info().Str("outcome", string(outcome)).Msg("bootstrap finished")

	var (
		provider  push.Provider
		lifecycle app.Lifecycle
		receiver  app.Receiver
	)
	if cfg.Push.Enabled {
		fcmProvider := newPushProvider(cfg.Push, log)
		defer func() {
			if closeErr := fcmProvider.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close push provider")
			}
		}()
		provider = fcmProvider
		lifecycle = fcmProvider
		if cfg.Push.Subscription != "" {
			receiver = fcmProvider
		} else {
			log.Warn().Msg("PUSH_SUBSCRIPTION not set, push messages will not be received")
		}
	}

	notifications := push.NewNotificationLog(store, clk)
	slot := replay.NewSlot(store, clk)

	loader := landing.NewLoader(landing.LoaderConfig{
		Store:   store,
		Gateway: gw,
		Logger:  log.With().Str("component", "landing").Logger(),
	})

	application := app.New(app.Config{
		Push: push.NewBootstrapper(push.BootstrapperConfig{
			Provider: provider,
			Store:    store,
			Session:  sessionStore,
			Logger:   log.With().Str("component", "push").Logger(),
			Topics:   cfg.Push.Topics,
		}),
		Listeners: push.NewListeners(push.ListenersConfig{
			Provider:  provider,
			Log:       notifications,
			Slot:      slot,
			Navigator: navigator,
			Policy:    flags,
			Clock:     clk,
			Logger:    log.With().Str("component", "push").Logger(),
		}),
		Replayer: replay.NewReplayer(replay.ReplayerConfig{
			Slot:      slot,
			Navigator: navigator,
			Clock:     clk,
			Logger:    log.With().Str("component", "replay").Logger(),
		}),
		Screen: landing.NewScreen(landing.ScreenConfig{
			Source: loader,
			Validator: bootstrap.NewValidator(bootstrap.ValidatorConfig{
				Store:   store,
				Gateway: gw,
				Logger:  log,
			}),
			Policy:   flags,
			Logger:   log.With().Str("component", "landing").Logger(),
			Language: loader.Language,
		}),
		Lifecycle: lifecycle,
		Receiver:  receiver,
		Logger:    log,
	})
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("starting app: %w", err)
	}
	defer application.Stop()

	metrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		return fmt.Errorf("creating http metrics: %w", err)
	}

	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		Metrics:        metrics,
		RequireTLS:     cfg.Server.RequireTLS,
		AdminToken:     cfg.Server.AdminToken,
		App:            application,
		Store:          store,
		Registry:       registry,
		FeatureFlags:   flags,
		Clock:          clk,
		Session:        sessionStore,
		Notifications:  notifications,
		SessionControl: sessionStore,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("diagnostics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// openStore returns the configured cache backend and its cleanup.
func openStore(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (kvstore.Store, func(), error) {
	switch cfg.Driver {
	case config.StoreSQLite:
		store, err := kvstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close sqlite store")
			}
		}, nil

	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		store := kvstore.NewPostgresStore(pool, cfg.Namespace)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrating cache table: %w", err)
		}
		log.Info().Str("namespace", cfg.Namespace).Msg("connected to database")
		return store, pool.Close, nil

	default:
		return kvstore.NewMemoryStore(), func() {}, nil
	}
}

func newPushProvider(cfg config.PushConfig, log zerolog.Logger) *fcm.Provider {
	var initial *push.RemoteMessage
	if cfg.InitialLink != "" {
		initial = &push.RemoteMessage{Data: map[string]string{"link": cfg.InitialLink}}
	}
	return fcm.NewProvider(fcm.Config{
		ProjectID:        cfg.ProjectID,
		CredentialsFile:  cfg.CredentialsFile,
		SubscriptionName: cfg.Subscription,
		DeviceToken:      cfg.DeviceToken,
		InitialMessage:   initial,
		Logger:           log.With().Str("component", "fcm").Logger(),
	})
}
