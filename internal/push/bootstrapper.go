package push

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/orionwholesale/storefront/internal/kvstore"
	"github.com/orionwholesale/storefront/internal/session"
)

// BootstrapperConfig holds configuration for the Bootstrapper.
type BootstrapperConfig struct {
	// Provider is the push capability. Nil means unavailable.
	Provider Provider

	Store   kvstore.Store
	Session session.Dispatcher
	Logger  zerolog.Logger

	// Topics to subscribe to.
	// Default: [DefaultTopic]
	Topics []string
}

// Bootstrapper runs the push initialization chain:
// permission, then token, then topic subscription, then listeners.
type Bootstrapper struct {
	provider Provider
	store    kvstore.Store
	session  session.Dispatcher
	logger   zerolog.Logger
	topics   []string

	mu     sync.RWMutex
	status Status
}

// NewBootstrapper creates a new Bootstrapper.
func NewBootstrapper(cfg BootstrapperConfig) *Bootstrapper {
	topics := cfg.Topics
	if len(topics) == 0 {
		topics = []string{DefaultTopic}
	}
	return &Bootstrapper{
		provider: cfg.Provider,
		store:    cfg.Store,
		session:  cfg.Session,
		logger:   cfg.Logger,
		topics:   topics,
		status:   Status{State: StateUninitialized},
	}
}

// Status returns the latest status.
func (b *Bootstrapper) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Initialize runs the chain and returns the resulting Status. It never
// fails; a panic in the provider is reported as a Failed status.
func (b *Bootstrapper) Initialize(ctx context.Context) (status Status) {
	b.setState(StateInitializing)

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Msg("push initialization panicked")
			status.Initialized = false
			status.FCMEnabled = false
			status.State = StateFailed
			status.fail(StepInitialize, fmt.Sprint(r))
		}
		b.mu.Lock()
		b.status = status
		b.mu.Unlock()
		b.persist(ctx, status)
	}()

	return b.initialize(ctx)
}

func (b *Bootstrapper) initialize(ctx context.Context) Status {
	var status Status

	if b.provider == nil || !b.provider.Available() {
		b.logger.Info().Msg("push provider unavailable, skipping")
		status.State = StateUnavailable
		status.fail(StepInitialize, ReasonUnavailable)
		return status
	}

	existing, err := b.provider.Initialize(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("push provider initialization failed")
		status.State = StateFailed
		status.fail(StepInitialize, err.Error())
		return status
	}
	status.Initialized = true
	status.State = StateReady
	status.ok(StepInitialize)
	b.logger.Debug().Bool("existing", existing).Msg("push provider initialized")

	granted, err := b.provider.RequestPermission(ctx)
	if err != nil || !granted {
		reason := ReasonPermissionDenied
		if err != nil {
			reason = err.Error()
		}
		b.logger.Info().Str("reason", reason).Msg("push permission not granted")
		status.fail(StepPermission, reason)
		status.skip(StepToken, ReasonNoPermission)
		status.skip(StepSubscribe, ReasonNoPermission)
		return status
	}
	status.PermissionGranted = true
	status.ok(StepPermission)

	token, err := b.token(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("push token unavailable")
		status.fail(StepToken, err.Error())
		status.skip(StepSubscribe, ReasonNoToken)
		return status
	}
	status.State = StateTokenObtained
	status.ok(StepToken)

	var failed []string
	for _, topic := range b.topics {
		if err := b.provider.SubscribeToTopic(ctx, token, topic); err != nil {
			b.logger.Warn().Err(err).Str("topic", topic).Msg("topic subscription failed")
			failed = append(failed, topic)
		}
	}
	if len(failed) > 0 {
		status.fail(StepSubscribe, "subscription failed: "+strings.Join(failed, ","))
		return status
	}
	status.FCMEnabled = true
	status.State = StateSubscribed
	status.ok(StepSubscribe)

	return status
}

// token returns the persisted token, or fetches and persists a new one.
// Either way it is registered with the session.
func (b *Bootstrapper) token(ctx context.Context) (string, error) {
	token, found, err := kvstore.GetString(ctx, b.store, kvstore.KeyFCMToken)
	if err != nil {
		b.logger.Warn().Err(err).Msg("reading cached push token")
	}
	if found {
		b.session.Dispatch(session.StoreFCMToken{Token: token})
		b.logger.Debug().Msg("using existing push token")
		return token, nil
	}

	token, err = b.provider.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching push token: %w", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("fetching push token: %s", ReasonEmptyToken)
	}

	if err := b.store.Set(ctx, kvstore.KeyFCMToken, token); err != nil {
		b.logger.Warn().Err(err).Msg("persisting push token")
	}
	b.session.Dispatch(session.StoreFCMToken{Token: token})
	b.logger.Info().Msg("push token obtained and stored")
	return token, nil
}

// InstallListeners installs l when the status allows it and returns the
// function that removes them. Without initialization or permission the
// listeners are skipped and a no-op is returned.
func (b *Bootstrapper) InstallListeners(ctx context.Context, l *Listeners) func() {
	b.mu.Lock()
	if !b.status.CanListen() {
		reason := ReasonNoPermission
		if !b.status.Initialized {
			reason = ReasonNotInitialized
		}
		b.status.skip(StepListeners, reason)
		b.mu.Unlock()
		b.logger.Info().Str("reason", reason).Msg("skipping push listeners")
		return func() {}
	}
	b.mu.Unlock()

	unsubscribe := l.Install(ctx)

	b.mu.Lock()
	b.status.ok(StepListeners)
	b.status.State = StateListenersInstalled
	b.mu.Unlock()
	return unsubscribe
}

func (b *Bootstrapper) setState(state State) {
	b.mu.Lock()
	b.status = Status{State: state}
	b.mu.Unlock()
}

func (b *Bootstrapper) persist(ctx context.Context, status Status) {
	err := kvstore.SetJSON(ctx, b.store, kvstore.KeyFirebaseInitStatus, persistedStatus{
		Success:    status.Initialized,
		FCMEnabled: status.FCMEnabled,
		Reason:     status.Reason,
	})
	if err != nil {
		b.logger.Warn().Err(err).Msg("persisting push status")
	}
}
