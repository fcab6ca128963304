package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orionwholesale/storefront/internal/clock"
	"github.com/orionwholesale/storefront/internal/navigation"
)

// DefaultInitialNavigationDelay is how long after launch the initial
// notification's link is navigated to.
const DefaultInitialNavigationDelay = 2000 * time.Millisecond

// PendingSlot persists deep links for replay on the next foreground.
type PendingSlot interface {
	Save(ctx context.Context, link string) error
	ClearIfLink(ctx context.Context, link string) error
}

// DirectNavigationPolicy decides whether the launching notification is
// navigated to directly, in addition to being saved for replay.
type DirectNavigationPolicy interface {
	DirectInitialNavigation(ctx context.Context) bool
}

// ListenersConfig holds configuration for Listeners.
type ListenersConfig struct {
	Provider  Provider
	Log       *NotificationLog
	Slot      PendingSlot
	Navigator navigation.Navigator
	Policy    DirectNavigationPolicy
	Clock     clock.Clock
	Logger    zerolog.Logger

	// InitialDelay delays the direct navigation for the initial notification.
	// Default: 2000ms
	InitialDelay time.Duration
}

// Listeners handles foreground, background, and app-opening messages.
type Listeners struct {
	provider     Provider
	log          *NotificationLog
	slot         PendingSlot
	navigator    navigation.Navigator
	policy       DirectNavigationPolicy
	clock        clock.Clock
	logger       zerolog.Logger
	initialDelay time.Duration

	wg sync.WaitGroup
}

// NewListeners creates Listeners.
func NewListeners(cfg ListenersConfig) *Listeners {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = DefaultInitialNavigationDelay
	}
	return &Listeners{
		provider:     cfg.Provider,
		log:          cfg.Log,
		slot:         cfg.Slot,
		navigator:    cfg.Navigator,
		policy:       cfg.Policy,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		initialDelay: cfg.InitialDelay,
	}
}

// Install registers the foreground and background handlers and processes the
// initial notification. The returned function removes the handlers and
// cancels a scheduled initial navigation.
func (l *Listeners) Install(ctx context.Context) func() {
	unsubscribeForeground := l.provider.OnMessage(l.HandleForeground)
	l.provider.SetBackgroundMessageHandler(l.HandleBackground)

	stop := make(chan struct{})
	l.handleInitial(ctx, stop)

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribeForeground()
			l.provider.SetBackgroundMessageHandler(nil)
			close(stop)
			l.wg.Wait()
		})
	}
}

// HandleForeground logs promotional messages. Links are not acted on while
// the app is in the foreground.
func (l *Listeners) HandleForeground(ctx context.Context, msg RemoteMessage) {
	defer l.recover("foreground")

	l.logger.Debug().Str("message_id", msg.MessageID).Msg("foreground message")
	if msg.Promotional() {
		l.store(ctx, &msg)
	}
}

// HandleBackground logs promotional messages and saves links for replay.
func (l *Listeners) HandleBackground(ctx context.Context, msg RemoteMessage) {
	defer l.recover("background")

	l.logger.Debug().Str("message_id", msg.MessageID).Msg("background message")
	if msg.Promotional() {
		l.store(ctx, &msg)
	}
	if link := msg.Link(); link != "" {
		l.savePending(ctx, link)
	}
}

func (l *Listeners) handleInitial(ctx context.Context, stop <-chan struct{}) {
	defer l.recover("initial")

	msg, err := l.provider.InitialNotification(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("reading initial notification")
		return
	}
	if msg == nil {
		return
	}

	l.logger.Info().Str("message_id", msg.MessageID).Msg("app opened from notification")
	if msg.Promotional() {
		l.store(ctx, msg)
	}

	link := msg.Link()
	if link == "" {
		return
	}
	l.savePending(ctx, link)

	if l.policy != nil && !l.policy.DirectInitialNavigation(ctx) {
		return
	}

	timer := l.clock.After(l.initialDelay)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.recover("initial navigation")

		select {
		case <-timer:
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
		l.navigateInitial(context.WithoutCancel(ctx), link)
	}()
}

func (l *Listeners) navigateInitial(ctx context.Context, link string) {
	target, err := navigation.ParseLink(link)
	if err != nil {
		l.logger.Warn().Err(err).Str("link", link).Msg("initial notification link not navigable")
		return
	}
	if err := l.navigator.Navigate(ctx, target.Route, target.Params); err != nil {
		l.logger.Warn().Err(err).Str("route", target.Route).Msg("initial notification navigation failed")
		return
	}
	// Delivered; the saved copy must not be replayed again.
	if err := l.slot.ClearIfLink(ctx, link); err != nil {
		l.logger.Warn().Err(err).Msg("clearing delivered pending navigation")
	}
}

func (l *Listeners) store(ctx context.Context, msg *RemoteMessage) {
	data := msg.Data
	if data == nil {
		data = map[string]string{}
	}
	if _, err := l.log.Append(ctx, data); err != nil {
		l.logger.Warn().Err(err).Msg("storing notification")
	}
}

func (l *Listeners) savePending(ctx context.Context, link string) {
	if err := l.slot.Save(ctx, link); err != nil {
		l.logger.Warn().Err(err).Str("link", link).Msg("saving pending navigation")
	}
}

func (l *Listeners) recover(handler string) {
	if r := recover(); r != nil {
		l.logger.Error().Str("handler", handler).Str("panic", fmt.Sprint(r)).Msg("push handler panicked")
	}
}
