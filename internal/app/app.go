// Package app drives the landing screen lifecycle: push setup, pending
// navigation replay, and the stale-while-revalidate load.
package app

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/orionwholesale/storefront/internal/landing"
	"github.com/orionwholesale/storefront/internal/push"
	"github.com/orionwholesale/storefront/internal/replay"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("app: already started")

// Lifecycle receives foreground and background transitions.
type Lifecycle interface {
	SetForeground(foreground bool)
}

// Receiver pulls push messages until its context is done. It only delivers
// once the provider is initialized, so Start runs it after the listeners.
type Receiver interface {
	Receive(ctx context.Context) error
}

// Config holds configuration for the App.
type Config struct {
	Push      *push.Bootstrapper
	Listeners *push.Listeners
	Replayer  *replay.Replayer
	Screen    *landing.Screen

	// Lifecycle is told about foreground changes. Optional.
	Lifecycle Lifecycle

	// Receiver is started once push is initialized. Optional.
	Receiver Receiver

	Logger zerolog.Logger
}

// App is the landing screen session.
type App struct {
	push      *push.Bootstrapper
	listeners *push.Listeners
	replayer  *replay.Replayer
	screen    *landing.Screen
	lifecycle Lifecycle
	receiver  Receiver
	logger    zerolog.Logger

	mu            sync.Mutex
	started       bool
	unsubscribe   func()
	stopReceiving context.CancelFunc
	receiving     sync.WaitGroup
}

// New creates a new App.
func New(cfg Config) *App {
	return &App{
		push:      cfg.Push,
		listeners: cfg.Listeners,
		replayer:  cfg.Replayer,
		screen:    cfg.Screen,
		lifecycle: cfg.Lifecycle,
		receiver:  cfg.Receiver,
		logger:    cfg.Logger,
	}
}

// Start runs push initialization, installs the listeners, replays a pending
// navigation, and mounts the landing screen. Push failures are logged and
// never stop the landing load.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	status := a.push.Initialize(ctx)
	a.logger.Info().
		Str("state", string(status.State)).
		Bool("fcm_enabled", status.FCMEnabled).
		Str("reason", status.Reason).
		Msg("push initialized")

	unsubscribe := func() {}
	stopReceiving := func() {}
	if status.Initialized {
		unsubscribe = a.push.InstallListeners(ctx, a.listeners)
		stopReceiving = a.startReceiving(ctx)
		if a.replayer.Check(ctx) {
			a.logger.Info().Msg("pending navigation replayed")
		}
	}

	a.mu.Lock()
	a.unsubscribe = unsubscribe
	a.stopReceiving = stopReceiving
	a.mu.Unlock()

	a.screen.Mount(ctx)
	return nil
}

func (a *App) startReceiving(ctx context.Context) context.CancelFunc {
	if a.receiver == nil {
		return func() {}
	}
	recvCtx, cancel := context.WithCancel(ctx)
	a.receiving.Add(1)
	go func() {
		defer a.receiving.Done()
		if err := a.receiver.Receive(recvCtx); err != nil && recvCtx.Err() == nil {
			a.logger.Warn().Err(err).Msg("push receive loop stopped")
		}
	}()
	return cancel
}

// Foreground drains the pending navigation slot and reports whether a
// navigation was replayed.
func (a *App) Foreground(ctx context.Context) bool {
	if a.lifecycle != nil {
		a.lifecycle.SetForeground(true)
	}
	return a.replayer.Check(ctx)
}

// Background marks the app as backgrounded.
func (a *App) Background() {
	if a.lifecycle != nil {
		a.lifecycle.SetForeground(false)
	}
}

// PushStatus returns the latest push status.
func (a *App) PushStatus() push.Status {
	return a.push.Status()
}

// Screen returns the landing screen.
func (a *App) Screen() *landing.Screen {
	return a.screen
}

// Stop unmounts the screen, stops receiving, removes the listeners, and waits
// for the initial load to settle.
func (a *App) Stop() {
	a.screen.Unmount()

	a.mu.Lock()
	unsubscribe := a.unsubscribe
	stopReceiving := a.stopReceiving
	a.unsubscribe = nil
	a.stopReceiving = nil
	a.mu.Unlock()

	if stopReceiving != nil {
		stopReceiving()
		a.receiving.Wait()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	a.screen.Wait()
}
