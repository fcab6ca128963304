package navigation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orionwholesale/storefront/internal/clock"
)

// DefaultDedupeWindow is how long an identical navigation is suppressed.
const DefaultDedupeWindow = 30 * time.Second

// DeduperConfig holds configuration for the Deduper.
type DeduperConfig struct {
	// Next receives navigations that are not duplicates.
	Next Navigator

	// Window is how long an identical navigation is suppressed.
	// Default: 30 seconds
	Window time.Duration

	Clock  clock.Clock
	Logger zerolog.Logger
}

// Deduper drops a navigation when the same route with the same params was
// already performed within the window. Push deep links can arrive through
// both the initial-notification handler and the pending slot; this keeps the
// second delivery from pushing the screen twice.
type Deduper struct {
	next   Navigator
	window time.Duration
	clock  clock.Clock
	logger zerolog.Logger

	mu      sync.Mutex
	lastKey string
	lastAt  time.Time
}

// NewDeduper creates a new Deduper.
func NewDeduper(cfg DeduperConfig) *Deduper {
	window := cfg.Window
	if window == 0 {
		window = DefaultDedupeWindow
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Deduper{
		next:   cfg.Next,
		window: window,
		clock:  clk,
		logger: cfg.Logger,
	}
}

// Navigate forwards to the wrapped navigator unless the call duplicates the
// previous one within the window. The key is claimed before forwarding so a
// concurrent identical call is suppressed; a failed navigation releases it.
func (d *Deduper) Navigate(ctx context.Context, route string, params Params) error {
	key := navigationKey(route, params)
	now := d.clock.Now()

	d.mu.Lock()
	if key == d.lastKey && now.Sub(d.lastAt) <= d.window {
		d.mu.Unlock()
		d.logger.Debug().Str("route", route).Msg("duplicate navigation suppressed")
		return nil
	}
	prevKey, prevAt := d.lastKey, d.lastAt
	d.lastKey = key
	d.lastAt = now
	d.mu.Unlock()

	if err := d.next.Navigate(ctx, route, params); err != nil {
		d.mu.Lock()
		if d.lastKey == key && d.lastAt.Equal(now) {
			d.lastKey = prevKey
			d.lastAt = prevAt
		}
		d.mu.Unlock()
		return err
	}
	return nil
}

func navigationKey(route string, params Params) string {
	// encoding/json sorts map keys, so equal params give equal keys.
	data, err := json.Marshal(params)
	if err != nil {
		return route
	}
	return route + "|" + string(data)
}
