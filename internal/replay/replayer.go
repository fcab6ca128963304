package replay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/orionwholesale/storefront/internal/clock"
	"github.com/orionwholesale/storefront/internal/navigation"
)

// DefaultMaxAge is how long a pending link stays replayable.
const DefaultMaxAge = 5 * time.Minute

// ReplayerConfig holds configuration for the Replayer.
type ReplayerConfig struct {
	Slot      *Slot
	Navigator navigation.Navigator
	Clock     clock.Clock
	Logger    zerolog.Logger

	// MaxAge is the age beyond which an entry is discarded.
	// Default: 5 minutes
	MaxAge time.Duration
}

// Replayer drains the pending slot.
type Replayer struct {
	slot      *Slot
	navigator navigation.Navigator
	clock     clock.Clock
	logger    zerolog.Logger
	maxAge    time.Duration
}

// NewReplayer creates a Replayer.
func NewReplayer(cfg ReplayerConfig) *Replayer {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	return &Replayer{
		slot:      cfg.Slot,
		navigator: cfg.Navigator,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		maxAge:    cfg.MaxAge,
	}
}

// Check replays the pending link if there is a fresh, well-formed one, and
// reports whether a navigation happened. Whenever an entry existed it is
// deleted, so no entry is ever replayed or retried twice.
func (r *Replayer) Check(ctx context.Context) bool {
	p, present, ok, err := r.slot.Load(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("reading pending navigation")
		return false
	}
	if !present {
		return false
	}

	// The entry goes even if the caller gives up mid-replay.
	defer func() {
		if err := r.slot.Clear(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn().Err(err).Msg("clearing pending navigation")
		}
	}()

	if !ok {
		r.logger.Warn().Msg("discarding unreadable pending navigation")
		return false
	}

	age := r.clock.Now().Sub(time.UnixMilli(p.Timestamp))
	if age > r.maxAge {
		r.logger.Debug().Dur("age", age).Str("link", p.Link).Msg("pending navigation expired")
		return false
	}

	target, err := navigation.ParseLink(p.Link)
	if err != nil {
		r.logger.Warn().Err(err).Str("link", p.Link).Msg("discarding pending navigation")
		return false
	}

	if err := r.navigator.Navigate(ctx, target.Route, target.Params); err != nil {
		r.logger.Warn().Err(err).Str("route", target.Route).Msg("replaying pending navigation")
		return false
	}

	r.logger.Info().Str("route", target.Route).Str("link", p.Link).Msg("replayed pending navigation")
	return true
}
