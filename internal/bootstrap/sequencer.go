// Package bootstrap runs the launch sequence that refreshes the cached landing
// payload and tells the session that initialization has finished.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/orionwholesale/storefront/internal/clock"
	"github.com/orionwholesale/storefront/internal/device"
	"github.com/orionwholesale/storefront/internal/gateway"
	"github.com/orionwholesale/storefront/internal/kvstore"
	"github.com/orionwholesale/storefront/internal/session"
)

const meterName = "github.com/orionwholesale/storefront/internal/bootstrap"

// Defaults.
const (
	DefaultLanguage     = "en"
	DefaultSettleDelay  = 500 * time.Millisecond
	DefaultWatermarkTTL = 168 * time.Hour
)

// Outcome is the tagged result of one bootstrap run.
type Outcome string

const (
	// OutcomeFetched means the init payload was fetched and persisted.
	OutcomeFetched Outcome = "fetched"

	// OutcomeFetchFailed means a refetch was attempted and failed; nothing was persisted.
	OutcomeFetchFailed Outcome = "fetch_failed"

	// OutcomeSkipped means the stored flag said the cache is current.
	OutcomeSkipped Outcome = "skipped"

	// OutcomePanicked means the sequence aborted unexpectedly.
	OutcomePanicked Outcome = "panicked"
)

// Gateway is the subset of the backend client used during bootstrap.
type Gateway interface {
	FetchJSON(ctx context.Context, endpoint string, query url.Values) (*gateway.Envelope, error)
	PostJSON(ctx context.Context, endpoint string, query url.Values, body any) (*gateway.Envelope, error)
}

// DeviceResolver returns the install's device identity.
type DeviceResolver interface {
	Resolve(ctx context.Context) (device.Identity, error)
}

// Policy decides whether a stored "no refetch" flag is honoured.
type Policy interface {
	AlwaysRefetchOnLaunch(ctx context.Context) bool
}

// SequencerConfig holds configuration for the Sequencer.
type SequencerConfig struct {
	Store   kvstore.Store
	Gateway Gateway
	Devices DeviceResolver
	Session session.Dispatcher
	Policy  Policy
	Clock   clock.Clock
	Logger  zerolog.Logger
	Meter   metric.Meter

	// SettleDelay is how long the skip path waits before signalling.
	// Default: 500ms
	SettleDelay time.Duration

	// WatermarkTTL is added to now to produce LAST_REQUEST.
	// Default: 168h
	WatermarkTTL time.Duration
}

// Sequencer runs the bootstrap sequence.
type Sequencer struct {
	store        kvstore.Store
	gateway      Gateway
	devices      DeviceResolver
	session      session.Dispatcher
	policy       Policy
	clock        clock.Clock
	logger       zerolog.Logger
	settleDelay  time.Duration
	watermarkTTL time.Duration
	runs         metric.Int64Counter
}

// NewSequencer creates a new Sequencer.
func NewSequencer(cfg SequencerConfig) (*Sequencer, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.WatermarkTTL == 0 {
		cfg.WatermarkTTL = DefaultWatermarkTTL
	}
	if cfg.Meter == nil {
		cfg.Meter = otel.Meter(meterName)
	}

	runs, err := cfg.Meter.Int64Counter("storefront.bootstrap.runs",
		metric.WithDescription("Bootstrap sequence runs by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bootstrap counter: %w", err)
	}

	return &Sequencer{
		store:        cfg.Store,
		gateway:      cfg.Gateway,
		devices:      cfg.Devices,
		session:      cfg.Session,
		policy:       cfg.Policy,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		settleDelay:  cfg.SettleDelay,
		watermarkTTL: cfg.WatermarkTTL,
		runs:         runs,
	}, nil
}

// Run executes the sequence. It never fails: every path, including a panic
// in a dependency, ends with exactly one InitComplete dispatch.
func (s *Sequencer) Run(ctx context.Context) (outcome Outcome) {
	var once sync.Once
	signal := func() {
		once.Do(func() { s.session.Dispatch(session.InitComplete{}) })
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("bootstrap sequence panicked")
			outcome = OutcomePanicked
		}
		signal()
		s.runs.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
		s.logger.Info().Str("outcome", string(outcome)).Msg("bootstrap complete")
	}()

	return s.run(ctx, signal)
}

func (s *Sequencer) run(ctx context.Context, signal func()) Outcome {
	language := s.language(ctx)

	identity, err := s.devices.Resolve(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("resolving device id")
		return OutcomeFetchFailed
	}

	if !s.mustRefetch(ctx) {
		select {
		case <-s.clock.After(s.settleDelay):
		case <-ctx.Done():
		}
		return OutcomeSkipped
	}

	env, err := s.gateway.FetchJSON(ctx, gateway.EndpointHomePageInit, url.Values{
		"language":   {language},
		"device_id":  {identity.ID},
		"deviceType": {string(identity.Platform)},
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("fetching init payload")
		return OutcomeFetchFailed
	}

	if err := s.persist(ctx, env); err != nil {
		s.logger.Error().Err(err).Msg("persisting init payload")
		return OutcomeFetchFailed
	}

	s.acknowledge(ctx, identity.ID)
	signal()
	return OutcomeFetched
}

func (s *Sequencer) language(ctx context.Context) string {
	language, found, err := kvstore.GetString(ctx, s.store, kvstore.KeyLanguage)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reading language, using default")
	}
	if !found {
		return DefaultLanguage
	}
	return language
}

// mustRefetch interprets GET_UPDATED_DATA: true or absent forces a fetch, and
// so does an unreadable value. Only a stored false allows skipping, and the
// policy switch can override even that.
func (s *Sequencer) mustRefetch(ctx context.Context) bool {
	var flag bool
	found, err := kvstore.GetJSON(ctx, s.store, kvstore.KeyGetUpdatedData, &flag)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reading refresh flag")
		return true
	}
	if !found || flag {
		return true
	}
	if s.policy != nil && s.policy.AlwaysRefetchOnLaunch(ctx) {
		s.logger.Debug().Msg("refresh flag is false but policy forces refetch")
		return true
	}
	return false
}

// persist writes the payload, the watermark, and the cleared flag, in that
// order, so a watermark never outlives a failed payload write.
func (s *Sequencer) persist(ctx context.Context, env *gateway.Envelope) error {
	data := env.Data
	if !env.HasData() {
		data = json.RawMessage("null")
	}

	if err := s.store.Set(ctx, kvstore.KeyAPIData, string(data)); err != nil {
		return fmt.Errorf("writing %s: %w", kvstore.KeyAPIData, err)
	}
	watermark := s.clock.Now().Add(s.watermarkTTL).Format(time.RFC3339)
	if err := kvstore.SetJSON(ctx, s.store, kvstore.KeyLastRequest, watermark); err != nil {
		return err
	}
	return kvstore.SetJSON(ctx, s.store, kvstore.KeyGetUpdatedData, false)
}

// acknowledge tells the server the cache is current. Failures are ignored.
func (s *Sequencer) acknowledge(ctx context.Context, deviceID string) {
	_, err := s.gateway.PostJSON(ctx, gateway.EndpointSetCacheFalse, url.Values{"device_id": {deviceID}}, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("cache acknowledgement failed")
	}
}
