package featureflags

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orionwholesale/storefront/internal/clock"
)

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Repository Repository
	Clock      clock.Clock
	Logger     zerolog.Logger

	// CacheTTL is how long flags are cached in memory.
	// Default: 1 minute
	CacheTTL time.Duration

	// DefaultFlags are returned when the repository has no value.
	// Default: DefaultFlags()
	DefaultFlags map[string]*Flag
}

// Service provides feature flag evaluation with caching and fallback.
type Service struct {
	repo         Repository
	clock        clock.Clock
	logger       zerolog.Logger
	cacheTTL     time.Duration
	defaultFlags map[string]*Flag

	mu          sync.RWMutex
	cache       map[string]*Flag
	cacheExpiry time.Time
}

// NewService creates a new feature flag service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.DefaultFlags == nil {
		cfg.DefaultFlags = DefaultFlags()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Repository == nil {
		cfg.Repository = NewInMemoryRepository(cfg.Clock)
	}

	return &Service{
		repo:         cfg.Repository,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		cacheTTL:     cfg.CacheTTL,
		defaultFlags: cfg.DefaultFlags,
		cache:        make(map[string]*Flag),
	}
}

// GetFlag retrieves a feature flag by key.
// Uses the cached value if fresh, then the repository, then the defaults.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	if flag := s.getCached(key); flag != nil {
		return flag
	}

	flag, err := s.repo.GetFlag(ctx, key)
	if err == nil {
		s.setCached(flag)
		return flag
	}

	if !errors.Is(err, ErrFlagNotFound) {
		s.logger.Warn().Err(err).Str("flag", key).Msg("failed to get feature flag from repository")
	}

	return s.defaultFlags[key]
}

// GetAllFlags returns repository flags merged over the defaults.
func (s *Service) GetAllFlags(ctx context.Context) map[string]*Flag {
	result := make(map[string]*Flag, len(s.defaultFlags))
	for k, v := range s.defaultFlags {
		result[k] = v
	}

	flags, err := s.repo.GetAllFlags(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to get feature flags from repository, using defaults")
		return result
	}
	for k, v := range flags {
		result[k] = v
	}

	s.mu.Lock()
	s.cache = flags
	s.cacheExpiry = s.clock.Now().Add(s.cacheTTL)
	s.mu.Unlock()

	return result
}

// SetFlags writes flags through to the repository and caches the stored copies.
func (s *Service) SetFlags(ctx context.Context, flags []*Flag) error {
	if err := s.repo.SetFlags(ctx, flags); err != nil {
		return err
	}
	for _, flag := range flags {
		stored, err := s.repo.GetFlag(ctx, flag.Key)
		if err != nil {
			s.logger.Warn().Err(err).Str("flag", flag.Key).Msg("flag missing after write")
			continue
		}
		s.setCached(stored)
	}
	s.logger.Info().Int("count", len(flags)).Msg("feature flags updated")
	return nil
}

// InvalidateCache clears the cached flags.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*Flag)
	s.cacheExpiry = time.Time{}
}

// IsEnabled returns true if the flag with the given key is truthy.
// Unknown flags are off.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	return s.GetFlag(ctx, key).BoolValue(false)
}

// AlwaysRefetchOnLaunch reports whether bootstrap ignores a stored false refresh flag.
func (s *Service) AlwaysRefetchOnLaunch(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagAlwaysRefetchOnLaunch)
}

// DirectInitialNavigation reports whether the launching notification is
// navigated to directly.
func (s *Service) DirectInitialNavigation(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagInitialNotificationDirectNavigation)
}

// RefreshValidityCheck reports whether refresh consults checkCache first.
func (s *Service) RefreshValidityCheck(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagRefreshValidityCheck)
}

func (s *Service) getCached(key string) *Flag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.clock.Now().After(s.cacheExpiry) {
		return nil
	}
	return s.cache[key]
}

func (s *Service) setCached(flag *Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[flag.Key] = flag
	if now := s.clock.Now(); s.cacheExpiry.Before(now) {
		s.cacheExpiry = now.Add(s.cacheTTL)
	}
}
