package device

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/orionwholesale/storefront/internal/kvstore"
)

// ServiceConfig holds configuration for the device service.
type ServiceConfig struct {
	Store    kvstore.Store
	Platform Platform
	Logger   zerolog.Logger

	// NewID generates ids for fresh installs.
	// Default: uuid.NewString
	NewID func() string
}

// Service provides device identity operations.
type Service struct {
	store    kvstore.Store
	platform Platform
	newID    func() string
	logger   zerolog.Logger
}

// NewService creates a new device service.
func NewService(cfg ServiceConfig) (*Service, error) {
	platform, err := ParsePlatform(string(cfg.Platform))
	if err != nil {
		return nil, err
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Service{
		store:    cfg.Store,
		platform: platform,
		newID:    cfg.NewID,
		logger:   cfg.Logger,
	}, nil
}

// Platform returns the configured platform.
func (s *Service) Platform() Platform {
	return s.platform
}

// Resolve returns the stored device id, generating one on first launch.
// The id is written back on every call.
func (s *Service) Resolve(ctx context.Context) (Identity, error) {
	id, found, err := kvstore.GetString(ctx, s.store, kvstore.KeyDeviceID)
	if err != nil {
		return Identity{}, fmt.Errorf("reading device id: %w", err)
	}
	if !found {
		id = s.newID()
		s.logger.Info().Str("device_id_last4", last4(id)).Msg("generated device id")
	}

	if err := s.store.Set(ctx, kvstore.KeyDeviceID, id); err != nil {
		return Identity{}, fmt.Errorf("persisting device id: %w", err)
	}

	return Identity{ID: id, Platform: s.platform}, nil
}

func last4(id string) string {
	return Identity{ID: id}.Last4()
}
