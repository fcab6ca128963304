package bootstrap

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/orionwholesale/storefront/internal/gateway"
	"github.com/orionwholesale/storefront/internal/kvstore"
)

// ValidatorConfig holds configuration for the Validator.
type ValidatorConfig struct {
	Store   kvstore.Store
	Gateway Gateway
	Logger  zerolog.Logger
}

// Validator asks the server whether the cached landing payload is still valid.
type Validator struct {
	store   kvstore.Store
	gateway Gateway
	logger  zerolog.Logger
}

// NewValidator creates a new Validator.
func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{
		store:   cfg.Store,
		gateway: cfg.Gateway,
		logger:  cfg.Logger,
	}
}

// Check calls checkCache for this device. When the server asks for the cache
// to be cleared, GET_UPDATED_DATA is set to true and API_DATA is removed so the
// next launch refetches. It reports whether the cache was invalidated.
//
// Without a stored device id there is nothing to check and Check is a no-op.
func (v *Validator) Check(ctx context.Context) (bool, error) {
	deviceID, found, err := kvstore.GetString(ctx, v.store, kvstore.KeyDeviceID)
	if err != nil {
		return false, err
	}
	if !found {
		v.logger.Debug().Msg("no device id, skipping cache check")
		return false, nil
	}

	env, err := v.gateway.FetchJSON(ctx, gateway.EndpointCheckCache, url.Values{"device_id": {deviceID}})
	if err != nil {
		return false, fmt.Errorf("checking cache validity: %w", err)
	}
	if !env.ClearCache {
		return false, nil
	}

	if err := kvstore.SetJSON(ctx, v.store, kvstore.KeyGetUpdatedData, true); err != nil {
		return false, err
	}
	if err := v.store.Delete(ctx, kvstore.KeyAPIData); err != nil {
		return false, fmt.Errorf("clearing %s: %w", kvstore.KeyAPIData, err)
	}

	v.logger.Info().Msg("server invalidated landing cache")
	return true, nil
}
