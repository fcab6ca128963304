package landing

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/orionwholesale/storefront/internal/gateway"
	"github.com/orionwholesale/storefront/internal/kvstore"
)

// DefaultLanguage is used when no language has been chosen.
const DefaultLanguage = "en"

// Gateway is the subset of the backend client used by the loader.
type Gateway interface {
	FetchJSON(ctx context.Context, endpoint string, query url.Values) (*gateway.Envelope, error)
}

// LoaderConfig holds configuration for the Loader.
type LoaderConfig struct {
	Store   kvstore.Store
	Gateway Gateway
	Logger  zerolog.Logger
}

// Loader reads the cached landing payload and fetches a fresh one.
type Loader struct {
	store   kvstore.Store
	gateway Gateway
	logger  zerolog.Logger
}

// NewLoader creates a new Loader.
func NewLoader(cfg LoaderConfig) *Loader {
	return &Loader{
		store:   cfg.Store,
		gateway: cfg.Gateway,
		logger:  cfg.Logger,
	}
}

// LoadCached returns the payload stored under API_DATA. A missing or
// undecodable entry returns nil without error; only a store failure is an error.
func (l *Loader) LoadCached(ctx context.Context) (Payload, error) {
	raw, err := l.store.Get(ctx, kvstore.KeyAPIData)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cached landing payload: %w", err)
	}

	p, err := ParsePayload([]byte(raw))
	if err != nil {
		l.logger.Debug().Err(err).Msg("cached landing payload unreadable, treating as miss")
		return nil, nil
	}
	return p, nil
}

// LoadFresh fetches the landing payload for language and overwrites the cache
// with it. On failure the cache is left untouched.
func (l *Loader) LoadFresh(ctx context.Context, language string) (Payload, error) {
	if language == "" {
		language = DefaultLanguage
	}

	env, err := l.gateway.FetchJSON(ctx, gateway.EndpointHomePage, url.Values{
		"language":       {language},
		"reactnativeapp": {"1"},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching landing payload: %w", err)
	}

	p, err := ParsePayload(env.Data)
	if err != nil {
		return nil, fmt.Errorf("fetching landing payload: %w: %v", gateway.ErrMalformedResponse, err)
	}

	if err := kvstore.SetString(ctx, l.store, kvstore.KeyAPIData, string(env.Data)); err != nil {
		l.logger.Warn().Err(err).Msg("caching fresh landing payload")
	}
	return p, nil
}

// Language returns the stored language, or DefaultLanguage.
func (l *Loader) Language(ctx context.Context) string {
	language, found, err := kvstore.GetString(ctx, l.store, kvstore.KeyLanguage)
	if err != nil {
		l.logger.Warn().Err(err).Msg("reading language")
	}
	if !found {
		return DefaultLanguage
	}
	return language
}
