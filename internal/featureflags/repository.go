package featureflags

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/orionwholesale/storefront/internal/clock"
)

var (
	// ErrFlagNotFound is returned when a feature flag is not found.
	ErrFlagNotFound = errors.New("feature flag not found")

	// ErrInvalidFlag is returned for a flag without a key or value.
	ErrInvalidFlag = errors.New("invalid feature flag")
)

// Repository defines the interface for feature flag storage.
type Repository interface {
	// GetFlag retrieves a single feature flag by key.
	GetFlag(ctx context.Context, key string) (*Flag, error)

	// GetAllFlags retrieves all feature flags.
	GetAllFlags(ctx context.Context) (map[string]*Flag, error)

	// SetFlags creates or updates flags. Either every flag is applied or none is.
	SetFlags(ctx context.Context, flags []*Flag) error
}

// InMemoryRepository holds the process-wide switches. It starts from
// DefaultFlags; the binary applies REFETCH_POLICY on top and the admin
// endpoints may override at runtime.
type InMemoryRepository struct {
	clock clock.Clock

	mu    sync.RWMutex
	flags map[string]Flag
}

// NewInMemoryRepository creates a repository seeded with the default flags.
// A nil clock uses the wall clock.
func NewInMemoryRepository(clk clock.Clock) *InMemoryRepository {
	if clk == nil {
		clk = clock.Real()
	}
	seeded := make(map[string]Flag)
	for key, flag := range DefaultFlags() {
		seeded[key] = *flag
	}
	return &InMemoryRepository{clock: clk, flags: seeded}
}

// GetFlag returns a copy of the flag stored under key.
func (r *InMemoryRepository) GetFlag(_ context.Context, key string) (*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flag, ok := r.flags[key]
	if !ok {
		return nil, ErrFlagNotFound
	}
	return &flag, nil
}

// GetAllFlags returns copies of every stored flag.
func (r *InMemoryRepository) GetAllFlags(_ context.Context) (map[string]*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Flag, len(r.flags))
	for key, flag := range r.flags {
		copied := flag
		result[key] = &copied
	}
	return result, nil
}

// SetFlags stamps and stores flags after validating the whole batch.
func (r *InMemoryRepository) SetFlags(_ context.Context, flags []*Flag) error {
	for i, flag := range flags {
		if flag == nil || flag.Key == "" || flag.Value == nil {
			return fmt.Errorf("%w: entry %d", ErrInvalidFlag, i)
		}
	}

	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, flag := range flags {
		r.flags[flag.Key] = Flag{Key: flag.Key, Value: flag.Value, UpdatedAt: now}
	}
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
