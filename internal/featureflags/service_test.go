package featureflags_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/orionwholesale/storefront/internal/clock"
	"github.com/orionwholesale/storefront/internal/featureflags"
)

var epoch = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

func newService(repo featureflags.Repository) *featureflags.Service {
	return featureflags.NewService(featureflags.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   time.Minute,
	})
}

func TestService_Defaults(t *testing.T) {
	service := newService(featureflags.NewInMemoryRepository(nil))
	ctx := context.Background()

	if !service.AlwaysRefetchOnLaunch(ctx) {
		t.Error("expected always_refetch_on_launch to default to true")
	}
	if !service.DirectInitialNavigation(ctx) {
		t.Error("expected initial_notification_direct_navigation to default to true")
	}
	if !service.RefreshValidityCheck(ctx) {
		t.Error("expected refresh_validity_check to default to true")
	}
	if service.IsEnabled(ctx, "unknown_flag") {
		t.Error("expected unknown flag to be disabled")
	}
}

func TestService_SetFlags(t *testing.T) {
	service := newService(featureflags.NewInMemoryRepository(nil))
	ctx := context.Background()

	err := service.SetFlags(ctx, featureflags.RefetchFlag.Flags())
	if err != nil {
		t.Fatalf("failed to set flags: %v", err)
	}

	if service.AlwaysRefetchOnLaunch(ctx) {
		t.Error("expected refetch policy \"flag\" to turn always_refetch_on_launch off")
	}
}

func TestService_InvalidateCache(t *testing.T) {
	repo := featureflags.NewInMemoryRepository(nil)
	service := newService(repo)
	ctx := context.Background()

	// Prime the cache.
	_ = service.DirectInitialNavigation(ctx)

	// Write behind the service's back.
	err := repo.SetFlags(ctx, []*featureflags.Flag{
		{Key: featureflags.FlagInitialNotificationDirectNavigation, Value: false},
	})
	if err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	if !service.DirectInitialNavigation(ctx) {
		t.Error("expected cached value before invalidation")
	}

	service.InvalidateCache()

	if service.DirectInitialNavigation(ctx) {
		t.Error("expected repository value after invalidation")
	}
}

func TestService_CacheExpires(t *testing.T) {
	clk := clock.NewFake(epoch)
	repo := featureflags.NewInMemoryRepository(clk)
	service := featureflags.NewService(featureflags.ServiceConfig{
		Repository: repo,
		Clock:      clk,
		Logger:     zerolog.Nop(),
		CacheTTL:   time.Minute,
	})
	ctx := context.Background()

	_ = service.RefreshValidityCheck(ctx)
	err := repo.SetFlags(ctx, []*featureflags.Flag{
		{Key: featureflags.FlagRefreshValidityCheck, Value: false},
	})
	if err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	clk.Advance(30 * time.Second)
	if !service.RefreshValidityCheck(ctx) {
		t.Error("expected cached value inside the TTL")
	}

	clk.Advance(31 * time.Second)
	if service.RefreshValidityCheck(ctx) {
		t.Error("expected repository value once the TTL passed")
	}
}

func TestInMemoryRepository_SetFlags(t *testing.T) {
	clk := clock.NewFake(epoch)
	repo := featureflags.NewInMemoryRepository(clk)
	ctx := context.Background()

	err := repo.SetFlags(ctx, []*featureflags.Flag{{Key: "banner_variant", Value: "b"}})
	if err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}
	flag, err := repo.GetFlag(ctx, "banner_variant")
	if err != nil {
		t.Fatalf("failed to get flag: %v", err)
	}
	if got := flag.StringValue(""); got != "b" {
		t.Errorf("StringValue = %q, want %q", got, "b")
	}
	if !flag.UpdatedAt.Equal(epoch) {
		t.Errorf("UpdatedAt = %v, want %v", flag.UpdatedAt, epoch)
	}

	// A bad entry rejects the whole batch.
	err = repo.SetFlags(ctx, []*featureflags.Flag{
		{Key: "banner_variant", Value: "c"},
		{Key: "", Value: true},
	})
	if !errors.Is(err, featureflags.ErrInvalidFlag) {
		t.Fatalf("expected ErrInvalidFlag, got %v", err)
	}
	flag, _ = repo.GetFlag(ctx, "banner_variant")
	if got := flag.StringValue(""); got != "b" {
		t.Errorf("StringValue after rejected batch = %q, want %q", got, "b")
	}

	if _, err := repo.GetFlag(ctx, "missing"); !errors.Is(err, featureflags.ErrFlagNotFound) {
		t.Errorf("expected ErrFlagNotFound, got %v", err)
	}
}

type failingRepository struct{}

func (failingRepository) GetFlag(context.Context, string) (*featureflags.Flag, error) {
	return nil, errors.New("repository unavailable")
}

func (failingRepository) GetAllFlags(context.Context) (map[string]*featureflags.Flag, error) {
	return nil, errors.New("repository unavailable")
}

func (failingRepository) SetFlags(context.Context, []*featureflags.Flag) error {
	return errors.New("repository unavailable")
}

func TestService_FallbackToDefaults(t *testing.T) {
	service := newService(failingRepository{})
	ctx := context.Background()

	if !service.AlwaysRefetchOnLaunch(ctx) {
		t.Error("expected default when repository fails")
	}

	all := service.GetAllFlags(ctx)
	if len(all) != len(featureflags.DefaultFlags()) {
		t.Errorf("expected %d default flags, got %d", len(featureflags.DefaultFlags()), len(all))
	}
}

func TestFlag_BoolValue(t *testing.T) {
	tests := []struct {
		name     string
		flag     *featureflags.Flag
		fallback bool
		want     bool
	}{
		{"nil flag", nil, true, true},
		{"bool", &featureflags.Flag{Value: false}, true, false},
		{"number", &featureflags.Flag{Value: float64(1)}, false, true},
		{"string", &featureflags.Flag{Value: "true"}, false, true},
		{"garbage string", &featureflags.Flag{Value: "maybe"}, true, true},
		{"wrong type", &featureflags.Flag{Value: []string{}}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.flag.BoolValue(tt.fallback); got != tt.want {
				t.Errorf("BoolValue(%v) = %v, want %v", tt.fallback, got, tt.want)
			}
		})
	}
}

func TestParseRefetchPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    featureflags.RefetchPolicy
		wantErr bool
	}{
		{"", featureflags.RefetchAlways, false},
		{"always", featureflags.RefetchAlways, false},
		{"FLAG", featureflags.RefetchFlag, false},
		{"sometimes", "", true},
	}

	for _, tt := range tests {
		got, err := featureflags.ParseRefetchPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseRefetchPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseRefetchPolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
