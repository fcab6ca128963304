// Package featureflags holds the runtime policy switches of the sync core.
package featureflags

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Well-known feature flag keys.
const (
	// FlagAlwaysRefetchOnLaunch makes the bootstrap sequence fetch the init
	// payload on every launch, ignoring a stored refresh flag of false.
	FlagAlwaysRefetchOnLaunch = "always_refetch_on_launch"

	// FlagInitialNotificationDirectNavigation navigates straight to the link of
	// the notification that launched the app, in addition to saving it for replay.
	FlagInitialNotificationDirectNavigation = "initial_notification_direct_navigation"

	// FlagRefreshValidityCheck runs the server cache-validity check before a
	// pull-to-refresh reload.
	FlagRefreshValidityCheck = "refresh_validity_check"
)

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// BoolValue returns the flag value as a boolean.
// Returns the default value if the flag is nil or not a boolean.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		return defaultValue
	default:
		return defaultValue
	}
}

// StringValue returns the flag value as a string.
func (f *Flag) StringValue(defaultValue string) string {
	if f == nil {
		return defaultValue
	}
	if v, ok := f.Value.(string); ok {
		return v
	}
	return defaultValue
}

// DefaultFlags returns the default feature flags.
func DefaultFlags() map[string]*Flag {
	now := time.Now()
	return map[string]*Flag{
		FlagAlwaysRefetchOnLaunch: {
			Key:       FlagAlwaysRefetchOnLaunch,
			Value:     true,
			UpdatedAt: now,
		},
		FlagInitialNotificationDirectNavigation: {
			Key:       FlagInitialNotificationDirectNavigation,
			Value:     true,
			UpdatedAt: now,
		},
		FlagRefreshValidityCheck: {
			Key:       FlagRefreshValidityCheck,
			Value:     true,
			UpdatedAt: now,
		},
	}
}

// RefetchPolicy is the REFETCH_POLICY configuration value.
type RefetchPolicy string

const (
	// RefetchAlways fetches on every launch.
	RefetchAlways RefetchPolicy = "always"

	// RefetchFlag honours the stored GET_UPDATED_DATA flag.
	RefetchFlag RefetchPolicy = "flag"
)

// ParseRefetchPolicy validates a REFETCH_POLICY value. Empty means RefetchAlways.
func ParseRefetchPolicy(s string) (RefetchPolicy, error) {
	switch p := RefetchPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return RefetchAlways, nil
	case RefetchAlways, RefetchFlag:
		return p, nil
	default:
		return "", fmt.Errorf("unknown refetch policy %q", s)
	}
}

// Flags returns the flag overrides implied by the policy.
func (p RefetchPolicy) Flags() []*Flag {
	return []*Flag{{
		Key:   FlagAlwaysRefetchOnLaunch,
		Value: p != RefetchFlag,
	}}
}
