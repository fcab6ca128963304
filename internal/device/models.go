// Package device resolves the stable identity this install presents to the
// storefront backend.
package device

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPlatform is returned for platforms other than ios and android.
var ErrInvalidPlatform = errors.New("invalid device platform")

// Platform is the host OS family sent as deviceType.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ParsePlatform normalizes and validates a platform name.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PlatformIOS, PlatformAndroid:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPlatform, s)
	}
}

// Identity is the device id plus platform.
type Identity struct {
	ID       string
	Platform Platform
}

// Last4 returns the last 4 characters of the id for log lines.
func (i Identity) Last4() string {
	if len(i.ID) < 4 {
		return i.ID
	}
	return i.ID[len(i.ID)-4:]
}
