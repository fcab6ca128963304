package models

import (
	"github.com/orionwholesale/storefront/internal/push"
)

// Health is the liveness and readiness body.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus summarizes the sync core.
type SystemStatus struct {
	Status    HealthStatus     `json:"status"`
	Time      Timestamp        `json:"time"`
	Push      push.Status      `json:"push"`
	Cache     CacheStatus      `json:"cache"`
	Upstreams []UpstreamStatus `json:"upstreams"`
}

// CacheStatus describes the persisted landing payload.
type CacheStatus struct {
	// Watermark is the stored LAST_REQUEST expiry, if any.
	Watermark *Timestamp `json:"watermark,omitempty"`

	// Expired is true once the watermark has passed or is missing.
	Expired bool `json:"expired"`

	// RefetchRequested mirrors GET_UPDATED_DATA; nil when unset.
	RefetchRequested *bool `json:"refetchRequested,omitempty"`

	HasPayload bool `json:"hasPayload"`
}

// UpstreamStatus is the breaker view of one backend client.
type UpstreamStatus struct {
	Name          string       `json:"name"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	Requests      uint32       `json:"requests"`
	Failures      uint32       `json:"consecutiveFailures"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	LastError     string       `json:"lastError,omitempty"`
}
