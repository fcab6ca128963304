package models

import (
	"github.com/orionwholesale/storefront/internal/featureflags"
	"github.com/orionwholesale/storefront/internal/landing"
	"github.com/orionwholesale/storefront/internal/push"
)

// Landing is the GET /v1/landing body.
type Landing struct {
	Mounted bool `json:"mounted"`
	landing.State
}

// Foreground is the POST /v1/lifecycle/foreground body.
type Foreground struct {
	Replayed bool `json:"replayed"`
}

// NotificationList is the GET /v1/notifications body.
type NotificationList struct {
	Items []push.Record `json:"items"`
	Count int           `json:"count"`
}

// FeatureFlags is the admin flag listing and update body.
type FeatureFlags struct {
	Flags []*featureflags.Flag `json:"flags"`
}

// Session is the admin view of the session. Tokens are never echoed back.
type Session struct {
	InitComplete  bool   `json:"initComplete"`
	Language      string `json:"language"`
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId,omitempty"`
	PushToken     bool   `json:"pushToken"`
}

// SessionAuth is the PUT /v1/admin/session body.
type SessionAuth struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}
