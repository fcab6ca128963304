package kvstore

// Key names a cache entry. The set is closed: every key the client persists
// is declared here.
type Key string

// Persisted keys. The string values are the on-device schema and must not change.
const (
	// KeyLanguage holds the ISO language code chosen in settings (raw string).
	KeyLanguage Key = "Language"

	// KeyDeviceID holds the per-install device id (raw string).
	KeyDeviceID Key = "DEVICEID"

	// KeyGetUpdatedData holds the server-directed "must refetch" flag (JSON bool).
	KeyGetUpdatedData Key = "GET_UPDATED_DATA"

	// KeyLastRequest holds the landing payload expiry watermark (JSON string, RFC 3339).
	KeyLastRequest Key = "LAST_REQUEST"

	// KeyAPIData holds the cached landing payload (JSON object).
	KeyAPIData Key = "API_DATA"

	// KeyFCMToken holds the push registration token (raw string).
	KeyFCMToken Key = "FCM_TOKEN"

	// KeyNotifications holds the promotional notification log (JSON array).
	KeyNotifications Key = "NOTIFICATIONS_ARR"

	// KeyFirebaseInitStatus holds the last push bootstrap status (JSON object).
	KeyFirebaseInitStatus Key = "FIREBASE_INIT_STATUS"

	// KeyPendingNavigation holds the deferred deep link slot (JSON object).
	KeyPendingNavigation Key = "PENDING_NAVIGATION"
)

// Keys returns every persisted key.
func Keys() []Key {
	return []Key{
		KeyLanguage,
		KeyDeviceID,
		KeyGetUpdatedData,
		KeyLastRequest,
		KeyAPIData,
		KeyFCMToken,
		KeyNotifications,
		KeyFirebaseInitStatus,
		KeyPendingNavigation,
	}
}

// Valid reports whether k belongs to the closed key set.
func (k Key) Valid() bool {
	for _, known := range Keys() {
		if k == known {
			return true
		}
	}
	return false
}
