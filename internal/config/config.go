// Package config loads the storefront client configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/orionwholesale/storefront/internal/database"
	"github.com/orionwholesale/storefront/internal/device"
	"github.com/orionwholesale/storefront/internal/featureflags"
	"github.com/orionwholesale/storefront/internal/push"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// ErrMissingAPIURL is returned when API_URL is not set.
var ErrMissingAPIURL = errors.New("config: API_URL is required")

// Config holds all client configuration.
type Config struct {
	API       APIConfig
	Device    DeviceConfig
	Store     StoreConfig
	Policy    PolicyConfig
	Push      PushConfig
	Server    ServerConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

// APIConfig is the backend the gateway talks to.
type APIConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// DeviceConfig describes this install.
type DeviceConfig struct {
	Platform device.Platform
}

// StoreConfig selects the key-value cache backend.
type StoreConfig struct {
	Driver     string
	SQLitePath string
	Namespace  string
	Database   database.Config
}

// PolicyConfig holds the behavior switches.
type PolicyConfig struct {
	Refetch featureflags.RefetchPolicy
}

// PushConfig configures the push provider.
type PushConfig struct {
	Enabled         bool
	ProjectID       string
	CredentialsFile string
	Subscription    string
	Topics          []string
	DeviceToken     string
	InitialLink     string
}

// ServerConfig configures the diagnostics HTTP server.
type ServerConfig struct {
	Port       string
	Env        string
	AdminToken string
	RequireTLS bool
}

// LogConfig configures logging.
type LogConfig struct {
	Level string
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
}

// Load reads a .env file when present and then the environment. Files that do
// not exist are ignored; without arguments ".env" is tried.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("loading %s: %w", file, err)
		}
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL:     getEnv("API_URL", ""),
			AccessToken: getEnv("API_ACCESS_TOKEN", ""),
			Timeout:     getDuration("API_TIMEOUT", 15*time.Second),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
			SQLitePath: getEnv("SQLITE_PATH", "storefront.db"),
			Namespace:  getEnv("STORE_NAMESPACE", "default"),
			Database:   database.ConfigFromEnv(),
		},
		Push: PushConfig{
			Enabled:         getBool("PUSH_ENABLED", false),
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			Subscription:    getEnv("PUSH_SUBSCRIPTION", ""),
			Topics:          parseCSV(getEnv("PUSH_TOPICS", push.DefaultTopic)),
			DeviceToken:     getEnv("PUSH_DEVICE_TOKEN", ""),
			InitialLink:     getEnv("PUSH_INITIAL_LINK", ""),
		},
		Server: ServerConfig{
			Port:       getEnv("APP_PORT", "8080"),
			Env:        getEnv("APP_ENV", "development"),
			AdminToken: getEnv("ADMIN_TOKEN", ""),
			RequireTLS: getBool("REQUIRE_TLS", false),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		},
	}

	if cfg.API.BaseURL == "" {
		return nil, ErrMissingAPIURL
	}

	platform, err := device.ParsePlatform(getEnv("DEVICE_PLATFORM", string(device.PlatformAndroid)))
	if err != nil {
		return nil, fmt.Errorf("DEVICE_PLATFORM: %w", err)
	}
	cfg.Device.Platform = platform

	refetch, err := featureflags.ParseRefetchPolicy(getEnv("REFETCH_POLICY", ""))
	if err != nil {
		return nil, fmt.Errorf("REFETCH_POLICY: %w", err)
	}
	cfg.Policy.Refetch = refetch

	switch cfg.Store.Driver {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		return nil, fmt.Errorf("STORE_DRIVER: unknown driver %q", cfg.Store.Driver)
	}

	return cfg, nil
}

// IsProduction reports whether the client runs in production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

// parseCSV splits a comma-separated list, dropping blanks.
func parseCSV(value string) []string {
	var result []string
	for _, s := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
