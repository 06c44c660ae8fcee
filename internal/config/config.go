package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Content store drivers.
const (
	ContentDriverMemory     = "memory"
	ContentDriverRedis      = "redis"
	ContentDriverCloudinary = "cloudinary"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName      string
	AppEnv       string
	AppPort      string
	DatabaseURL  string
	RedisURL     string
	NATSURL      string
	AllowOrigins []string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	ContentDriver       string
	ContentGatewayURL   string
	ContentFetchTimeout time.Duration
	ContentCacheTTL     time.Duration

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	SignatureScheme                string
	VerificationConcurrency        int
	VerificationTimestampTolerance time.Duration

	NotificationChannel          string
	NotificationDispatchInterval time.Duration
	NotificationBatchSize        int
	NotificationMaxAttempts      int
	NotificationKeepAlive        time.Duration
	NotificationClaimTTL         time.Duration

	WriteRateLimit  int
	WriteRateWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("JUDGING")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Judging Integrity API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("content.driver", ContentDriverMemory)
	v.SetDefault("content.fetch_timeout", "10s")
	v.SetDefault("content.cache_ttl", "24h")
	v.SetDefault("cloudinary.folder", "judging/scores")
	v.SetDefault("signature.scheme", "stored")
	v.SetDefault("verification.concurrency", 4)
	v.SetDefault("verification.timestamp_tolerance", "5m")
	v.SetDefault("notifications.channel", "judging")
	v.SetDefault("notifications.dispatch_interval", "5s")
	v.SetDefault("notifications.batch_size", 100)
	v.SetDefault("notifications.max_attempts", 5)
	v.SetDefault("notifications.keepalive", "30s")
	v.SetDefault("notifications.claim_ttl", "1m")
	v.SetDefault("ratelimit.writes", 30)
	v.SetDefault("ratelimit.window", "1m")

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"content.fetch_timeout",
		"content.cache_ttl",
		"verification.timestamp_tolerance",
		"notifications.dispatch_interval",
		"notifications.keepalive",
		"notifications.claim_ttl",
		"ratelimit.window",
	} {
		parsed, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed < 0 {
			return Config{}, fmt.Errorf("invalid %s: must not be negative", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:      v.GetString("app.name"),
		AppEnv:       v.GetString("app.env"),
		AppPort:      v.GetString("app.port"),
		DatabaseURL:  v.GetString("database.url"),
		RedisURL:     v.GetString("redis.url"),
		NATSURL:      v.GetString("nats.url"),
		AllowOrigins: splitList(v.GetString("cors.allow_origins")),

		JWTSecret:   v.GetString("jwt.secret"),
		JWTIssuer:   v.GetString("jwt.issuer"),
		JWTAudience: v.GetString("jwt.audience"),

		ContentDriver:       strings.ToLower(strings.TrimSpace(v.GetString("content.driver"))),
		ContentGatewayURL:   strings.TrimSpace(v.GetString("content.gateway_url")),
		ContentFetchTimeout: durations["content.fetch_timeout"],
		ContentCacheTTL:     durations["content.cache_ttl"],

		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),

		SignatureScheme:                strings.ToLower(strings.TrimSpace(v.GetString("signature.scheme"))),
		VerificationConcurrency:        v.GetInt("verification.concurrency"),
		VerificationTimestampTolerance: durations["verification.timestamp_tolerance"],

		NotificationChannel:          v.GetString("notifications.channel"),
		NotificationDispatchInterval: durations["notifications.dispatch_interval"],
		NotificationBatchSize:        v.GetInt("notifications.batch_size"),
		NotificationMaxAttempts:      v.GetInt("notifications.max_attempts"),
		NotificationKeepAlive:        durations["notifications.keepalive"],
		NotificationClaimTTL:         durations["notifications.claim_ttl"],

		WriteRateLimit:  v.GetInt("ratelimit.writes"),
		WriteRateWindow: durations["ratelimit.window"],
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must be provided")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url must be provided")
	}

	switch c.ContentDriver {
	case ContentDriverMemory:
	case ContentDriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("content driver %q requires a redis url", c.ContentDriver)
		}
	case ContentDriverCloudinary:
		if c.CloudinaryCloudName == "" || c.CloudinaryAPIKey == "" || c.CloudinaryAPISecret == "" {
			return fmt.Errorf("content driver %q requires cloudinary credentials", c.ContentDriver)
		}
	default:
		return fmt.Errorf("unknown content driver %q", c.ContentDriver)
	}

	switch c.SignatureScheme {
	case "stored", "ed25519":
	default:
		return fmt.Errorf("unknown signature scheme %q", c.SignatureScheme)
	}

	if c.VerificationConcurrency <= 0 {
		return fmt.Errorf("verification concurrency must be positive")
	}
	if c.NotificationBatchSize <= 0 || c.NotificationMaxAttempts <= 0 {
		return fmt.Errorf("notification batch size and max attempts must be positive")
	}

	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
