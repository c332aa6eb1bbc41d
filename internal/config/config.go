package config

import (
	"time"
)

// Config is the complete application configuration. Values are layered:
// code defaults, then the user's config file, then environment variables,
// then runtime overrides (command flags).
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Contact ContactConfig `mapstructure:"contact"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Mail    MailConfig    `mapstructure:"mail"`
	Media   MediaConfig   `mapstructure:"media"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// AllowedOrigins lists browser origins allowed to call the API. "*"
	// allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// TrustProxyHeaders takes the client address from X-Forwarded-For /
	// X-Real-IP. Enable only behind a proxy that overwrites those headers;
	// otherwise clients can pick their own throttle key.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// RedisConfig enables a shared attempt log for multi-replica deployments.
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ContactConfig controls the contact submission pipeline.
type ContactConfig struct {
	StorageKey  string        `mapstructure:"storage_key"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`

	// AttemptStore selects where attempt logs live: store (libsql), redis
	// or memory.
	AttemptStore string `mapstructure:"attempt_store"`

	// Endpoint is the contact URL used by `contact submit`.
	Endpoint string `mapstructure:"endpoint"`

	ConfirmationDelay time.Duration `mapstructure:"confirmation_delay"`
	DefaultLanguage   string        `mapstructure:"default_language"`
}

// AuthConfig configures admin token issuance and login throttling.
type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	Issuer     string        `mapstructure:"issuer"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`

	// LoginRate is the sustained login attempts per second per client IP.
	LoginRate  float64       `mapstructure:"login_rate"`
	LoginBurst int           `mapstructure:"login_burst"`
	LoginIdle  time.Duration `mapstructure:"login_idle"`
}

// MailConfig configures owner notification of new contact messages. When
// disabled, notifications are only logged.
type MailConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
	Language string   `mapstructure:"language"`
}

// MediaConfig selects photo storage.
type MediaConfig struct {
	// Backend is local or s3.
	Backend        string   `mapstructure:"backend"`
	LocalDir       string   `mapstructure:"local_dir"`
	PublicBaseURL  string   `mapstructure:"public_base_url"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`
	ThumbnailWidth int      `mapstructure:"thumbnail_width"`
	S3             S3Config `mapstructure:"s3"`
}

// S3Config addresses an S3-compatible bucket.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	Prefix          string `mapstructure:"prefix"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Environment is stamped on every server log line.
	Environment string `mapstructure:"environment"`

	// Format is json or console.
	Format string `mapstructure:"format"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated exporter port; /metrics on the API port proxies it.
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
