// Package config provides centralized configuration management for siteapi.
// Layers, lowest precedence first:
// 1. Code defaults (Defaults)
// 2. The user's config file, read by viper from XDG config paths
// 3. Environment variables ({PREFIX}{NAME}, see getEnvSpecs)
// 4. Runtime overrides such as command flags
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/padillasconcrete/siteapi/internal/appid"
)

var (
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appid.Identity
)

// EnvVarSpec maps a {PREFIX}{NAME} environment variable to a config path.
type EnvVarSpec = gfconfig.EnvVarSpec

const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// Defaults returns the code-level defaults as a nested settings map.
func Defaults() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"host":                "localhost",
			"port":                8080,
			"read_timeout":        "30s",
			"write_timeout":       "30s",
			"idle_timeout":        "120s",
			"shutdown_timeout":    "10s",
			"allowed_origins":     []string{},
			"trust_proxy_headers": false,
		},
		"store": map[string]any{
			"driver":     "libsql",
			"path":       "",
			"url":        "",
			"auth_token": "",
		},
		"redis": map[string]any{
			"enabled":    false,
			"addr":       "localhost:6379",
			"db":         0,
			"key_prefix": "siteapi",
		},
		"contact": map[string]any{
			"storage_key":        "contact_form_attempts",
			"max_attempts":       3,
			"window":             "60s",
			"attempt_store":      "store",
			"endpoint":           "http://localhost:8080/api/contact",
			"confirmation_delay": "5s",
			"default_language":   "en",
		},
		"auth": map[string]any{
			"jwt_secret":  "",
			"issuer":      "siteapi",
			"token_ttl":   "24h",
			"bcrypt_cost": 10,
			"login_rate":  0.2,
			"login_burst": 5,
			"login_idle":  "10m",
		},
		"mail": map[string]any{
			"enabled":  false,
			"host":     "localhost",
			"port":     587,
			"from":     "",
			"to":       []string{},
			"language": "en",
		},
		"media": map[string]any{
			"backend":          "local",
			"local_dir":        "",
			"public_base_url":  "",
			"max_upload_bytes": int64(10 << 20),
			"thumbnail_width":  480,
			"s3": map[string]any{
				"region":         "us-east-1",
				"use_path_style": false,
				"prefix":         "photos",
			},
		},
		"logging": map[string]any{
			"level":       "info",
			"environment": "production",
			"format":      "json",
		},
		"metrics": map[string]any{
			"enabled": true,
			"port":    9090,
		},
		"health": map[string]any{
			"enabled": true,
		},
	}
}

// SetDefaults registers Defaults with a viper instance so config files and
// AutomaticEnv resolve against known keys.
func SetDefaults(v *viper.Viper) {
	for key, value := range flatten("", Defaults()) {
		v.SetDefault(key, value)
	}
}

// Load merges base settings (typically viper.AllSettings()), environment
// overrides and runtime overrides, then decodes the result. It is safe to
// call again on reload.
func Load(ctx context.Context, base map[string]any, runtimeOverrides ...map[string]any) (*Config, error) {
	if appIdentity == nil {
		identity, err := appid.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load app identity: %w", err)
		}
		appIdentity = identity
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	merged := Defaults()
	mergeInto(merged, base)
	mergeInto(merged, envOverrides)
	for _, overrides := range runtimeOverrides {
		mergeInto(merged, overrides)
	}

	cfg, err := Decode(merged)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	if strings.TrimSpace(cfg.Media.LocalDir) == "" {
		cfg.Media.LocalDir = filepath.Join(DefaultDataDir(), "media")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Decode converts a settings map into a typed Config.
func Decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings that cannot work at runtime.
func (c *Config) Validate() error {
	if c.Contact.MaxAttempts <= 0 {
		return fmt.Errorf("contact.max_attempts must be positive, got %d", c.Contact.MaxAttempts)
	}
	if c.Contact.Window < time.Second {
		return fmt.Errorf("contact.window must be at least 1s, got %s", c.Contact.Window)
	}
	switch c.Contact.AttemptStore {
	case "store", "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("contact.attempt_store is redis but redis.enabled is false")
		}
	default:
		return fmt.Errorf("contact.attempt_store must be store, redis or memory, got %q", c.Contact.AttemptStore)
	}
	switch c.Media.Backend {
	case "local":
	case "s3":
		if strings.TrimSpace(c.Media.S3.Bucket) == "" {
			return fmt.Errorf("media.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("media.backend must be local or s3, got %q", c.Media.Backend)
	}
	if c.Mail.Enabled && (strings.TrimSpace(c.Mail.From) == "" || len(c.Mail.To) == 0) {
		return fmt.Errorf("mail.from and mail.to are required when mail is enabled")
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// getEnvSpecs returns the short environment variable names supported on top
// of viper's AutomaticEnv keys.
func getEnvSpecs() []EnvVarSpec {
	prefix := "SITEAPI_"
	if appIdentity != nil && appIdentity.EnvPrefix != "" {
		prefix = appIdentity.EnvPrefix
	}

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		{Name: prefix + "ALLOWED_ORIGINS", Path: []string{"server", "allowed_origins"}, Type: EnvString},
		{Name: prefix + "TRUST_PROXY_HEADERS", Path: []string{"server", "trust_proxy_headers"}, Type: EnvBool},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_FORMAT", Path: []string{"logging", "format"}, Type: EnvString},
		{Name: prefix + "ENVIRONMENT", Path: []string{"logging", "environment"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Redis
		{Name: prefix + "REDIS_ENABLED", Path: []string{"redis", "enabled"}, Type: EnvBool},
		{Name: prefix + "REDIS_ADDR", Path: []string{"redis", "addr"}, Type: EnvString},
		{Name: prefix + "REDIS_PASSWORD", Path: []string{"redis", "password"}, Type: EnvString},

		// Contact pipeline
		{Name: prefix + "CONTACT_MAX_ATTEMPTS", Path: []string{"contact", "max_attempts"}, Type: EnvInt},
		{Name: prefix + "CONTACT_WINDOW", Path: []string{"contact", "window"}, Type: EnvString},
		{Name: prefix + "CONTACT_ATTEMPT_STORE", Path: []string{"contact", "attempt_store"}, Type: EnvString},
		{Name: prefix + "CONTACT_ENDPOINT", Path: []string{"contact", "endpoint"}, Type: EnvString},

		// Auth
		{Name: prefix + "JWT_SECRET", Path: []string{"auth", "jwt_secret"}, Type: EnvString},
		{Name: prefix + "TOKEN_TTL", Path: []string{"auth", "token_ttl"}, Type: EnvString},

		// Mail
		{Name: prefix + "MAIL_ENABLED", Path: []string{"mail", "enabled"}, Type: EnvBool},
		{Name: prefix + "SMTP_HOST", Path: []string{"mail", "host"}, Type: EnvString},
		{Name: prefix + "SMTP_PORT", Path: []string{"mail", "port"}, Type: EnvInt},
		{Name: prefix + "SMTP_USERNAME", Path: []string{"mail", "username"}, Type: EnvString},
		{Name: prefix + "SMTP_PASSWORD", Path: []string{"mail", "password"}, Type: EnvString},
		{Name: prefix + "MAIL_FROM", Path: []string{"mail", "from"}, Type: EnvString},
		{Name: prefix + "MAIL_TO", Path: []string{"mail", "to"}, Type: EnvString},

		// Media
		{Name: prefix + "MEDIA_BACKEND", Path: []string{"media", "backend"}, Type: EnvString},
		{Name: prefix + "MEDIA_DIR", Path: []string{"media", "local_dir"}, Type: EnvString},
		{Name: prefix + "S3_BUCKET", Path: []string{"media", "s3", "bucket"}, Type: EnvString},
		{Name: prefix + "S3_REGION", Path: []string{"media", "s3", "region"}, Type: EnvString},
		{Name: prefix + "S3_ENDPOINT", Path: []string{"media", "s3", "endpoint"}, Type: EnvString},
		{Name: prefix + "S3_ACCESS_KEY_ID", Path: []string{"media", "s3", "access_key_id"}, Type: EnvString},
		{Name: prefix + "S3_SECRET_ACCESS_KEY", Path: []string{"media", "s3", "secret_access_key"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},
	}
}

func appNamesForPaths() (configName string, binaryName string) {
	configName = "siteapi"
	binaryName = "siteapi"
	if appIdentity == nil {
		return configName, binaryName
	}
	if strings.TrimSpace(appIdentity.ConfigName) != "" {
		configName = appIdentity.ConfigName
	}
	if strings.TrimSpace(appIdentity.BinaryName) != "" {
		binaryName = appIdentity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths()
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppDataDir(configName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	configName, binaryName := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}

// mergeInto deep-merges src into dst. Nested maps merge; other values
// replace.
func mergeInto(dst, src map[string]any) {
	for key, value := range src {
		key = strings.ToLower(key)
		srcMap, srcIsMap := value.(map[string]any)
		if dstMap, ok := dst[key].(map[string]any); ok && srcIsMap {
			mergeInto(dstMap, srcMap)
			continue
		}
		if srcIsMap {
			copied := map[string]any{}
			mergeInto(copied, srcMap)
			dst[key] = copied
			continue
		}
		dst[key] = value
	}
}

func flatten(prefix string, settings map[string]any) map[string]any {
	out := map[string]any{}
	for key, value := range settings {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			for k, v := range flatten(full, nested) {
				out[k] = v
			}
			continue
		}
		out[full] = value
	}
	return out
}
