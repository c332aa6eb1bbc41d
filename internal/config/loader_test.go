package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		dataHome := t.TempDir()
		t.Setenv("XDG_DATA_HOME", dataHome)

		cfg, err := Load(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "libsql", cfg.Store.Driver)
		assert.Equal(t, DefaultStorePath(), cfg.Store.Path)
		assert.Equal(t, "siteapi.db", filepath.Base(cfg.Store.Path))

		assert.Equal(t, "contact_form_attempts", cfg.Contact.StorageKey)
		assert.Equal(t, 3, cfg.Contact.MaxAttempts)
		assert.Equal(t, time.Minute, cfg.Contact.Window)
		assert.Equal(t, "store", cfg.Contact.AttemptStore)
		assert.Equal(t, 5*time.Second, cfg.Contact.ConfirmationDelay)

		assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
		assert.InDelta(t, 0.2, cfg.Auth.LoginRate, 1e-9)
		assert.Equal(t, 5, cfg.Auth.LoginBurst)

		assert.Equal(t, "local", cfg.Media.Backend)
		assert.Equal(t, int64(10<<20), cfg.Media.MaxUploadBytes)
		assert.Equal(t, "media", filepath.Base(cfg.Media.LocalDir))

		assert.True(t, cfg.Metrics.Enabled)
		assert.Same(t, cfg, GetConfig())
	})

	t.Run("BaseSettingsOverrideDefaults", func(t *testing.T) {
		base := map[string]any{
			"server":  map[string]any{"port": 9000},
			"contact": map[string]any{"window": "2m", "max_attempts": "5"},
		}

		cfg, err := Load(ctx, base)
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 2*time.Minute, cfg.Contact.Window)
		assert.Equal(t, 5, cfg.Contact.MaxAttempts)
	})

	t.Run("EnvironmentOverridesBase", func(t *testing.T) {
		t.Setenv("SITEAPI_PORT", "7070")
		t.Setenv("SITEAPI_MAIL_TO", "owner@example.com,office@example.com")
		t.Setenv("SITEAPI_MAIL_FROM", "site@example.com")
		t.Setenv("SITEAPI_MAIL_ENABLED", "true")

		cfg, err := Load(ctx, map[string]any{"server": map[string]any{"port": 9000}})
		require.NoError(t, err)

		assert.Equal(t, 7070, cfg.Server.Port)
		assert.True(t, cfg.Mail.Enabled)
		assert.Equal(t, []string{"owner@example.com", "office@example.com"}, cfg.Mail.To)
	})

	t.Run("RuntimeOverridesWin", func(t *testing.T) {
		t.Setenv("SITEAPI_HOST", "0.0.0.0")

		cfg, err := Load(ctx, nil, map[string]any{"server": map[string]any{"host": "127.0.0.1"}})
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	})

	t.Run("InvalidAttemptStore", func(t *testing.T) {
		_, err := Load(ctx, map[string]any{"contact": map[string]any{"attempt_store": "redis"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis.enabled")
	})

	t.Run("S3RequiresBucket", func(t *testing.T) {
		_, err := Load(ctx, map[string]any{"media": map[string]any{"backend": "s3"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket")
	})
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	assert.Equal(t, "localhost", v.GetString("server.host"))
	assert.False(t, v.GetBool("server.trust_proxy_headers"))
	assert.Equal(t, 3, v.GetInt("contact.max_attempts"))
	assert.Equal(t, time.Minute, v.GetDuration("contact.window"))
	assert.Equal(t, "photos", v.GetString("media.s3.prefix"))

	cfg, err := Decode(v.AllSettings())
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", cfg.Media.S3.Region)
	assert.False(t, cfg.Server.TrustProxyHeaders)
}

func TestMergeInto(t *testing.T) {
	dst := map[string]any{
		"server": map[string]any{"host": "localhost", "port": 8080},
		"debug":  false,
	}
	mergeInto(dst, map[string]any{
		"Server": map[string]any{"port": 9090},
		"extra":  map[string]any{"a": 1},
	})

	server := dst["server"].(map[string]any)
	assert.Equal(t, "localhost", server["host"])
	assert.Equal(t, 9090, server["port"])
	assert.Equal(t, map[string]any{"a": 1}, dst["extra"])
}
