package cmd

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/padillasconcrete/siteapi/internal/auth"
	"github.com/padillasconcrete/siteapi/internal/config"
	errwrap "github.com/padillasconcrete/siteapi/internal/errors"
	"github.com/padillasconcrete/siteapi/internal/media"
	"github.com/padillasconcrete/siteapi/internal/metrics"
	"github.com/padillasconcrete/siteapi/internal/notify"
	"github.com/padillasconcrete/siteapi/internal/observability"
	"github.com/padillasconcrete/siteapi/internal/server"
	"github.com/padillasconcrete/siteapi/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return errwrap.NewConfigInvalidError("app identity missing binary name")
	case i.envPrefix == "":
		return errwrap.NewConfigInvalidError("app identity missing env prefix")
	case i.configName == "":
		return errwrap.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the contact and admin API with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read and validate the config file

The server stops accepting requests, closes the database and Redis
connections, then flushes logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()

		cfg, err := loadConfig(ctx)
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "invalid configuration")
		}

		observability.InitServerLogger(observability.ServerLoggerOptions{
			Service:     identity.BinaryName,
			Level:       cfg.Logging.Level,
			Environment: cfg.Logging.Environment,
			Format:      cfg.Logging.Format,
			Namespace:   namespace,
		})
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			metricsPort := cfg.Metrics.Port
			if metricsPort == 0 {
				metricsPort = 9090
			}
			if err := observability.InitMetrics(identity.BinaryName, metricsPort, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
		}

		logger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.String("attempt_store", cfg.Contact.AttemptStore),
			zap.String("media_backend", cfg.Media.Backend))

		db, err := openStoreWith(ctx, cfg)
		if err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "failed to open store")
		}

		limiter, limiterCloser, err := newRateLimiter(ctx, cfg, db)
		if err != nil {
			_ = db.Close()
			return errwrap.WrapExternalService(ctx, err, "failed to open attempt store")
		}

		notifier, err := notify.New(cfg.Mail, logger)
		if err != nil {
			_ = limiterCloser.Close()
			_ = db.Close()
			return errwrap.WrapConfigInvalid(ctx, err, "invalid mail configuration")
		}

		storage, err := media.NewStorage(ctx, cfg.Media)
		if err != nil {
			_ = limiterCloser.Close()
			_ = db.Close()
			return errwrap.WrapConfigInvalid(ctx, err, "invalid media configuration")
		}
		uploader := media.NewUploader(storage, cfg.Media.MaxUploadBytes, cfg.Media.ThumbnailWidth)

		issuer := newIssuer(cfg.Auth, logger)

		throttle := auth.NewLoginThrottle(cfg.Auth.LoginRate, cfg.Auth.LoginBurst, cfg.Auth.LoginIdle)
		throttle.StartJanitor(ctx, time.Minute)

		api := &handlers.API{
			Limiter:         limiter,
			Messages:        db,
			Notifier:        notifier,
			Users:           db,
			Projects:        db,
			Uploader:        uploader,
			Issuer:          issuer,
			Logger:          logger,
			BcryptCost:      cfg.Auth.BcryptCost,
			DefaultLanguage: cfg.Contact.DefaultLanguage,
		}

		if cfg.Health.Enabled {
			handlers.InitHealthManager(versionInfo.Version)
			hm := handlers.GetHealthManager()
			hm.RegisterChecker("store", db)
			if closer, ok := limiterCloser.(handlers.HealthChecker); ok {
				hm.RegisterChecker("redis", closer)
			}
			if cfg.Metrics.Enabled {
				hm.RegisterOptionalChecker("telemetry", telemetryHealthChecker{})
			}
			hm.RegisterOptionalChecker("app_identity", identityHealthChecker{
				binaryName: identity.BinaryName,
				envPrefix:  identity.EnvPrefix,
				configName: identity.ConfigName,
			})
		}

		opts := server.Options{API: api, LoginThrottle: throttle, MetricsPort: cfg.Metrics.Port}
		if local, ok := storage.(*media.LocalStorage); ok {
			opts.MediaDir = local.Dir
			opts.MediaPath = mediaPath(local.BaseURL)
		}
		srv := server.New(cfg.Server, opts)

		handlers.SetAppIdentity(identity)
		handlers.SetFeatures(map[string]string{
			"attempt_store": cfg.Contact.AttemptStore,
			"media_backend": storage.Backend(),
			"notifier":      notifier.Channel(),
			"admin_api":     enabledLabel(issuer != nil),
		})
		if hm := handlers.GetHealthManager(); hm != nil {
			hm.MarkStarted()
		}

		startedAt := time.Now()
		metrics.SetServerStartTime(startedAt.Unix())
		go reportUptime(ctx, startedAt)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: HTTP server, then connections, then logs.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			cancel()
			closeQuietly(logger, "attempt store", limiterCloser)
			closeQuietly(logger, "database", db)
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			return reloadConfig(ctx, logger)
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(ctx, err, "server error")
		}

		return nil
	},
}

// newIssuer returns nil, disabling the admin API, when no signing secret is
// configured.
func newIssuer(cfg config.AuthConfig, logger *logging.Logger) *auth.Issuer {
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.Issuer, cfg.TokenTTL)
	if err != nil {
		logger.Warn("Admin API disabled: auth.jwt_secret is not set", zap.Error(err))
		return nil
	}
	return issuer
}

func enabledLabel(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

// mediaPath turns a local public base URL into the router mount path.
func mediaPath(baseURL string) string {
	if strings.HasPrefix(baseURL, "/") {
		return baseURL
	}
	return "/media"
}

func reportUptime(ctx context.Context, startedAt time.Time) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			metrics.SetServerUptime(int64(now.Sub(startedAt).Seconds()))
		}
	}
}

func closeQuietly(logger *logging.Logger, name string, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("Close failed", zap.String("resource", name), zap.Error(err))
	}
}

// reloadConfig re-reads the config file and validates it. Running
// components keep their settings; a restart applies them.
func reloadConfig(ctx context.Context, logger *logging.Logger) error {
	logger.Info("Received SIGHUP: attempting config reload")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Info("No config file found - using defaults and environment variables")
			return nil
		}
		logger.Error("Failed to reload config file",
			zap.String("file", viper.ConfigFileUsed()),
			zap.Error(err))
		return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
	}

	if _, err := config.Load(ctx, viper.AllSettings()); err != nil {
		logger.Error("Reloaded config is invalid", zap.Error(err))
		return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
	}

	logger.Info("Configuration reloaded successfully",
		zap.String("file", viper.ConfigFileUsed()))
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
