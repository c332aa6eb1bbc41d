package server

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/padillasconcrete/siteapi/internal/appid"
	"github.com/padillasconcrete/siteapi/internal/observability"
	"github.com/padillasconcrete/siteapi/internal/server/handlers"
	servermw "github.com/padillasconcrete/siteapi/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)

	s.router.Get("/metrics", s.metrics.ServeHTTP)

	if s.opts.API != nil {
		s.router.Route("/api", s.registerAPI)
	}
	s.registerMedia()

	// Admin signal endpoint (optional, requires <PREFIX>ADMIN_TOKEN)
	s.registerAdminEndpoint()
}

func (s *Server) registerAPI(r chi.Router) {
	api := s.opts.API

	r.Post("/contact", api.Contact)
	r.Get("/projects", api.ListProjects)

	r.With(servermw.ThrottleLogin(s.opts.LoginThrottle)).Post("/auth/login", api.Login)

	if api.Issuer == nil {
		return
	}

	r.Group(func(r chi.Router) {
		r.Use(servermw.Authenticate(api.Issuer))

		r.Get("/auth/verify", api.Verify)
		r.Post("/auth/change-password", api.ChangePassword)

		r.Post("/projects", api.CreateProject)
		r.Put("/projects/{id}", api.UpdateProject)
		r.Delete("/projects/{id}", api.DeleteProject)
		r.Post("/projects/{id}/photos", api.UploadPhoto)
		r.Delete("/projects/{id}/photos/{photoId}", api.DeletePhoto)

		r.Group(func(r chi.Router) {
			r.Use(servermw.RequireAdmin)
			r.Get("/users", api.ListUsers)
			r.Post("/users", api.CreateUser)
			r.Put("/users/{id}", api.UpdateUser)
			r.Delete("/users/{id}", api.DeleteUser)
		})
	})
}

// registerMedia serves locally stored photos. Directory listings are not
// exposed.
func (s *Server) registerMedia() {
	if s.opts.MediaDir == "" {
		return
	}
	prefix := "/" + strings.Trim(s.opts.MediaPath, "/")
	fs := http.StripPrefix(prefix+"/", http.FileServer(noListingFS{http.Dir(s.opts.MediaDir)}))
	s.router.Get(prefix+"/*", fs.ServeHTTP)
}

type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}

// registerAdminEndpoint optionally registers the admin signal endpoint
func (s *Server) registerAdminEndpoint() {
	ctx := context.Background()
	identity, _ := appid.Get(ctx)
	envPrefix := "SITEAPI_"
	if identity != nil && identity.EnvPrefix != "" {
		envPrefix = identity.EnvPrefix
	}

	adminToken := os.Getenv(envPrefix + "ADMIN_TOKEN")
	logger := observability.ServerLogger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no " + envPrefix + "ADMIN_TOKEN set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10, // per minute
		RateBurst: 5,
		Manager:   nil, // default global manager
	})

	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
