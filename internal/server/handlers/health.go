package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	apperrors "github.com/padillasconcrete/siteapi/internal/errors"
	"github.com/padillasconcrete/siteapi/internal/metrics"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusStarting  = "starting"

	checkTimeout = "timeout"
)

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

type registeredCheck struct {
	checker  HealthChecker
	critical bool
}

// HealthManager runs dependency checks for the probe endpoints.
//
// Critical checks (the database, a shared Redis attempt store) make the
// service unready when they fail. Optional checks only degrade it. Liveness
// never runs checks: a database outage should not get the process restarted.
type HealthManager struct {
	version string
	started atomic.Bool

	mu     sync.RWMutex
	checks map[string]registeredCheck
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version: version,
		checks:  make(map[string]registeredCheck),
	}
}

// RegisterChecker registers a critical check.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.register(name, checker, true)
}

// RegisterOptionalChecker registers a check whose failure only degrades
// the service.
func (hm *HealthManager) RegisterOptionalChecker(name string, checker HealthChecker) {
	hm.register(name, checker, false)
}

func (hm *HealthManager) register(name string, checker HealthChecker, critical bool) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[name] = registeredCheck{checker: checker, critical: critical}
}

// MarkStarted flips the startup probe once initialization is complete.
func (hm *HealthManager) MarkStarted() {
	hm.started.Store(true)
}

func (hm *HealthManager) snapshot() map[string]registeredCheck {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	out := make(map[string]registeredCheck, len(hm.checks))
	for name, c := range hm.checks {
		out[name] = c
	}
	return out
}

// runChecks executes every check concurrently. A check still running when
// ctx expires is reported as "timeout".
func (hm *HealthManager) runChecks(ctx context.Context) (map[string]string, string) {
	registered := hm.snapshot()

	type result struct {
		name   string
		status string
	}
	results := make(chan result, len(registered))
	for name, c := range registered {
		go func(name string, checker HealthChecker) {
			start := time.Now()
			err := checker.CheckHealth(ctx)
			metrics.RecordHealthCheck(name, err == nil, time.Since(start))
			status := StatusHealthy
			if err != nil {
				status = StatusUnhealthy
			}
			results <- result{name: name, status: status}
		}(name, c.checker)
	}

	checks := make(map[string]string, len(registered))
	for range registered {
		select {
		case res := <-results:
			checks[res.name] = res.status
		case <-ctx.Done():
			for name := range registered {
				if _, ok := checks[name]; !ok {
					checks[name] = checkTimeout
				}
			}
			return checks, overallStatus(registered, checks)
		}
	}
	return checks, overallStatus(registered, checks)
}

// overallStatus is unhealthy when a critical check failed or timed out and
// degraded when only optional checks did.
func overallStatus(registered map[string]registeredCheck, checks map[string]string) string {
	status := StatusHealthy
	for name, result := range checks {
		if result == StatusHealthy {
			continue
		}
		if registered[name].critical {
			return StatusUnhealthy
		}
		status = StatusDegraded
	}
	return status
}

// HealthHandler handles aggregate health check requests
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, status := hm.runChecks(ctx)
	if status == StatusUnhealthy {
		respondWithError(w, r, healthEnvelope("aggregate health check failed", "", status, checks))
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   hm.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// LivenessHandler reports that the process is serving requests.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, StatusHealthy)
}

// ReadinessHandler reports whether critical dependencies are reachable.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks, status := hm.runChecks(ctx)
	if status == StatusUnhealthy {
		respondWithError(w, r, healthEnvelope("readiness probe failed", "ready", status, checks))
		return
	}
	writeProbe(w, status)
}

// StartupHandler fails until MarkStarted, then behaves like readiness.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	if !hm.started.Load() {
		respondWithError(w, r, healthEnvelope("startup in progress", "startup", StatusStarting, nil))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks, status := hm.runChecks(ctx)
	if status == StatusUnhealthy {
		respondWithError(w, r, healthEnvelope("startup probe failed", "startup", status, checks))
		return
	}
	writeProbe(w, status)
}

func writeProbe(w http.ResponseWriter, status string) {
	writeJSON(w, http.StatusOK, ProbeResponse{Status: status, Timestamp: time.Now().UTC()})
}

// healthEnvelope builds a 503 envelope listing the failing checks.
func healthEnvelope(message, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	details := map[string]interface{}{"status": status}
	if probe != "" {
		details["probe"] = probe
	}
	if len(checks) > 0 {
		details["checks"] = checks

		var failing []string
		for name, result := range checks {
			if result != StatusHealthy {
				failing = append(failing, name)
			}
		}
		sort.Strings(failing)
		if len(failing) > 0 {
			details["failing_checks"] = failing
		}
	}
	return apperrors.WithDetails(apperrors.NewServiceUnavailableError(message), details)
}

var globalHealthManager *HealthManager

// InitHealthManager initializes the global health manager
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the global health manager
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

// withGlobalManager adapts a HealthManager method to the package-level
// handlers used by the router.
func withGlobalManager(probe string, fn func(*HealthManager, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hm := globalHealthManager; hm != nil {
			fn(hm, w, r)
			return
		}
		respondWithError(w, r, healthEnvelope("health manager not initialized", probe, "unknown", nil))
	}
}

var (
	HealthHandler    = withGlobalManager("aggregate", (*HealthManager).HealthHandler)
	LivenessHandler  = withGlobalManager("live", (*HealthManager).LivenessHandler)
	ReadinessHandler = withGlobalManager("ready", (*HealthManager).ReadinessHandler)
	StartupHandler   = withGlobalManager("startup", (*HealthManager).StartupHandler)
)
