package metrics

import (
	"strconv"
	"time"

	"github.com/padillasconcrete/siteapi/internal/observability"
)

// Application-level metrics following Prometheus conventions
const (
	// Contact pipeline
	ContactSubmissionsTotal   = "contact_submissions_total"
	ContactRateLimitDecisions = "contact_rate_limit_decisions_total"
	ContactNotificationsTotal = "contact_notifications_total"

	// Admin
	AuthLoginsTotal   = "auth_logins_total"
	MediaUploadsTotal = "media_uploads_total"
	MediaUploadBytes  = "media_upload_bytes"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordSubmission counts one finished contact submission cycle by outcome.
func RecordSubmission(outcome string) {
	counter(ContactSubmissionsTotal, map[string]string{"outcome": outcome})
}

// RecordRateLimitDecision counts sliding-window limiter checks.
func RecordRateLimitDecision(allowed bool) {
	counter(ContactRateLimitDecisions, map[string]string{"allowed": strconv.FormatBool(allowed)})
}

// RecordNotification counts owner notifications for new contact messages.
func RecordNotification(channel string, success bool) {
	counter(ContactNotificationsTotal, map[string]string{
		"channel": channel,
		"status":  statusLabel(success),
	})
}

// RecordLogin counts admin login attempts. Status is success, failure or throttled.
func RecordLogin(status string) {
	counter(AuthLoginsTotal, map[string]string{"status": status})
}

// RecordUpload records a photo upload and, when it succeeded, its size.
func RecordUpload(backend string, size int64, success bool) {
	counter(MediaUploadsTotal, map[string]string{
		"backend": backend,
		"status":  statusLabel(success),
	})
	if success {
		gauge(MediaUploadBytes, float64(size), map[string]string{"backend": backend})
	}
}

func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	counter(HealthCheckTotal, map[string]string{"check": checkName, "status": status})
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Histogram(HealthCheckDuration, duration, map[string]string{"check": checkName})
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	gauge(ServerStartTime, float64(timestamp), nil)
}

func SetServerUptime(seconds int64) {
	gauge(ServerUptime, float64(seconds), nil)
}

func gauge(name string, value float64, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(name, value, labels)
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
