package middleware

import (
	"math"
	"net"
	"net/http"
	"strings"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/padillasconcrete/siteapi/internal/auth"
	"github.com/padillasconcrete/siteapi/internal/metrics"
)

// ThrottleLogin limits login attempts per client address.
func ThrottleLogin(throttle *auth.LoginThrottle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if throttle == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, wait := throttle.Allow(ClientIP(r))
			if !allowed {
				metrics.RecordLogin("throttled")
				seconds := int(math.Ceil(wait.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				envelope := errors.NewErrorEnvelope("RATE_LIMITED", "too many login attempts")
				envelope, _ = envelope.WithContext(map[string]interface{}{
					"remaining_seconds": seconds,
				})
				respondWithError(w, r, envelope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the request's remote host. Forwarding headers are only
// reflected here when the router installed chi's RealIP.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
