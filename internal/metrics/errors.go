package metrics

import (
	"strconv"

	"github.com/padillasconcrete/siteapi/internal/observability"
)

const (
	APIErrorsTotal = "api_errors_total"
	PanicsTotal    = "panics_total"
)

// RecordAPIError counts an error envelope written to a client. endpoint
// should be a route pattern, not a raw path, to keep label cardinality
// bounded by the router.
func RecordAPIError(endpoint, errorCode string, httpStatus int) {
	counter(APIErrorsTotal, map[string]string{
		"endpoint":    endpoint,
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordPanic counts a recovered handler panic.
func RecordPanic(endpoint string) {
	counter(PanicsTotal, map[string]string{"endpoint": endpoint})
}

func counter(name string, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, 1, labels)
	}
}
