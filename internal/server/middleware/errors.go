package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/padillasconcrete/siteapi/internal/metrics"
)

var errorResponder = func(w http.ResponseWriter, r *http.Request, err error) {
	envelope, ok := err.(*errors.ErrorEnvelope)
	if !ok || envelope == nil {
		envelope = errors.NewErrorEnvelope("INTERNAL_ERROR", "unexpected error")
	}
	writeErrorResponse(w, envelope.WithCorrelationID(GetRequestID(r.Context())), statusForCode(envelope.Code))
}

// SetErrorResponder lets the server route middleware errors through the
// central error handler, which this package cannot import.
func SetErrorResponder(responder func(http.ResponseWriter, *http.Request, error)) {
	if responder != nil {
		errorResponder = responder
	}
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	errorResponder(w, r, err)
}

func statusForCode(code string) int {
	switch code {
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	case "FORBIDDEN":
		return http.StatusForbidden
	case "RATE_LIMITED":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Recovery middleware recovers from panics and logs them
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				panicErr := errors.NewErrorEnvelope("INTERNAL_ERROR", "internal server error").
					WithCorrelationID(GetRequestID(r.Context()))
				panicErr, _ = panicErr.WithContext(map[string]interface{}{
					"panic":       fmt.Sprint(err),
					"stack_trace": string(debug.Stack()),
				})
				panicErr, _ = panicErr.WithSeverity(errors.SeverityCritical)

				metrics.RecordPanic(endpointLabel(r))

				writeErrorResponse(w, panicErr, http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// ErrorResponse structure per API standards
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// writeErrorResponse writes the envelope without the central handler. Panic
// context stays in logs and is not echoed to callers.
func writeErrorResponse(w http.ResponseWriter, envelope *errors.ErrorEnvelope, statusCode int) {
	details := map[string]interface{}{}
	for k, v := range envelope.Details {
		details[k] = v
	}
	if statusCode < http.StatusInternalServerError {
		for k, v := range envelope.Context {
			details[k] = v
		}
	}
	if len(details) == 0 {
		details = nil
	}

	response := ErrorResponse{
		Error: ErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   details,
			RequestID: envelope.CorrelationID,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}
