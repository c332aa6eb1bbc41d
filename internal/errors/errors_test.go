package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusFromCode(t *testing.T) {
	cases := map[string]int{
		CodeValidationFailed:   http.StatusBadRequest,
		CodeSubmissionRejected: http.StatusBadRequest,
		CodeRateLimited:        http.StatusTooManyRequests,
		CodeUnauthorized:       http.StatusUnauthorized,
		CodeForbidden:          http.StatusForbidden,
		CodeConflict:           http.StatusConflict,
		CodePayloadTooLarge:    http.StatusRequestEntityTooLarge,
		CodeExternalService:    http.StatusBadGateway,
		CodeServiceUnavailable: http.StatusServiceUnavailable,
		"SOMETHING_ELSE":       http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) HTTPErrorResponse {
	t.Helper()
	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRespondWithEnvelope_RateLimited(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
	rec := httptest.NewRecorder()

	RespondWithEnvelope(rec, req, NewRateLimitedError("too many submissions", 42))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))

	body := decodeResponse(t, rec)
	assert.Equal(t, CodeRateLimited, body.Error.Code)
	assert.EqualValues(t, 42, body.Error.Details["remaining_seconds"])
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestWithDetails_KeepsNestedValues(t *testing.T) {
	env := WithDetails(NewValidationError("invalid form"), map[string]interface{}{
		"messageKey": "contact.form.validationError",
		"errors": map[string]string{
			"email": "validation.emailError",
			"phone": "validation.phoneError",
		},
		"failing": []string{"email", "phone"},
	})
	env = WithDetails(env, map[string]interface{}{"attempt": 2})

	rec := httptest.NewRecorder()
	RespondWithEnvelope(rec, httptest.NewRequest(http.MethodPost, "/api/contact", nil), env)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeResponse(t, rec)
	assert.Equal(t, "contact.form.validationError", body.Error.Details["messageKey"])
	assert.EqualValues(t, 2, body.Error.Details["attempt"])
	assert.Equal(t, []interface{}{"email", "phone"}, body.Error.Details["failing"])

	fields, ok := body.Error.Details["errors"].(map[string]interface{})
	require.True(t, ok, "details.errors should be an object")
	assert.Equal(t, "validation.emailError", fields["email"])
	assert.Equal(t, "validation.phoneError", fields["phone"])
}

func TestRespondWithEnvelope_SubmissionRejectedIsGeneric(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithEnvelope(rec, httptest.NewRequest(http.MethodPost, "/api/contact", nil), NewSubmissionRejectedError())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeResponse(t, rec)
	assert.Equal(t, CodeSubmissionRejected, body.Error.Code)
	assert.NotContains(t, body.Error.Message, "honeypot")
	assert.Nil(t, body.Error.Details)
}

func TestRespondWithError_HidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	env := WrapDatabaseError(context.Background(), stderrors.New("disk I/O error at /var/lib/siteapi.db"), "failed to save message")

	RespondWithError(rec, httptest.NewRequest(http.MethodPost, "/api/contact", nil), env)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeResponse(t, rec)
	assert.Equal(t, CodeDatabase, body.Error.Code)
	assert.NotContains(t, rec.Body.String(), "/var/lib")
}

func TestRespondWithError_PlainErrorBecomesInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithError(rec, nil, stderrors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeInternal, decodeResponse(t, rec).Error.Code)
}

func TestWrapValidationErrorKeepsCause(t *testing.T) {
	env := WrapValidationError(context.Background(), stderrors.New("name: too short"), "invalid user")
	details := ResponseDetails(env)
	require.NotNil(t, details)
	assert.Equal(t, "name: too short", details["wrapped_error"])
	assert.NotEmpty(t, env.CorrelationID)
}

func TestEnsureEnvelope(t *testing.T) {
	validation := NewValidationError("bad form")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"envelope", validation, CodeValidationFailed},
		{"wrapped envelope", fmt.Errorf("submit: %w", validation), CodeValidationFailed},
		{"deadline", fmt.Errorf("notify: %w", context.DeadlineExceeded), CodeTimeout},
		{"body too large", &http.MaxBytesError{Limit: 10}, CodePayloadTooLarge},
		{"plain", stderrors.New("boom"), CodeInternal},
		{"nil", nil, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EnsureEnvelope(tt.err).Code)
		})
	}
}

func TestRespondWithError_TimeoutIsGatewayTimeout(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithError(rec, httptest.NewRequest(http.MethodPost, "/api/contact", nil), context.DeadlineExceeded)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.NotContains(t, rec.Body.String(), "deadline exceeded")
}
