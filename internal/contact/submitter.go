package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Submitter delivers a payload to wherever contact requests are collected.
type Submitter interface {
	Submit(ctx context.Context, payload Payload) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, payload Payload) error

func (f SubmitterFunc) Submit(ctx context.Context, payload Payload) error {
	return f(ctx, payload)
}

// HTTPSubmitter POSTs payloads as JSON to a contact endpoint.
type HTTPSubmitter struct {
	Client   *http.Client
	Endpoint string
	// Honeypot is forwarded verbatim so server-side spam checks see it.
	Honeypot string
}

// RemoteError is a non-2xx response from the contact endpoint.
type RemoteError struct {
	Status           int
	Code             string
	Message          string
	RemainingSeconds int
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("contact endpoint returned %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("contact endpoint returned %d", e.Status)
}

type remoteEnvelope struct {
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *HTTPSubmitter) Submit(ctx context.Context, payload Payload) error {
	if s == nil || strings.TrimSpace(s.Endpoint) == "" {
		return errors.New("contact endpoint is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	body := struct {
		Payload
		Honeypot string `json:"honeypot,omitempty"`
	}{Payload: payload, Honeypot: s.Honeypot}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode contact payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if payload.UserAgent != "" {
		req.Header.Set("User-Agent", payload.UserAgent)
	}
	if payload.Language != "" {
		req.Header.Set("Accept-Language", payload.Language)
	}

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}

	return decodeRemoteError(resp)
}

func decodeRemoteError(resp *http.Response) error {
	remote := &RemoteError{Status: resp.StatusCode}

	var env remoteEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&env); err == nil && env.Error != nil {
		remote.Code = env.Error.Code
		remote.Message = env.Error.Message
		if v, ok := env.Error.Details["remaining_seconds"].(float64); ok {
			remote.RemainingSeconds = int(v)
		}
	}

	if remote.RemainingSeconds == 0 {
		if retry := resp.Header.Get("Retry-After"); retry != "" {
			if seconds, err := strconv.Atoi(strings.TrimSpace(retry)); err == nil {
				remote.RemainingSeconds = seconds
			}
		}
	}

	return remote
}
