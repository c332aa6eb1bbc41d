package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/padillasconcrete/siteapi/internal/errors"
	"github.com/padillasconcrete/siteapi/internal/observability"
)

// proxiedMetricsHeaders are copied from the exporter response.
var proxiedMetricsHeaders = []string{"Content-Type", "Content-Encoding", "Content-Length"}

// metricsProxy serves the Prometheus exporter's output on the API port so a
// single scrape target covers the service.
type metricsProxy struct {
	client *http.Client
	// fallbackPort is used when the exporter did not report its own port.
	fallbackPort int
}

func newMetricsProxy(fallbackPort int) *metricsProxy {
	if fallbackPort == 0 {
		fallbackPort = 9090
	}
	return &metricsProxy{
		client:       &http.Client{Timeout: 5 * time.Second},
		fallbackPort: fallbackPort,
	}
}

func (p *metricsProxy) exporterURL() string {
	port := observability.GetMetricsPort()
	if port == 0 {
		port = p.fallbackPort
	}
	return fmt.Sprintf("http://127.0.0.1:%d/metrics", port)
}

func (p *metricsProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		HandleError(w, r, apperrors.NewServiceUnavailableError("Metrics exporter not initialized"))
		return
	}

	url := p.exporterURL()
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		HandleError(w, r, apperrors.WithDetails(
			apperrors.WrapInternal(r.Context(), err, "Unable to construct metrics request"),
			map[string]interface{}{"metrics_url": url}))
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		HandleError(w, r, apperrors.WithDetails(
			apperrors.WrapExternalService(r.Context(), err, "Prometheus exporter unavailable"),
			map[string]interface{}{"metrics_url": url}))
		return
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on exporter response

	for _, key := range proxiedMetricsHeaders {
		if v := resp.Header.Get(key); v != "" {
			w.Header().Set(key, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to write metrics response", zap.Error(err))
	}
}
