// Package enrich delivers enrichment requests to the downstream
// market-data subsystem. The cascade gate guarantees deduplication; this
// package only transports requests.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
	"github.com/d28khalil/Bidnology-sub001/internal/resilience"
)

// Emitter hands an enrichment request to the downstream subsystem.
type Emitter interface {
	Emit(ctx context.Context, req model.EnrichmentRequest) error
}

// LogEmitter logs requests instead of delivering them. Used when no
// enrichment webhook is configured.
type LogEmitter struct{}

func (LogEmitter) Emit(_ context.Context, req model.EnrichmentRequest) error {
	zap.L().Info("enrichment request",
		zap.Int64("source_id", req.Identity.SourceID),
		zap.String("address", req.Identity.NormalizedAddress),
		zap.String("detail_hash", req.DetailHash),
		zap.String("outcome", string(req.Outcome)),
	)
	return nil
}

// HTTPEmitter POSTs requests as JSON to the enrichment webhook.
type HTTPEmitter struct {
	url    string
	client *http.Client
	retry  resilience.RetryConfig
}

// NewHTTPEmitter creates an emitter targeting the given webhook URL.
func NewHTTPEmitter(url string, timeout time.Duration) *HTTPEmitter {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPEmitter{
		url:    url,
		client: &http.Client{Timeout: timeout},
		retry:  resilience.DefaultRetryConfig(),
	}
}

func (e *HTTPEmitter) Emit(ctx context.Context, req model.EnrichmentRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return eris.Wrap(err, "enrich: marshal request")
	}

	cfg := e.retry
	cfg.OnRetry = resilience.RetryLogger("enrich", "emit")

	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
		if err != nil {
			return eris.Wrap(err, "enrich: build request")
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(httpReq)
		if err != nil {
			return eris.Wrapf(err, "enrich: post %s", e.url)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 300 {
			err := eris.Errorf("enrich: webhook returned %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return err
		}
		return nil
	})
}
