package collector

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
	"github.com/d28khalil/Bidnology-sub001/internal/resilience"
)

// HTTPOptions configures the HTTP collector.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// RatePerSec and Burst bound requests per portal host.
	RatePerSec float64
	Burst      int
	Retry      resilience.RetryConfig
}

// HTTPCollector fetches portal pages over net/http with per-host rate
// limiting and retry, delegating extraction to a PageParser.
type HTTPCollector struct {
	client *http.Client
	opts   HTTPOptions
	parser PageParser

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTP creates an HTTPCollector.
func NewHTTP(parser PageParser, opts HTTPOptions) *HTTPCollector {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 2
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	return &HTTPCollector{
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		parser:   parser,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *HTTPCollector) ListPreviews(ctx context.Context, src model.Source) ([]model.ListingPreview, error) {
	if src.PortalURL == "" {
		return nil, eris.Errorf("collector: source %s has no portal url", src.TriggerName())
	}

	body, err := c.get(ctx, src.PortalURL)
	if err != nil {
		return nil, eris.Wrapf(err, "collector: list previews for %s", src.TriggerName())
	}

	previews, err := c.parser.ParseIndex(body)
	if err != nil {
		return nil, eris.Wrapf(err, "collector: parse index for %s", src.TriggerName())
	}
	zap.L().Debug("collector: listed previews",
		zap.String("source", src.TriggerName()),
		zap.Int("count", len(previews)),
	)
	return previews, nil
}

func (c *HTTPCollector) FetchDetail(ctx context.Context, src model.Source, preview model.ListingPreview) (*model.DetailPayload, error) {
	if preview.DetailURL == "" {
		return nil, &FetchError{URL: src.PortalURL, Err: eris.Errorf("no detail url for %q", preview.Address)}
	}

	body, err := c.get(ctx, preview.DetailURL)
	if err != nil {
		return nil, eris.Wrapf(err, "collector: fetch detail %q", preview.Address)
	}

	detail, err := c.parser.ParseDetail(body)
	if err != nil {
		return nil, eris.Wrapf(err, "collector: parse detail %q", preview.Address)
	}
	return detail, nil
}

// get performs a rate-limited, retried GET and returns the response body.
func (c *HTTPCollector) get(ctx context.Context, rawURL string) ([]byte, error) {
	limiter, err := c.limiterFor(rawURL)
	if err != nil {
		return nil, err
	}

	cfg := c.opts.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("collector", "get")
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrapf(err, "build request %s", rawURL)
		}
		if c.opts.UserAgent != "" {
			req.Header.Set("User-Agent", c.opts.UserAgent)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, &FetchError{URL: rawURL, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			fetchErr := &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(fetchErr, resp.StatusCode)
			}
			return nil, fetchErr
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &FetchError{URL: rawURL, Err: err}
		}
		return body, nil
	})
}

// limiterFor returns the shared per-host limiter for a URL.
func (c *HTTPCollector) limiterFor(rawURL string) (*rate.Limiter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "collector: parse url %s", rawURL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	limiter, ok := c.limiters[u.Host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(c.opts.RatePerSec), c.opts.Burst)
		c.limiters[u.Host] = limiter
	}
	return limiter, nil
}
