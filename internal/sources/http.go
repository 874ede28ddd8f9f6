package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/mr1hm/go-quake-safety/internal/telemetry"
)

const defaultUserAgent = "go-quake-safety/1.0"

// ErrUpstream marks failures talking to an external data source.
var ErrUpstream = errors.New("upstream request failed")

type Options struct {
	Timeout   time.Duration
	RPS       float64 // outbound requests per second, 0 disables pacing
	UserAgent string
	Metrics   *telemetry.Metrics
}

// requester paces and times outbound calls for one upstream.
type requester struct {
	name      string
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	metrics   *telemetry.Metrics
}

func newRequester(name string, opts Options) *requester {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	r := &requester{
		name:      name,
		client:    &http.Client{Timeout: timeout},
		userAgent: ua,
		metrics:   opts.Metrics,
	}
	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return r
}

// do sends req and returns the body of a 200 response. A 204 yields a nil body.
func (r *requester) do(req *http.Request) ([]byte, error) {
	body, err := r.send(req)
	if err != nil && r.metrics != nil {
		r.metrics.UpstreamErrors.WithLabelValues(r.name).Inc()
	}
	return body, err
}

func (r *requester) send(req *http.Request) ([]byte, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("%w: %s: rate limiter: %w", ErrUpstream, r.name, err)
		}
	}
	req.Header.Set("User-Agent", r.userAgent)

	start := time.Now()
	resp, err := r.client.Do(req)
	if r.metrics != nil {
		r.metrics.UpstreamLatency.WithLabelValues(r.name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: error doing request: %w", ErrUpstream, r.name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s: unexpected status code: %d - status: %s", ErrUpstream, r.name, resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: error reading resp.Body: %w", ErrUpstream, r.name, err)
	}
	return body, nil
}

func newGet(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	return req, nil
}
