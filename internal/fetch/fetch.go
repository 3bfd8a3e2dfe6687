// Package fetch downloads pages from the stats host behind one shared
// politeness limiter.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tyler180/fbref-backends/internal/metrics"
)

const DefaultUserAgent = "Mozilla/5.0 (compatible; FBrefStatsBot/1.0; +https://example.com/bot)"

// TransientError marks failures that the retry wrapper may repeat: network
// errors, 429 and 5xx responses.
type TransientError struct {
	URL        string
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

func (e *TransientError) Unwrap() error   { return e.Err }
func (e *TransientError) Transient() bool { return true }

// Backoff is the server's Retry-After, zero when absent.
func (e *TransientError) Backoff() time.Duration { return e.RetryAfter }

// StatusError is a non-retryable HTTP status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d for %s", e.Status, e.URL)
}

type Options struct {
	Delay     time.Duration // minimum spacing between requests across all callers
	Timeout   time.Duration
	UserAgent string
	Referer   string
	Client    *http.Client
	Logger    *slog.Logger
}

// Fetcher is safe for concurrent use; every caller waits on the same limiter,
// so the aggregate rate never exceeds one request per Delay.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	ua      string
	referer string
	logger  *slog.Logger
}

func New(o Options) *Fetcher {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if o.Delay > 0 {
		lim = rate.NewLimiter(rate.Every(o.Delay), 1)
	}
	return &Fetcher{client: o.Client, limiter: lim, ua: o.UserAgent, referer: o.Referer, logger: o.Logger}
}

// Fetch returns the page body. It does not retry.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	start := time.Now()
	defer func() { metrics.FetchDuration.Observe(time.Since(start).Seconds()) }()

	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}

	f.logger.Debug("GET", "url", url)
	resp, err := f.client.Do(req)
	if err != nil {
		metrics.PagesFetched.WithLabelValues("transport_error").Inc()
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TransientError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			metrics.PagesFetched.WithLabelValues("transport_error").Inc()
			return "", &TransientError{URL: url, Err: err}
		}
		metrics.PagesFetched.WithLabelValues("ok").Inc()
		return string(b), nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		metrics.PagesFetched.WithLabelValues("retryable_status").Inc()
		return "", &TransientError{
			URL:        url,
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}

	default:
		metrics.PagesFetched.WithLabelValues("status").Inc()
		return "", &StatusError{URL: url, Status: resp.StatusCode}
	}
}

func parseRetryAfter(h string) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
