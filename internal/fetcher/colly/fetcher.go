// Package collyfetcher implements the resilient page fetcher on top of gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/fetcher/tlsclient"
	"github.com/JakeFAU/inc-submissions-harvester/internal/metrics"
	"github.com/JakeFAU/inc-submissions-harvester/internal/policy/backoff"
	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

const defaultMaxBodyBytes = 64 << 20

// Config controls collector behavior.
type Config struct {
	UserAgents []string
	Timeout    time.Duration
	// MaxAttempts bounds the total number of requests per URL.
	MaxAttempts int
	Backoff     backoff.Policy
	// Fingerprint selects the spoofed TLS ClientHello; "none" uses the stock transport.
	Fingerprint  string
	MaxBodyBytes int
	// Transport overrides the transport chain, mainly for tests.
	Transport http.RoundTripper
}

// Waiter blocks until a host may be contacted.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher implements submission.Fetcher and submission.Downloader.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       Waiter
	logger        *zap.Logger
	pause         func(context.Context, time.Duration) error
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter Waiter, logger *zap.Logger) (*Fetcher, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = DefaultUserAgents
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := cfg.Transport
	if transport == nil {
		base, err := newBaseTransport(cfg.Fingerprint)
		if err != nil {
			return nil, err
		}
		transport = otelhttp.NewTransport(tlsclient.Decoding(base))
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.MaxBodySize = cfg.MaxBodyBytes
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
		logger:        logger.Named("fetcher"),
		pause:         backoff.Pause,
	}, nil
}

func newBaseTransport(fingerprint string) (http.RoundTripper, error) {
	if fingerprint == "none" {
		return http.DefaultTransport.(*http.Transport).Clone(), nil
	}
	tr, err := tlsclient.New(tlsclient.Config{Fingerprint: fingerprint})
	if err != nil {
		return nil, fmt.Errorf("build tls transport: %w", err)
	}
	return tr, nil
}

// Fetch retrieves rawURL, retrying transient failures with a randomized,
// increasing pause between attempts.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (submission.Page, error) {
	var (
		lastErr    error
		lastStatus int
		attempt    int
	)
	for attempt = 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := f.cfg.Backoff.Delay(attempt - 1)
			metrics.ObserveRetry(rawURL)
			f.logger.Debug("retrying fetch",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := f.pause(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, rawURL); err != nil {
				lastErr = err
				break
			}
		}

		page, status, err := f.attempt(ctx, rawURL)
		if err == nil {
			page.Attempts = attempt
			metrics.ObserveFetch(rawURL, "ok", len(page.Body))
			return page, nil
		}
		lastErr, lastStatus = err, status
		metrics.ObserveFetch(rawURL, outcomeLabel(status), 0)
		if !retryable(ctx, err) {
			break
		}
	}
	if attempt > f.cfg.MaxAttempts {
		attempt = f.cfg.MaxAttempts
	}
	return submission.Page{}, &submission.FetchError{
		URL:        rawURL,
		Attempts:   attempt,
		StatusCode: lastStatus,
		Err:        lastErr,
	}
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string) (submission.Page, int, error) {
	var (
		result   submission.Page
		status   int
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, pickUserAgent(f.cfg.UserAgents), start, &result, &status, &fetchErr)
	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return submission.Page{}, status, err
	}
	return result, result.StatusCode, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.SetRequestTimeout(f.cfg.Timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	userAgent string,
	start time.Time,
	result *submission.Page,
	status *int,
	fetchErr *error,
) {
	headers := browserHeaders(userAgent)
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			r.Headers.Del(key)
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		var hdr http.Header
		if r.Headers != nil {
			hdr = r.Headers.Clone()
		}
		*result = submission.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    hdr,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			*status = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// retryable reports whether another attempt may run. Every non-2xx status
// and network failure is retried; only cancellation stops early.
func retryable(ctx context.Context, err error) bool {
	return ctx.Err() == nil && !errors.Is(err, context.Canceled)
}

func outcomeLabel(status int) string {
	if status == 0 {
		return "error"
	}
	return fmt.Sprintf("%dxx", status/100)
}
