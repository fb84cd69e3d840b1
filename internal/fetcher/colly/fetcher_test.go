package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/policy/backoff"
	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

func newTestFetcher(t *testing.T, waiter Waiter) *Fetcher {
	t.Helper()
	f, err := New(Config{
		MaxAttempts: 3,
		Backoff:     backoff.Policy{Base: time.Millisecond, Max: 5 * time.Millisecond},
		Timeout:     5 * time.Second,
	}, waiter, zap.NewNop())
	require.NoError(t, err)
	return f
}

func TestFetchRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	page, err := newTestFetcher(t, nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Attempts)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "<html>ok</html>", string(page.Body))
}

func TestFetchGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, nil).Fetch(context.Background(), srv.URL)
	var fe *submission.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 3, fe.Attempts)
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchRetriesForbidden(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	page, err := newTestFetcher(t, nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Attempts)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, "<html>ok</html>", string(page.Body))
}

func TestFetchRetriesNotFoundUntilMaxAttempts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, nil).Fetch(context.Background(), srv.URL)
	var fe *submission.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 3, fe.Attempts)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchSendsBrowserHeaders(t *testing.T) {
	t.Parallel()

	seen := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Clone()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	h := <-seen
	assert.Contains(t, DefaultUserAgents, h.Get("User-Agent"))
	assert.Equal(t, "en-US,en;q=0.9", h.Get("Accept-Language"))
	assert.Equal(t, "navigate", h.Get("Sec-Fetch-Mode"))
	assert.Contains(t, h.Get("Accept"), "application/pdf")
}

func TestFetchWaitsOnLimiter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	waiter := &countingWaiter{}
	_, err := newTestFetcher(t, waiter).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(1), waiter.calls.Load())
}

func TestFetchStopsWhenLimiterFails(t *testing.T) {
	t.Parallel()

	waiter := &countingWaiter{err: context.Canceled}
	_, err := newTestFetcher(t, waiter).Fetch(context.Background(), "http://127.0.0.1:1/")
	require.ErrorIs(t, err, context.Canceled)
}

func TestDownloadRejectsNonPDFWithoutRequest(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, nil).Download(context.Background(), srv.URL+"/page.html")
	require.ErrorIs(t, err, submission.ErrNotPDF)
	assert.Zero(t, hits.Load())
}

func TestDownloadStripsQueryAndFragment(t *testing.T) {
	t.Parallel()

	seen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.URL.String()
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(t, nil).Download(context.Background(), srv.URL+"/docs/a.pdf?download=1#page=2")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(body))
	assert.Equal(t, "/docs/a.pdf", <-seen)
}

func TestPDFURL(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"https://x.org/a.pdf":          true,
		"https://x.org/a.PDF?x=1":      true,
		"https://x.org/a.pdf#page=3":   true,
		"https://x.org/a.docx":         false,
		"https://x.org/a.pdf.html?q=1": false,
	}
	for raw, ok := range cases {
		_, err := PDFURL(raw)
		if ok {
			assert.NoError(t, err, raw)
		} else {
			assert.ErrorIs(t, err, submission.ErrNotPDF, raw)
		}
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(t, nil)
	var (
		result   submission.Page
		status   int
		fetchErr error
	)
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, "agent/1.0", time.Unix(0, 0), &result, &status, &fetchErr)
	require.NotNil(t, hooks.onRequest)

	collyReq := &colly.Request{Headers: &http.Header{"User-Agent": {"colly"}}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "agent/1.0", collyReq.Headers.Get("User-Agent"))
	assert.Equal(t, []string{"agent/1.0"}, (*collyReq.Headers)["User-Agent"])

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	assert.Equal(t, "body", string(result.Body))
	assert.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(&colly.Response{StatusCode: http.StatusForbidden}, errors.New("Forbidden"))
	assert.Equal(t, http.StatusForbidden, status)
	assert.EqualError(t, fetchErr, "Forbidden")
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.True(t, retryable(ctx, errors.New("reset")))
	assert.True(t, retryable(ctx, errors.New("Forbidden")))
	assert.False(t, retryable(ctx, context.Canceled))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, retryable(canceled, errors.New("reset")))
}

type countingWaiter struct {
	calls atomic.Int32
	err   error
}

func (w *countingWaiter) Wait(context.Context, string) error {
	w.calls.Add(1)
	return w.err
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
