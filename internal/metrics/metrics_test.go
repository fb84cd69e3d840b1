package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeHost(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://Resolutions.UNEP.org/path", "resolutions.unep.org"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, SanitizeHost(tc.input))
		})
	}
}

func TestObserveCounters(t *testing.T) {
	Init()

	before := testutil.ToFloat64(fetchTotal.WithLabelValues("counter.test", "ok"))
	ObserveFetch("https://counter.test/a", "ok", 10)
	assert.InDelta(t, before+1, testutil.ToFloat64(fetchTotal.WithLabelValues("counter.test", "ok")), 0.001)

	ObserveCandidates("counter-session", 3)
	assert.InDelta(t, 3, testutil.ToFloat64(candidatesTotal.WithLabelValues("counter-session")), 0.001)

	ObserveRetry("https://counter.test/a")
	ObserveParseFailure("counter-session", "date")
	ObserveTaxonomyMiss("author")
	ObserveRecordsWritten("counter-session", 2)
	ObserveRun("counter-session", "succeeded", time.Second)
	ObserveRateLimitDelay("counter.test", time.Millisecond)
	assert.InDelta(t, 2, testutil.ToFloat64(recordsWrittenTotal.WithLabelValues("counter-session")), 0.001)
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/probe", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418")), 1.0)
}
