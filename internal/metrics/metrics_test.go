package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsExported(t *testing.T) {
	m, h, err := NewWithRegistry("ecoearn-test", prom.NewRegistry())
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordHTTPRequest(ctx, http.MethodGet, "/v1/pools", http.StatusOK, 15*time.Millisecond)
	m.RecordCacheHit(ctx, "eco:pool:agg")
	m.RecordCacheMiss(ctx, "eco:pool:agg")
	m.RecordProjection(ctx, "stake", true)
	m.RecordPoll(ctx, "p1", errors.New("boom"))
	m.IncrementStreams(ctx)
	m.DecrementStreams(ctx)

	body := scrape(t, h)
	for _, name := range []string{
		"eco_http_requests_total",
		"eco_http_duration_seconds",
		"eco_cache_hits_total",
		"eco_cache_misses_total",
		"eco_projections_total",
		"eco_pool_polls_total",
		"eco_countdown_streams",
	} {
		assert.Contains(t, body, name)
	}
	assert.Contains(t, body, `status="error"`)
	assert.Contains(t, body, `action="stake"`)
}
