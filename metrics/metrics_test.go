package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m Meter) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	m, err := New(&Config{Enabled: false})
	require.NoError(t, err)
	assert.Equal(t, Discard(), m)

	m, err = New(NewDevDefaultConfig("metrics-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	_, ok := m.(*meterImpl)
	assert.True(t, ok)
}

func TestClientMetricsExport(t *testing.T) {
	m, err := New(NewDevDefaultConfig("metrics-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	cm, err := NewClientMetrics(m)
	require.NoError(t, err)

	ctx := context.Background()
	cm.ObserveAttempt(ctx, "get-user", 503, false)
	cm.ObserveAttempt(ctx, "get-user", 200, true)
	cm.ObserveCacheLookup(ctx, "get-user", false)
	cm.ObserveCall(ctx, "get-user", "GET", OutcomeSuccess, 120*time.Millisecond)
	cm.ObserveReject(ctx, "get-user", "users-api")

	out := scrape(t, m)
	assert.True(t, strings.Contains(out, MetricClientRequestsTotal), out)
	assert.Contains(t, out, MetricClientAttemptsTotal)
	assert.Contains(t, out, `status_class="5xx"`)
	assert.Contains(t, out, MetricClientCacheLookups)
	assert.Contains(t, out, MetricBreakerRejectsTotal)
	assert.Contains(t, out, MetricClientDurationSeconds)
}

func TestClientMetricsNilSafe(t *testing.T) {
	var cm *ClientMetrics
	cm.ObserveCall(context.Background(), "e", "GET", OutcomeError, time.Second)
	cm.ObserveAttempt(context.Background(), "e", 0, false)

	_, err := NewClientMetrics(nil)
	assert.Error(t, err)

	cm, err = NewClientMetrics(Discard())
	require.NoError(t, err)
	cm.ObserveCacheLookup(context.Background(), "e", true)
}

func TestHTTPStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", HTTPStatusClass(204))
	assert.Equal(t, "5xx", HTTPStatusClass(503))
	assert.Equal(t, "none", HTTPStatusClass(0))
}

func TestGaugeIncDec(t *testing.T) {
	m, err := New(NewDevDefaultConfig("metrics-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	g, err := m.Gauge("courier_test_inflight", "in flight")
	require.NoError(t, err)
	ctx := context.Background()
	g.Inc(ctx, L("endpoint", "a"))
	g.Inc(ctx, L("endpoint", "a"))
	g.Dec(ctx, L("endpoint", "a"))

	impl := g.(*gaugeImpl)
	assert.Equal(t, 1.0, impl.values["endpoint=a"])
}
