package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"samco-bridge/internal/execution"
	"samco-bridge/internal/history"
	"samco-bridge/internal/instruments"
	redisstore "samco-bridge/internal/store/redis"
	"samco-bridge/pkg/samco"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRefresh(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveRefresh(instruments.RefreshStats{Duration: 2 * time.Second, Instruments: 1200, Skipped: 40, Dropped: 3})
	m.ObserveRefresh(instruments.RefreshStats{Duration: time.Second, Err: errors.New("boom")})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshTotal.WithLabelValues("error")))
	// a failed refresh leaves the gauge at the last good snapshot
	assert.Equal(t, 1200.0, testutil.ToFloat64(m.Instruments))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DroppedRows))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.SkippedRows))
}

func TestExecutorHooks(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	var cfg samco.ExecutorConfig
	m.ExecutorHooks(&cfg)

	cfg.OnResponse("GET /quote/getQuote", 200, 50*time.Millisecond)
	cfg.OnResponse("GET /quote/getQuote", 429, 10*time.Millisecond)
	cfg.OnThrottle("GET /quote/getQuote", 2)
	cfg.OnWait(100 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET /quote/getQuote", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET /quote/getQuote", "429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ThrottledRetries.WithLabelValues("GET /quote/getQuote")))
}

func TestObserveBarsAndOrders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveBars(history.EndpointIndexHistorical, 250)
	m.ObserveBars(history.EndpointIndexHistorical, 5)
	m.ObserveOrder(execution.OrderResult{Action: "place", Status: execution.StatusPlaced})

	assert.Equal(t, 255.0, testutil.ToFloat64(m.HistoryBars.WithLabelValues(history.EndpointIndexHistorical.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersTotal.WithLabelValues("place", execution.StatusPlaced)))
}

func TestWatchBreaker(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	cb := redisstore.NewCircuitBreaker("catalogue", 1, time.Hour)

	var seen []redisstore.State
	cb.OnStateChange = func(_ string, _, to redisstore.State) { seen = append(seen, to) }
	m.WatchBreaker(cb)

	_ = cb.Execute(func() error { return errors.New("down") })

	assert.Equal(t, []redisstore.State{redisstore.StateOpen}, seen)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("catalogue")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerTrips.WithLabelValues("catalogue")))
}

func TestHealthStatus_ServeHTTP(t *testing.T) {
	h := NewHealthStatus()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SetBrokerSession(true)
	h.SetRefresh(instruments.RefreshStats{Instruments: 42}, time.Now())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status      string `json:"status"`
		Instruments int    `json:"catalogue_instruments"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, 42, body.Instruments)

	h.SetRefresh(instruments.RefreshStats{Err: errors.New("fetch failed")}, time.Time{})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, 42, body.Instruments)
}
