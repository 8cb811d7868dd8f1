package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"samco-bridge/internal/execution"
	"samco-bridge/internal/history"
	"samco-bridge/internal/instruments"
	redisstore "samco-bridge/internal/store/redis"
	"samco-bridge/pkg/samco"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	// Broker transport
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ThrottledRetries *prometheus.CounterVec
	LimiterWait      prometheus.Histogram

	// Instrument catalogue
	RefreshTotal    *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	Instruments     prometheus.Gauge
	DroppedRows     prometheus.Counter
	SkippedRows     prometheus.Counter
	CatalogueAge    prometheus.GaugeFunc

	// History
	HistoryBars *prometheus.CounterVec

	// Orders
	OrdersTotal *prometheus.CounterVec

	// Redis resilience
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
	BufferedBars        prometheus.Counter

	mu          sync.Mutex
	lastRefresh time.Time
}

// NewMetrics creates the metrics and registers them with reg.
// A nil reg means prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samco_requests_total",
			Help: "Broker responses by endpoint and HTTP status",
		}, []string{"endpoint", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "samco_request_duration_seconds",
			Help:    "Time of a single broker send, excluding limiter wait",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		ThrottledRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samco_throttled_retries_total",
			Help: "Requests re-sent after a 429 from the broker",
		}, []string{"endpoint"}),
		LimiterWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "samco_limiter_wait_seconds",
			Help:    "Time spent waiting for rate limiter admission",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}),

		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samco_catalogue_refresh_total",
			Help: "Scrip master refreshes by result (ok, error)",
		}, []string{"result"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "samco_catalogue_refresh_duration_seconds",
			Help:    "Duration of a scrip master refresh, download included",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
		Instruments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "samco_catalogue_instruments",
			Help: "Instruments in the live catalogue snapshot",
		}),
		DroppedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samco_catalogue_dropped_rows_total",
			Help: "Retained-exchange rows that could not be classified or were duplicates",
		}),
		SkippedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samco_catalogue_skipped_rows_total",
			Help: "Rows outside the retained exchanges and instrument classes",
		}),

		HistoryBars: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samco_history_bars_total",
			Help: "Bars yielded by history requests, by candle endpoint",
		}, []string{"endpoint"}),

		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samco_orders_total",
			Help: "Order actions by action and result status",
		}, []string{"action", "status"}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "samco_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"breaker"}),
		CircuitBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samco_redis_circuit_breaker_trips_total",
			Help: "Times a Redis circuit breaker tripped open",
		}, []string{"breaker"}),
		BufferedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samco_redis_buffered_bars_total",
			Help: "Bars buffered locally while the Redis circuit was open",
		}),
	}
	m.CatalogueAge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "samco_catalogue_age_seconds",
		Help: "Seconds since the last successful scrip master refresh",
	}, m.catalogueAge)

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ThrottledRetries,
		m.LimiterWait,
		m.RefreshTotal,
		m.RefreshDuration,
		m.Instruments,
		m.DroppedRows,
		m.SkippedRows,
		m.CatalogueAge,
		m.HistoryBars,
		m.OrdersTotal,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
		m.BufferedBars,
	)

	return m
}

func (m *Metrics) catalogueAge() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastRefresh.IsZero() {
		return 0
	}
	return time.Since(m.lastRefresh).Seconds()
}

// ExecutorHooks fills the metric hooks of an executor config.
func (m *Metrics) ExecutorHooks(cfg *samco.ExecutorConfig) {
	cfg.OnWait = func(d time.Duration) {
		m.LimiterWait.Observe(d.Seconds())
	}
	cfg.OnThrottle = func(endpoint string, _ int) {
		m.ThrottledRetries.WithLabelValues(endpoint).Inc()
	}
	cfg.OnResponse = func(endpoint string, status int, d time.Duration) {
		m.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
	}
}

// ObserveRefresh records one catalogue refresh.
func (m *Metrics) ObserveRefresh(s instruments.RefreshStats) {
	m.RefreshDuration.Observe(s.Duration.Seconds())
	if s.Err != nil {
		m.RefreshTotal.WithLabelValues("error").Inc()
		return
	}
	m.RefreshTotal.WithLabelValues("ok").Inc()
	m.Instruments.Set(float64(s.Instruments))
	m.DroppedRows.Add(float64(s.Dropped))
	m.SkippedRows.Add(float64(s.Skipped))

	m.mu.Lock()
	m.lastRefresh = time.Now()
	m.mu.Unlock()
}

// ObserveBars records the bars one history request yielded.
func (m *Metrics) ObserveBars(ep history.Endpoint, n int) {
	m.HistoryBars.WithLabelValues(ep.String()).Add(float64(n))
}

// ObserveOrder records one order action.
func (m *Metrics) ObserveOrder(r execution.OrderResult) {
	m.OrdersTotal.WithLabelValues(r.Action, r.Status).Inc()
}

// WatchBreaker chains a state-change callback onto cb.
func (m *Metrics) WatchBreaker(cb *redisstore.CircuitBreaker) {
	m.CircuitBreakerState.WithLabelValues(cb.Name()).Set(float64(cb.CurrentState()))
	prev := cb.OnStateChange
	cb.OnStateChange = func(name string, from, to redisstore.State) {
		if prev != nil {
			prev(name, from, to)
		}
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		if to == redisstore.StateOpen {
			m.CircuitBreakerTrips.WithLabelValues(name).Inc()
		}
	}
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	BrokerSession        bool      `json:"broker_session"`
	CatalogueLoadedAt    time.Time `json:"catalogue_loaded_at"`
	CatalogueInstruments int       `json:"catalogue_instruments"`
	LastRefreshError     string    `json:"last_refresh_error"`
	RedisEnabled         bool      `json:"redis_enabled"`
	RedisConnected       bool      `json:"redis_connected"`
	SQLiteEnabled        bool      `json:"sqlite_enabled"`
	SQLiteOK             bool      `json:"sqlite_ok"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetBrokerSession(v bool) {
	h.mu.Lock()
	h.BrokerSession = v
	h.mu.Unlock()
}

// SetRefresh records the outcome of a catalogue refresh.
func (h *HealthStatus) SetRefresh(s instruments.RefreshStats, loadedAt time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.Err != nil {
		h.LastRefreshError = s.Err.Error()
		return
	}
	h.LastRefreshError = ""
	h.CatalogueLoadedAt = loadedAt
	h.CatalogueInstruments = s.Instruments
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either of rdb and
// sqlDB may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Without a session or a catalogue nothing can be served.
	overallStatus := "healthy"
	httpCode := http.StatusOK
	if (h.RedisEnabled && !h.RedisConnected) || (h.SQLiteEnabled && !h.SQLiteOK) || h.LastRefreshError != "" {
		overallStatus = "degraded"
	}
	if !h.BrokerSession || h.CatalogueLoadedAt.IsZero() {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	catalogueAge := ""
	if !h.CatalogueLoadedAt.IsZero() {
		catalogueAge = time.Since(h.CatalogueLoadedAt).Round(time.Second).String()
	}

	status := struct {
		Status               string  `json:"status"`
		Uptime               string  `json:"uptime"`
		BrokerSession        bool    `json:"broker_session"`
		CatalogueLoadedAt    string  `json:"catalogue_loaded_at"`
		CatalogueAge         string  `json:"catalogue_age"`
		CatalogueInstruments int     `json:"catalogue_instruments"`
		LastRefreshError     string  `json:"last_refresh_error,omitempty"`
		RedisConnected       bool    `json:"redis_connected"`
		RedisLatencyMs       float64 `json:"redis_latency_ms"`
		SQLiteOK             bool    `json:"sqlite_ok"`
		SQLiteLatencyMs      float64 `json:"sqlite_latency_ms"`
		LastCheckAt          string  `json:"last_check_at"`
	}{
		Status:               overallStatus,
		Uptime:               time.Since(h.StartedAt).Round(time.Second).String(),
		BrokerSession:        h.BrokerSession,
		CatalogueLoadedAt:    h.CatalogueLoadedAt.Format(time.RFC3339),
		CatalogueAge:         catalogueAge,
		CatalogueInstruments: h.CatalogueInstruments,
		LastRefreshError:     h.LastRefreshError,
		RedisConnected:       h.RedisConnected,
		RedisLatencyMs:       h.RedisLatencyMs,
		SQLiteOK:             h.SQLiteOK,
		SQLiteLatencyMs:      h.SQLiteLatencyMs,
		LastCheckAt:          h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
