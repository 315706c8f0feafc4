package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the execution engine.
type Metrics struct {
	MessagesTotal   *prometheus.CounterVec // labels: type
	DecodeFailures  prometheus.Counter
	SignalsTotal    prometheus.Counter
	SignalsRejected *prometheus.CounterVec // labels: stage
	OrdersSubmitted prometheus.Counter
	OrderErrors     prometheus.Counter
	FillsTotal      prometheus.Counter

	SubmitDur prometheus.Histogram

	// Portfolio state
	TotalPnL        prometheus.Gauge
	DailyPnL        prometheus.Gauge
	TotalExposure   prometheus.Gauge
	CurrentDrawdown prometheus.Gauge
	PendingOrders   prometheus.Gauge

	// Quote feed
	FeedReconnects prometheus.Counter
	PriceUpdates   prometheus.Counter

	// Broker bridge
	BridgeReconnects prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "execd_messages_total",
			Help: "Total messages received from the signal channel (by type)",
		}, []string{"type"}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execd_decode_failures_total",
			Help: "Messages dropped due to decode or validation failure",
		}),
		SignalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execd_signals_total",
			Help: "Trade signals dispatched to the order manager",
		}),
		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "execd_signals_rejected_total",
			Help: "Signals and orders rejected (by stage)",
		}, []string{"stage"}),
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execd_orders_submitted_total",
			Help: "Orders handed to the broker",
		}),
		OrderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execd_order_errors_total",
			Help: "Broker error callbacks received",
		}),
		FillsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execd_fills_total",
			Help: "Fill callbacks applied to the position book",
		}),

		SubmitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "execd_submit_duration_seconds",
			Help:    "Signal-to-broker submission latency",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),

		TotalPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execd_total_pnl",
			Help: "Total P&L (realized + unrealized)",
		}),
		DailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execd_daily_pnl",
			Help: "P&L accumulated in the current daily window",
		}),
		TotalExposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execd_total_exposure",
			Help: "Gross exposure across all open positions",
		}),
		CurrentDrawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execd_current_drawdown_pct",
			Help: "Current drawdown from peak portfolio value (percent)",
		}),
		PendingOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execd_pending_orders",
			Help: "Orders submitted and awaiting a terminal status",
		}),

		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execd_feed_reconnects_total",
			Help: "Quote feed websocket reconnection attempts",
		}),
		PriceUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execd_price_updates_total",
			Help: "Price snapshots applied to the position book",
		}),

		BridgeReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execd_bridge_reconnects_total",
			Help: "Broker bridge websocket reconnection attempts",
		}),
	}

	prometheus.MustRegister(
		m.MessagesTotal,
		m.DecodeFailures,
		m.SignalsTotal,
		m.SignalsRejected,
		m.OrdersSubmitted,
		m.OrderErrors,
		m.FillsTotal,
		m.SubmitDur,
		m.TotalPnL,
		m.DailyPnL,
		m.TotalExposure,
		m.CurrentDrawdown,
		m.PendingOrders,
		m.FeedReconnects,
		m.PriceUpdates,
		m.BridgeReconnects,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected  bool      `json:"redis_connected"`
	BrokerConnected bool      `json:"broker_connected"`
	FeedConnected   bool      `json:"feed_connected"`
	SQLiteOK        bool      `json:"sqlite_ok"`
	TradingHalted   bool      `json:"trading_halted"`
	LastSignalTime  time.Time `json:"last_signal_time"`
	LastHeartbeat   time.Time `json:"last_heartbeat"`

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

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetBrokerConnected(v bool) {
	h.mu.Lock()
	h.BrokerConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetTradingHalted(v bool) {
	h.mu.Lock()
	h.TradingHalted = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastSignalTime(t time.Time) {
	h.mu.Lock()
	h.LastSignalTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastHeartbeat(t time.Time) {
	h.mu.Lock()
	h.LastHeartbeat = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
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

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.RedisConnected || !h.BrokerConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.BrokerConnected {
		overallStatus = "unhealthy"
	}

	signalAge := ""
	if !h.LastSignalTime.IsZero() {
		signalAge = time.Since(h.LastSignalTime).Round(time.Millisecond).String()
	}
	heartbeatAge := ""
	if !h.LastHeartbeat.IsZero() {
		heartbeatAge = time.Since(h.LastHeartbeat).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		BrokerConnected bool    `json:"broker_connected"`
		FeedConnected   bool    `json:"feed_connected"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		TradingHalted   bool    `json:"trading_halted"`
		SignalAge       string  `json:"signal_age"`
		HeartbeatAge    string  `json:"heartbeat_age"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		BrokerConnected: h.BrokerConnected,
		FeedConnected:   h.FeedConnected,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		TradingHalted:   h.TradingHalted,
		SignalAge:       signalAge,
		HeartbeatAge:    heartbeatAge,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
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
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
