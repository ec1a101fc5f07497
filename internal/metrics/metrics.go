// Package metrics owns the Prometheus collectors every binary exposes on
// /metrics. All methods are safe on a nil *Metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "darehouse"

type Metrics struct {
	registry *prometheus.Registry

	transitions     *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	openBets        *prometheus.GaugeVec
	projected       *prometheus.CounterVec
	projectionSeq   prometheus.Gauge
	identityLookups *prometheus.CounterVec
	claims          *prometheus.CounterVec
	deposits        *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bet_transitions_total",
			Help:      "Lifecycle operations by action and result.",
		}, []string{"action", "result"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bet_settlements_total",
			Help:      "Closed bets by final status.",
		}, []string{"status"}),
		openBets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bets_open",
			Help:      "Bets not yet closed, by stored status.",
		}, []string{"status"}),
		projected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projector_events_total",
			Help:      "Events seen by the projector, applied or duplicate.",
		}, []string{"result"}),
		projectionSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "projector_last_seq",
			Help:      "Highest event seq mirrored.",
		}),
		identityLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_lookups_total",
			Help:      "Identity lookups by source and result.",
		}, []string{"source", "result"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_claims_total",
			Help:      "Claims attempted by the watcher.",
		}, []string{"result"}),
		deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_total",
			Help:      "Incoming chain transfers by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transitions, m.settlements, m.openBets, m.projected, m.projectionSeq,
		m.identityLookups, m.claims, m.deposits, m.httpRequests, m.httpLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Transition(action, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) Settled(status string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(status).Inc()
}

// SetOpenBets replaces the open-bets gauge with counts.
func (m *Metrics) SetOpenBets(counts map[string]int64) {
	if m == nil {
		return
	}
	m.openBets.Reset()
	for status, n := range counts {
		m.openBets.WithLabelValues(status).Set(float64(n))
	}
}

func (m *Metrics) Projected(applied bool, seq int64) {
	if m == nil {
		return
	}
	result := "duplicate"
	if applied {
		result = "applied"
	}
	m.projected.WithLabelValues(result).Inc()
	m.projectionSeq.Set(float64(seq))
}

func (m *Metrics) IdentityLookup(source, result string) {
	if m == nil {
		return
	}
	m.identityLookups.WithLabelValues(source, result).Inc()
}

func (m *Metrics) Claim(result string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(result).Inc()
}

func (m *Metrics) Deposit(result string) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(result).Inc()
}

func (m *Metrics) HTTPRequest(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Serve exposes /metrics on addr until ctx is done. Binaries without an HTTP
// API use it; the API mounts Handler on its own router.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server failed", zap.Error(err))
	}
}
