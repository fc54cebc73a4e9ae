// Package diag exposes a local-only HTTP surface for health and
// metrics: /healthz (provider connectivity) and /metrics (Prometheus).
//
// Grounded on internal/api/server.go's router construction (go-chi/chi)
// and internal/api/metrics.go's registry setup, narrowed here from a
// multi-tenant API surface to a single vault's sync diagnostics.
package diag

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ConnectivityChecker is the subset of orchestrator.Orchestrator the
// health handler depends on, kept narrow so diag doesn't import
// orchestrator directly.
type ConnectivityChecker interface {
	TestConnectivity(ctx context.Context, provider string) error
}

// Metrics is the process-wide Prometheus registry for sync activity.
// One Metrics is shared by every provider's Executor/Orchestrator run.
type Metrics struct {
	ScenariosTotal   *prometheus.CounterVec
	ScenarioFailures *prometheus.CounterVec
	SyncDuration     *prometheus.HistogramVec
	registry         *prometheus.Registry
}

// NewMetrics builds a fresh registry with the sync counters registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		ScenariosTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudsync_scenarios_total",
			Help: "Scenarios executed, by provider and rule.",
		}, []string{"provider", "rule"}),
		ScenarioFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudsync_scenario_failures_total",
			Help: "Scenarios that returned an error, by provider and rule.",
		}, []string{"provider", "rule"}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cloudsync_sync_duration_seconds",
			Help:    "Wall-clock duration of one provider's RunSync pass.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		registry: reg,
	}
	reg.MustRegister(m.ScenariosTotal, m.ScenarioFailures, m.SyncDuration)
	return m
}

// Server hosts /healthz and /metrics for one vault's diagnostics.
type Server struct {
	providers []string
	checker   ConnectivityChecker
	metrics   *Metrics

	mu        sync.RWMutex
	lastSync  map[string]time.Time
	lastError map[string]string
}

// New builds a diag Server. providers lists the enabled provider names
// to probe on /healthz; checker performs the actual connectivity test.
func New(providers []string, checker ConnectivityChecker, metrics *Metrics) *Server {
	return &Server{
		providers: providers,
		checker:   checker,
		metrics:   metrics,
		lastSync:  map[string]time.Time{},
		lastError: map[string]string{},
	}
}

// RecordSync stores each provider's last sync time and last error,
// called by the Orchestrator after each provider's RunSync completes.
// /healthz does not include these values; it reports only the live
// connectivity probe.
func (s *Server) RecordSync(provider string, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync[provider] = at
	if err != nil {
		s.lastError[provider] = err.Error()
	} else {
		delete(s.lastError, provider)
	}
}

type healthReport struct {
	Status    string            `json:"status"`
	Providers map[string]string `json:"providers"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	out := healthReport{Status: "ok", Providers: map[string]string{}}

	for _, name := range s.providers {
		if err := s.checker.TestConnectivity(r.Context(), name); err != nil {
			out.Status = "degraded"
			out.Providers[name] = err.Error()
			continue
		}
		out.Providers[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if out.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(out)
}

// Router builds the chi router serving /healthz and /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	return r
}
