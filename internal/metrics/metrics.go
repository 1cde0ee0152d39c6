// Package metrics exposes collection counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handler struct {
	Registry *prometheus.Registry

	RunsTotal           *prometheus.CounterVec
	CollectionsTotal    *prometheus.CounterVec
	RecordsTotal        *prometheus.CounterVec
	FetchAttemptsTotal  *prometheus.CounterVec
	CollectorDuration   *prometheus.HistogramVec
	CollectorsInFlight  prometheus.Gauge
	LastRunTimestampSec prometheus.Gauge
}

// New registers the collection metrics on a fresh registry.
func New() *Handler {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Handler{
		Registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "routepipe_runs_total",
			Help: "The total number of collection runs",
		}, []string{"status"}),
		CollectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "routepipe_collections_total",
			Help: "The total number of collector executions",
		}, []string{"collector", "status"}),
		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "routepipe_records_total",
			Help: "Records processed by outcome",
		}, []string{"collector", "outcome"}),
		FetchAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "routepipe_fetch_attempts_total",
			Help: "Fetch attempts by result",
		}, []string{"collector", "result"}),
		CollectorDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "routepipe_collector_duration_seconds",
			Help:    "Wall time of one collector execution",
			Buckets: prometheus.DefBuckets,
		}, []string{"collector"}),
		CollectorsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "routepipe_collectors_in_flight",
			Help: "Collectors currently executing",
		}),
		LastRunTimestampSec: factory.NewGauge(prometheus.GaugeOpts{
			Name: "routepipe_last_run_timestamp_seconds",
			Help: "Unix time of the last finished run",
		}),
	}
}

// IncRun counts a finished run
func (h *Handler) IncRun(status string, at time.Time) {
	h.RunsTotal.WithLabelValues(status).Inc()
	h.LastRunTimestampSec.Set(float64(at.Unix()))
}

// ObserveCollection records one sealed collector result
func (h *Handler) ObserveCollection(collector, status string, duration time.Duration) {
	h.CollectionsTotal.WithLabelValues(collector, status).Inc()
	h.CollectorDuration.WithLabelValues(collector).Observe(duration.Seconds())
}

// AddRecords counts records of one outcome (accepted, rejected, duplicate)
func (h *Handler) AddRecords(collector, outcome string, n int) {
	if n == 0 {
		return
	}
	h.RecordsTotal.WithLabelValues(collector, outcome).Add(float64(n))
}

// IncAttempt counts a fetch attempt; result is "ok" or an error kind
func (h *Handler) IncAttempt(collector, result string) {
	h.FetchAttemptsTotal.WithLabelValues(collector, result).Inc()
}

// HTTPHandler serves the registry in the Prometheus text format.
func (h *Handler) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(h.Registry, promhttp.HandlerOpts{})
}
