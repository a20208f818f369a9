// Package metrics exposes Prometheus metrics for the settlement jobs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector is what the jobs report to.
type MetricsCollector interface {
	RecordJobRun(job string, duration time.Duration, applied, skipped, failed int)
	RecordPointDelta(reason string, delta int)
}

// Collector records into Prometheus.
type Collector struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	records     *prometheus.CounterVec
	credited    *prometheus.CounterVec
	debited     *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_job_runs_total",
			Help: "Completed settlement job runs.",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settlement_job_duration_seconds",
			Help:    "Wall time of a settlement job run.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 1800},
		}, []string{"job"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_records_total",
			Help: "Candidate records processed, by outcome (applied, skipped, failed).",
		}, []string{"job", "outcome"}),
		credited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_points_credited_total",
			Help: "Points added to user balances.",
		}, []string{"reason"}),
		debited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_points_debited_total",
			Help: "Points removed from user balances.",
		}, []string{"reason"}),
	}

	reg.MustRegister(c.jobRuns, c.jobDuration, c.records, c.credited, c.debited)
	return c
}

func (c *Collector) RecordJobRun(job string, duration time.Duration, applied, skipped, failed int) {
	c.jobRuns.WithLabelValues(job).Inc()
	c.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	c.records.WithLabelValues(job, "applied").Add(float64(applied))
	c.records.WithLabelValues(job, "skipped").Add(float64(skipped))
	c.records.WithLabelValues(job, "failed").Add(float64(failed))
}

func (c *Collector) RecordPointDelta(reason string, delta int) {
	switch {
	case delta > 0:
		c.credited.WithLabelValues(reason).Add(float64(delta))
	case delta < 0:
		c.debited.WithLabelValues(reason).Add(float64(-delta))
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordJobRun(string, time.Duration, int, int, int) {}
func (Nop) RecordPointDelta(string, int)                      {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
