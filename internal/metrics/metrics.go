// Package metrics exposes Prometheus counters for provisioning and conversion runs.
//
// ebookcast is a short-lived CLI, so nothing is served over HTTP. The registry is
// flushed to a node-exporter textfile at the end of a run instead.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ebookcast"

// Metrics holds the collectors of one run on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	booksTotal   *prometheus.CounterVec
	bookDuration prometheus.Histogram
	zoneAttempts *prometheus.CounterVec
}

// New creates the collectors and registers them.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		booksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "books_total",
				Help:      "Total number of processed books by result",
			},
			[]string{"result"},
		),
		bookDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "book_duration_seconds",
				Help:      "Wall time spent on one book in seconds",
				Buckets:   prometheus.ExponentialBuckets(30, 2, 9), // 30s to ~2h
			},
		),
		zoneAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "zone_attempts_total",
				Help:      "Total number of instance creation attempts by outcome",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(m.booksTotal, m.bookDuration, m.zoneAttempts)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveBook records the result and duration of one book.
func (m *Metrics) ObserveBook(result string, d time.Duration) {
	m.booksTotal.WithLabelValues(result).Inc()
	m.bookDuration.Observe(d.Seconds())
}

// ObserveZoneAttempt records one zone attempt outcome.
func (m *Metrics) ObserveZoneAttempt(outcome string) {
	m.zoneAttempts.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes all metrics in the text exposition format.
// The file is written atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
