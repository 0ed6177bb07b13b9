// Package metrics exposes imgdrop counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	drops        *prometheus.CounterVec
	fetchedBytes prometheus.Counter
	copies       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imgdrop",
			Name:      "drops_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		fetchedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imgdrop",
			Name:      "fetched_bytes_total",
			Help:      "Image bytes downloaded.",
		}),
		copies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imgdrop",
			Name:      "clipboard_copies_total",
			Help:      "Clipboard copy attempts by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.drops, m.fetchedBytes, m.copies)
	return m
}

func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.drops.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveFetch(bytes int) {
	if m == nil {
		return
	}
	m.fetchedBytes.Add(float64(bytes))
}

func (m *Metrics) ObserveCopy(result string) {
	if m == nil {
		return
	}
	m.copies.WithLabelValues(result).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
