// Package metrics holds the Prometheus collectors for the agent server and
// the query tool.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a set of collectors registered on one registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tasksTotal         *prometheus.CounterVec
	toolEventsTotal    *prometheus.CounterVec
	kustoQueriesTotal  *prometheus.CounterVec
	kustoQueryDuration prometheus.Histogram
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kubeagent_tasks_total",
				Help: "Tasks that reached a terminal state, by state",
			},
			[]string{"state"},
		),
		toolEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kubeagent_tool_events_total",
				Help: "Tool executions reported to clients, by tool name",
			},
			[]string{"tool"},
		),
		kustoQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kubeagent_kusto_queries_total",
				Help: "Application Insights queries, by result",
			},
			[]string{"result"},
		),
		kustoQueryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kubeagent_kusto_query_duration_seconds",
				Help:    "Duration of Application Insights query calls",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tasksTotal,
		m.toolEventsTotal,
		m.kustoQueriesTotal,
		m.kustoQueryDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTask counts a task reaching a terminal state.
func (m *Metrics) RecordTask(state string) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(state).Inc()
}

// RecordToolEvent counts one "Executing <tool>..." progress update.
func (m *Metrics) RecordToolEvent(tool string) {
	if m == nil {
		return
	}
	m.toolEventsTotal.WithLabelValues(tool).Inc()
}

// RecordKustoQuery counts a query and observes its duration.
// Result is "ok" or "error".
func (m *Metrics) RecordKustoQuery(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.kustoQueriesTotal.WithLabelValues(result).Inc()
	m.kustoQueryDuration.Observe(d.Seconds())
}
