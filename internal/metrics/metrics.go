// Package metrics exposes Prometheus collectors for the ticket workflow.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ticketbot"

// Worker outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomePanic    = "panic"
	OutcomeRejected = "rejected"
)

// Metrics holds every collector on its own registry.
type Metrics struct {
	reg *prometheus.Registry

	Reactions      *prometheus.CounterVec
	Workers        *prometheus.CounterVec
	WorkerDuration *prometheus.HistogramVec
	InFlight       prometheus.Gauge
	Issues         *prometheus.CounterVec
	Attachments    *prometheus.CounterVec
	LLMTokens      *prometheus.CounterVec
	DraftsExpired  prometheus.Counter
}

// New registers the collectors on a fresh registry, along with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		Reactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_total",
			Help:      "Trigger reactions received, by reaction and mode.",
		}, []string{"reaction", "mode"}),
		Workers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_total",
			Help:      "Background workers finished, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		WorkerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_duration_seconds",
			Help:      "Background worker run time.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"kind"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_in_flight",
			Help:      "Background workers currently running.",
		}),
		Issues: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_created_total",
			Help:      "Jira issues created, by mode.",
		}, []string{"mode"}),
		Attachments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_total",
			Help:      "Files copied to Jira, by result.",
		}, []string{"result"}),
		LLMTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Language model tokens used, by provider and direction.",
		}, []string{"provider", "direction"}),
		DraftsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drafts_expired_total",
			Help:      "Drafts removed by the TTL sweeper.",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// WorkerStarted marks a worker as running and returns a func that records
// its outcome. A nil Metrics records nothing.
func (m *Metrics) WorkerStarted(kind string) func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.InFlight.Inc()
	return func(outcome string) {
		m.InFlight.Dec()
		m.WorkerDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		m.Workers.WithLabelValues(kind, outcome).Inc()
	}
}

// WorkerRejected records a worker that was not started.
func (m *Metrics) WorkerRejected(kind string) {
	if m == nil {
		return
	}
	m.Workers.WithLabelValues(kind, OutcomeRejected).Inc()
}

// ObserveReaction records a trigger reaction.
func (m *Metrics) ObserveReaction(reaction, mode string) {
	if m == nil {
		return
	}
	m.Reactions.WithLabelValues(reaction, mode).Inc()
}

// ObserveIssue records a created Jira issue.
func (m *Metrics) ObserveIssue(mode string) {
	if m == nil {
		return
	}
	m.Issues.WithLabelValues(mode).Inc()
}

// ObserveExpired records drafts removed by the sweeper.
func (m *Metrics) ObserveExpired(n int) {
	if m == nil {
		return
	}
	m.DraftsExpired.Add(float64(n))
}

// ObserveTokens records language model usage.
func (m *Metrics) ObserveTokens(provider string, prompt, completion int) {
	if m == nil {
		return
	}
	m.LLMTokens.WithLabelValues(provider, "prompt").Add(float64(prompt))
	m.LLMTokens.WithLabelValues(provider, "completion").Add(float64(completion))
}

// ObserveAttachments records the result of a file transfer.
func (m *Metrics) ObserveAttachments(uploaded, failed int) {
	if m == nil {
		return
	}
	m.Attachments.WithLabelValues("uploaded").Add(float64(uploaded))
	m.Attachments.WithLabelValues("failed").Add(float64(failed))
}
