// Package fleetmetrics exposes the pipeline's Prometheus metrics: one
// registry covering the LLM Subprocess Manager, Stream Processor,
// Reasoning Engine, Template Store, and Approval State Machine, served
// over a plain net/http listener (no server framework, matching the
// CLI-only surface spec §6 draws).
//
// Grounded on pkg/observability/metrics.go's Counter/Histogram/Gauge-Vec
// construction style and its registry-owns-handler pattern
// (pkg/observability/metrics.go's Handler method), narrowed from
// Hector's agent/tool/RAG/session metric families down to this
// pipeline's six components.
package fleetmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge/histogram the pipeline records.
type Metrics struct {
	registry *prometheus.Registry

	LLMSpawns       *prometheus.CounterVec
	LLMHealthChecks *prometheus.CounterVec
	LLMState        *prometheus.GaugeVec
	LLMGenerateSecs *prometheus.HistogramVec
	LLMModelPulls   *prometheus.CounterVec

	StreamChunks       *prometheus.CounterVec
	StreamQueueDropped prometheus.Counter
	StreamParseFailed  prometheus.Counter

	ReasoningSubmits    *prometheus.CounterVec
	ReasoningDurations  prometheus.Histogram
	ReasoningQueueDepth prometheus.Gauge

	TemplateSelections *prometheus.CounterVec
	TemplateFallbacks  *prometheus.CounterVec
	TemplateConfidence prometheus.Histogram

	ApprovalDecisions *prometheus.CounterVec
	ApprovalBlocked   prometheus.Counter
}

// New constructs a Metrics registry with every series registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,

		LLMSpawns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_nlp_core", Subsystem: "llm", Name: "spawns_total",
			Help: "LLM subprocess spawn attempts by outcome.",
		}, []string{"outcome"}),
		LLMHealthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_nlp_core", Subsystem: "llm", Name: "health_checks_total",
			Help: "LLM health probe results.",
		}, []string{"result"}),
		LLMState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fleet_nlp_core", Subsystem: "llm", Name: "state",
			Help: "Current LLM Manager state (1 = active, 0 = inactive) per state label.",
		}, []string{"state"}),
		LLMGenerateSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fleet_nlp_core", Subsystem: "llm", Name: "generate_duration_seconds",
			Help:    "Duration of /api/generate calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"streaming"}),
		LLMModelPulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_nlp_core", Subsystem: "llm", Name: "model_pulls_total",
			Help: "Model pull attempts by outcome.",
		}, []string{"outcome"}),

		StreamChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_nlp_core", Subsystem: "stream", Name: "chunks_total",
			Help: "Stream chunks processed by step kind.",
		}, []string{"step"}),
		StreamQueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fleet_nlp_core", Subsystem: "stream", Name: "queue_dropped_total",
			Help: "Chunks dropped due to ChunkQueueOverflow.",
		}),
		StreamParseFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fleet_nlp_core", Subsystem: "stream", Name: "parse_failed_total",
			Help: "Envelopes that failed to parse and fell back to heuristics.",
		}),

		ReasoningSubmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_nlp_core", Subsystem: "reasoning", Name: "submits_total",
			Help: "Reasoning Engine submissions by terminal state.",
		}, []string{"state"}),
		ReasoningDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fleet_nlp_core", Subsystem: "reasoning", Name: "processing_duration_seconds",
			Help:    "End-to-end processing time per request.",
			Buckets: prometheus.DefBuckets,
		}),
		ReasoningQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fleet_nlp_core", Subsystem: "reasoning", Name: "queue_depth",
			Help: "Pending requests not yet processed.",
		}),

		TemplateSelections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_nlp_core", Subsystem: "templates", Name: "selections_total",
			Help: "Template selections by chosen template name.",
		}, []string{"template"}),
		TemplateFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_nlp_core", Subsystem: "templates", Name: "fallbacks_total",
			Help: "Template selection fallbacks by kind (jaccard, deterministic).",
		}, []string{"kind"}),
		TemplateConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fleet_nlp_core", Subsystem: "templates", Name: "selection_confidence",
			Help:    "Confidence score of each template selection.",
			Buckets: []float64{0.1, 0.3, 0.5, 0.7, 0.85, 0.95, 1.0},
		}),

		ApprovalDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_nlp_core", Subsystem: "approval", Name: "decisions_total",
			Help: "Terminal approval decisions by action.",
		}, []string{"action"}),
		ApprovalBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fleet_nlp_core", Subsystem: "approval", Name: "blocked_total",
			Help: "Approve/Save calls rejected by validation findings.",
		}),
	}

	reg.MustRegister(
		m.LLMSpawns, m.LLMHealthChecks, m.LLMState, m.LLMGenerateSecs, m.LLMModelPulls,
		m.StreamChunks, m.StreamQueueDropped, m.StreamParseFailed,
		m.ReasoningSubmits, m.ReasoningDurations, m.ReasoningQueueDepth,
		m.TemplateSelections, m.TemplateFallbacks, m.TemplateConfidence,
		m.ApprovalDecisions, m.ApprovalBlocked,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
