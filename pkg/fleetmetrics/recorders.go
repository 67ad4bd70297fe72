package fleetmetrics

import "strconv"

// The methods below let *Metrics satisfy each component's MetricsRecorder
// interface structurally (llmproc, streamproc, reasoning, templates,
// approval), without any of those packages importing this one.

func (m *Metrics) RecordSpawn(outcome string) {
	m.LLMSpawns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordHealthCheck(ok bool) {
	result := "fail"
	if ok {
		result = "ok"
	}
	m.LLMHealthChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordGenerate(streaming bool, seconds float64) {
	m.LLMGenerateSecs.WithLabelValues(strconv.FormatBool(streaming)).Observe(seconds)
}

func (m *Metrics) RecordChunk(step string) {
	m.StreamChunks.WithLabelValues(step).Inc()
}

func (m *Metrics) RecordQueueOverflow() {
	m.StreamQueueDropped.Inc()
}

func (m *Metrics) RecordParseFailed() {
	m.StreamParseFailed.Inc()
}

func (m *Metrics) RecordSubmit(state string) {
	m.ReasoningSubmits.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordDuration(seconds float64) {
	m.ReasoningDurations.Observe(seconds)
}

func (m *Metrics) SetQueueDepth(n int) {
	m.ReasoningQueueDepth.Set(float64(n))
}

func (m *Metrics) RecordSelection(template string, confidence float32) {
	m.TemplateSelections.WithLabelValues(template).Inc()
	m.TemplateConfidence.Observe(float64(confidence))
}

func (m *Metrics) RecordFallback(kind string) {
	m.TemplateFallbacks.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordDecision(action string) {
	m.ApprovalDecisions.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordBlocked() {
	m.ApprovalBlocked.Inc()
}
