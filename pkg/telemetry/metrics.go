// Package telemetry carries the operational signals of the gateway:
// Prometheus metrics and the payload-free security audit sink. Nothing in
// this package ever sees a prompt, a completion, or a PII literal.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Guardian flag labels for the guardian_flags counter.
const (
	FlagHallucination      = "hallucination"
	FlagToneViolation      = "tone_violation"
	FlagFakeCitations      = "fake_citations"
	FlagFalseRefusal       = "false_refusal"
	FlagDisclaimerInjected = "disclaimer_injected"
)

// Metrics is the per-request metric family set exported on /metrics. Each
// instance owns its registry, so tests and multi-service processes never
// collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	securityScore *prometheus.GaugeVec
	threats       *prometheus.CounterVec
	piiRedacted   *prometheus.CounterVec
	tokens        *prometheus.CounterVec
	tokensSaved   *prometheus.CounterVec
	guardianFlags *prometheus.CounterVec
	toxicity      *prometheus.GaugeVec
}

// NewMetrics builds the metric families on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Requests by tenant, model and verdict",
		}, []string{"app", "model", "status", "reason"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "End-to-end request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"app"}),
		securityScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_security_score",
			Help: "Security score of the most recent request per tenant",
		}, []string{"app"}),
		threats: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_threats_detected_total",
			Help: "Input threats detected",
		}, []string{"app", "model"}),
		piiRedacted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_pii_redacted_total",
			Help: "PII detections pseudonymized on input",
		}, []string{"app"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tokens_total",
			Help: "Provider tokens consumed, by direction",
		}, []string{"app", "model", "type"}),
		tokensSaved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tokens_saved_total",
			Help: "Tokens saved by compact prompt encoding",
		}, []string{"app", "model"}),
		guardianFlags: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_guardian_flags_total",
			Help: "Output validation flags raised",
		}, []string{"app", "flag"}),
		toxicity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_toxicity_score",
			Help: "Toxicity score of the most recent scored request per tenant",
		}, []string{"app"}),
	}
}

// Handler serves the Prometheus exposition format for this instance.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordBlocked counts one blocked request.
func (m *Metrics) RecordBlocked(app, model, reason string) {
	m.requests.WithLabelValues(app, model, "blocked", reason).Inc()
}

// RecordPassed counts one passed request.
func (m *Metrics) RecordPassed(app, model string) {
	m.requests.WithLabelValues(app, model, "passed", "").Inc()
}

// ObserveDuration records one request's end-to-end latency.
func (m *Metrics) ObserveDuration(app string, seconds float64) {
	m.duration.WithLabelValues(app).Observe(seconds)
}

// SetSecurityScore publishes the request's security score.
func (m *Metrics) SetSecurityScore(app string, score float64) {
	m.securityScore.WithLabelValues(app).Set(score)
}

// AddThreats counts detected input threats.
func (m *Metrics) AddThreats(app, model string, count int) {
	if count > 0 {
		m.threats.WithLabelValues(app, model).Add(float64(count))
	}
}

// AddPIIRedacted counts pseudonymized input detections.
func (m *Metrics) AddPIIRedacted(app string, count int) {
	if count > 0 {
		m.piiRedacted.WithLabelValues(app).Add(float64(count))
	}
}

// AddTokens counts provider token consumption by direction.
func (m *Metrics) AddTokens(app, model string, input, output, total int) {
	m.tokens.WithLabelValues(app, model, "input").Add(float64(input))
	m.tokens.WithLabelValues(app, model, "output").Add(float64(output))
	m.tokens.WithLabelValues(app, model, "total").Add(float64(total))
}

// AddTokensSaved counts tokens saved by compact encoding.
func (m *Metrics) AddTokensSaved(app, model string, saved int) {
	if saved > 0 {
		m.tokensSaved.WithLabelValues(app, model).Add(float64(saved))
	}
}

// FlagGuardian counts one raised output-validation flag.
func (m *Metrics) FlagGuardian(app, flag string) {
	m.guardianFlags.WithLabelValues(app, flag).Inc()
}

// SetToxicity publishes the judged toxicity score.
func (m *Metrics) SetToxicity(app string, score float64) {
	m.toxicity.WithLabelValues(app).Set(score)
}
