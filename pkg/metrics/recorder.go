// Package metrics provides Prometheus instrumentation for negotiation
// workflows and a query service for aggregated usage data.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records negotiation metrics.
type Recorder struct {
	registry *prometheus.Registry

	agentRequestsTotal *prometheus.CounterVec
	agentDuration      *prometheus.HistogramVec
	tokensTotal        *prometheus.CounterVec
	routingTotal       *prometheus.CounterVec
	phaseTransitions   *prometheus.CounterVec
	reviewConfidence   *prometheus.HistogramVec
}

// NewRecorder creates a recorder on its own registry so tests and multiple
// instances do not collide in the default registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Recorder{
		registry: registry,
		agentRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "negotiation_agent_requests_total",
				Help: "Total number of agent calls by model, operation, and status",
			},
			[]string{"model", "operation", "status"},
		),
		agentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "negotiation_agent_request_duration_seconds",
				Help:    "Duration of agent calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "operation"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "negotiation_tokens_total",
				Help: "Total number of tokens used in agent calls",
			},
			[]string{"model", "workflow_id", "type"},
		),
		routingTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "negotiation_routing_decisions_total",
				Help: "Total number of review routing decisions by action",
			},
			[]string{"action"},
		),
		phaseTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "negotiation_phase_transitions_total",
				Help: "Total number of workflow phase transitions",
			},
			[]string{"from", "to"},
		),
		reviewConfidence: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "negotiation_review_confidence",
				Help:    "Distribution of review confidence scores",
				Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
			[]string{"tier"},
		),
	}
}

// ObserveAgentRequest records one agent call.
func (r *Recorder) ObserveAgentRequest(model, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.agentRequestsTotal.WithLabelValues(model, operation, status).Inc()
	r.agentDuration.WithLabelValues(model, operation).Observe(duration.Seconds())
}

// ObserveTokens records token usage for a workflow's agent call.
func (r *Recorder) ObserveTokens(model, workflowID string, promptTokens, completionTokens int) {
	r.tokensTotal.WithLabelValues(model, workflowID, "prompt").Add(float64(promptTokens))
	r.tokensTotal.WithLabelValues(model, workflowID, "completion").Add(float64(completionTokens))
}

// ObserveRoutingDecision records one router outcome.
func (r *Recorder) ObserveRoutingDecision(action string) {
	r.routingTotal.WithLabelValues(action).Inc()
}

// ObservePhaseTransition records one workflow phase change.
func (r *Recorder) ObservePhaseTransition(from, to string) {
	r.phaseTransitions.WithLabelValues(from, to).Inc()
}

// ObserveReviewConfidence records one review's confidence score.
func (r *Recorder) ObserveReviewConfidence(tier string, confidence int) {
	r.reviewConfidence.WithLabelValues(tier).Observe(float64(confidence))
}

// Handler returns the Prometheus exposition handler for this recorder.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test assertions.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
