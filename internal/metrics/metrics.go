// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scribe"

var (
	// LLMRequests counts chat calls by backend and outcome.
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "LLM chat requests by backend and status.",
		},
		[]string{"backend", "status"},
	)

	// LLMLatency observes chat call latency.
	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM chat request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"backend"},
	)

	// ExtractionDuration observes the wall-clock time of both extraction waves.
	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Wall-clock duration of extraction plus refinement for one encounter.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// FieldFailures counts failed field calls by stage (extract|refine).
	FieldFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_failures_total",
			Help:      "Failed per-field LLM calls by pipeline stage.",
		},
		[]string{"stage"},
	)

	// InstructionUpdates counts adaptive learner outcomes by operation.
	InstructionUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instruction_updates_total",
			Help:      "Adaptive refinement learner outcomes by operation.",
		},
		[]string{"operation"},
	)

	// ReasoningRuns counts batch reasoning results by outcome.
	ReasoningRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reasoning_encounters_total",
			Help:      "Encounters handled by the batch reasoning job by outcome.",
		},
		[]string{"outcome"},
	)
)
