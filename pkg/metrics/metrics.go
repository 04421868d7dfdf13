// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RowsProcessed tracks ingested rows by outcome.
	RowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rows_total",
			Help: "Spreadsheet rows processed, by outcome",
		},
		[]string{"source_id", "outcome"},
	)

	// RowsSkipped tracks rows skipped by the idempotency ledger.
	RowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rows_skipped_total",
			Help: "Rows skipped because their idempotency key was already applied",
		},
		[]string{"source_id"},
	)

	// OrdersUpserted tracks order upserts.
	OrdersUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_upserted_total",
			Help: "Orders created or updated by the upsert engine",
		},
		[]string{"store_id", "op"},
	)

	// LLMRequests tracks language model calls.
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Language model calls, by operation and status",
		},
		[]string{"provider", "operation", "status"},
	)

	// LLMDuration tracks language model call duration.
	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Language model call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "operation"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// EmbedFailures tracks non-fatal similarity indexing failures.
	EmbedFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "similarity_index_failures_total",
			Help: "Embedding or index failures skipped during ingestion",
		},
	)

	// ConversationTurns tracks persisted conversation turns.
	ConversationTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_turns_total",
			Help: "Conversation turns persisted, by role",
		},
		[]string{"store_id", "role"},
	)

	// PlanFailures tracks turns aborted because the model plan failed to parse.
	PlanFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_plan_failures_total",
			Help: "Conversation turns aborted on unparseable plans",
		},
		[]string{"store_id"},
	)

	// DispatchTotal tracks outbound channel sends.
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_dispatch_total",
			Help: "Outbound channel messages, by provider and status",
		},
		[]string{"provider", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records metrics for a language model call.
func RecordLLMCall(provider, operation, status string, seconds float64, model string, tokensIn, tokensOut int) {
	LLMRequests.WithLabelValues(provider, operation, status).Inc()
	LLMDuration.WithLabelValues(provider, operation).Observe(seconds)
	if tokensIn > 0 {
		LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
	}
}
