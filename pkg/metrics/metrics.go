// Package metrics exposes the Prometheus collectors the pipeline's stage
// workers, LLM Gateway, and Queue Broker report into: stage duration,
// token usage, queue depth, dead-letter count, and per-job cycle counts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration records how long a stage handler's Handle call took,
	// labeled by stage name and outcome ("done", "failed", "dead_lettered").
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docwriter_stage_duration_seconds",
		Help:    "Time spent executing one stage handler invocation.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s .. ~410s
	}, []string{"stage", "outcome"})

	// TokensTotal counts LLM Gateway token usage, labeled by pipeline role
	// (planner/writer/reviewer/verifier/rewriter) and direction
	// ("input"/"output").
	TokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docwriter_llm_tokens_total",
		Help: "Total LLM tokens consumed, by role and direction.",
	}, []string{"role", "direction"})

	// LLMRequestsTotal counts Gateway calls, labeled by role and outcome
	// ("ok", "error", "circuit_open").
	LLMRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docwriter_llm_requests_total",
		Help: "Total LLM Gateway requests, by role and outcome.",
	}, []string{"role", "outcome"})

	// QueueDepth reports the current number of visible, undelivered
	// messages on a queue.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "docwriter_queue_depth",
		Help: "Number of pending (visible) messages on a stage queue.",
	}, []string{"queue"})

	// DeadLetterCount reports the current number of dead-lettered
	// messages awaiting operator action on a queue.
	DeadLetterCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "docwriter_queue_dead_lettered",
		Help: "Number of dead-lettered messages on a stage queue.",
	}, []string{"queue"})

	// ReviewCyclesUsed records, at finalize time, how many review/rewrite
	// cycles a job consumed out of its requested budget.
	ReviewCyclesUsed = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docwriter_review_cycles_used",
		Help:    "Number of review/rewrite cycles a job consumed before finalizing.",
		Buckets: prometheus.LinearBuckets(0, 1, 6), // 0..5
	}, []string{"outcome"})

	// JobsTotal counts jobs reaching a terminal state, labeled by that
	// state ("done", "dead_lettered").
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docwriter_jobs_total",
		Help: "Total jobs reaching a terminal state, by state.",
	}, []string{"state"})
)

// ObserveQueueDepth sets the QueueDepth gauge for one queue. Intended as
// the callback passed to queue.DeadLetterSweeper.WithDepthObserver.
func ObserveQueueDepth(queue string, depth int) {
	QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// ObserveDeadLetterCount sets the DeadLetterCount gauge for one queue.
// Intended as the callback passed to
// queue.DeadLetterSweeper.WithDeadLetterObserver.
func ObserveDeadLetterCount(queue string, count int) {
	DeadLetterCount.WithLabelValues(queue).Set(float64(count))
}

// RecordCyclesUsed observes how many cycles a job consumed before
// reaching the given terminal outcome, and increments the terminal job
// counter for that outcome.
func RecordCyclesUsed(outcome string, cyclesUsed int) {
	ReviewCyclesUsed.WithLabelValues(outcome).Observe(float64(cyclesUsed))
	JobsTotal.WithLabelValues(outcome).Inc()
}
