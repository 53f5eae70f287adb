package services

import "github.com/prometheus/client_golang/prometheus"

// Engine collectors. Label values are drawn from small fixed sets
// (verdicts, outcomes) to keep cardinality bounded.
var (
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_poll_ticks_total",
			Help: "Poll ticks by outcome (completed, skipped_overlap, budget_exceeded).",
		},
		[]string{"outcome"},
	)

	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engage_poll_tick_duration_seconds",
			Help:    "Wall-clock duration of completed poll ticks.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	postPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_post_polls_total",
			Help: "Per-post polls by outcome (ok, partial, transient_error, permanent_error, expired).",
		},
		[]string{"outcome"},
	)

	commentsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engage_comments_ingested_total",
			Help: "New comments stored by polling.",
		},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_decisions_total",
			Help: "Logged decisions by verdict.",
		},
		[]string{"verdict"},
	)

	repliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_replies_total",
			Help: "Reply dispatches by outcome (sent, failed, duplicate).",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(ticksTotal, tickDuration, postPollsTotal, commentsIngestedTotal, decisionsTotal, repliesTotal)
}
