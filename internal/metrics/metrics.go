// Package metrics is the performance side-channel consumed by dashboards and
// report generators. Nothing in the core return values depends on it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Planning metrics
	PlansCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insightgrid_plans_created_total",
			Help: "Total number of orchestration plans created",
		},
	)

	AmbiguousQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insightgrid_ambiguous_queries_total",
			Help: "Total number of queries rejected as ambiguous",
		},
	)

	PlanAgentCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "insightgrid_plan_agent_count",
			Help:    "Number of agents selected per plan",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	// Run metrics
	RunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightgrid_runs_started_total",
			Help: "Total number of plan executions started",
		},
		[]string{"mode"},
	)

	RunsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightgrid_runs_finished_total",
			Help: "Total number of plan executions finished",
		},
		[]string{"mode", "state"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insightgrid_run_duration_seconds",
			Help:    "Plan execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// Agent metrics
	AgentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightgrid_agent_executions_total",
			Help: "Total number of agent invocations",
		},
		[]string{"agent_id", "status"},
	)

	AgentExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insightgrid_agent_execution_duration_ms",
			Help:    "Agent invocation duration in milliseconds",
			Buckets: []float64{100, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"agent_id"},
	)

	AgentSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightgrid_agent_skips_total",
			Help: "Total number of agents skipped without invocation",
		},
		[]string{"agent_id", "reason"},
	)

	// Evaluation metrics
	EvaluationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightgrid_evaluations_completed_total",
			Help: "Total number of evaluations completed",
		},
		[]string{"agent_type"},
	)

	EvaluationTotalScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insightgrid_evaluation_total_score",
			Help:    "Weighted total score per evaluation",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
		[]string{"agent_type"},
	)

	EvaluationCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insightgrid_evaluation_cache_hits_total",
			Help: "Total number of evaluations served from the idempotency cache",
		},
	)

	// Store metrics
	RecordsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightgrid_records_saved_total",
			Help: "Total number of records written to the evaluation store",
		},
		[]string{"kind"},
	)
)
