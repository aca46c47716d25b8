// Package executor runs orchestration plans: agents in dependency order
// over a shared per-run context, with failure isolation per dependency
// subtree. Sequential execution is the default; a bounded parallel-branch
// mode is available for plans with independent agents.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightgrid-ai/orchestrator/internal/agents"
	"github.com/insightgrid-ai/orchestrator/internal/datasource"
	"github.com/insightgrid-ai/orchestrator/internal/metrics"
	"github.com/insightgrid-ai/orchestrator/internal/models"
	"github.com/insightgrid-ai/orchestrator/internal/state"
)

// Config tunes one executor instance.
type Config struct {
	// AgentTimeout bounds a single agent invocation; zero means no
	// per-agent timeout. A timeout is recorded as that agent's failure,
	// never as a crash of the run.
	AgentTimeout time.Duration
	// Parallelism > 1 enables the parallel-branch mode with at most this
	// many concurrent invocations.
	Parallelism int
}

// HistoryWriter receives terminal run reports for durable audit. Optional;
// failures are logged, never propagated into the run outcome.
type HistoryWriter interface {
	WriteRun(ctx context.Context, report *models.RunReport) error
}

// Executor drives plan execution.
type Executor struct {
	invoker agents.Invoker
	catalog *datasource.Catalog
	history HistoryWriter
	cfg     Config
	logger  *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithCatalog supplies dataset summaries to agent invocations.
func WithCatalog(c *datasource.Catalog) Option {
	return func(e *Executor) { e.catalog = c }
}

// WithHistory installs a run-history writer.
func WithHistory(h HistoryWriter) Option {
	return func(e *Executor) { e.history = h }
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(e *Executor) { e.cfg = cfg }
}

// New builds an Executor around the given invoker.
func New(invoker agents.Invoker, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{invoker: invoker, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) mode() string {
	if e.cfg.Parallelism > 1 {
		return "parallel"
	}
	return "sequential"
}

// Execute runs every agent of the plan and returns the run report. Agent
// failures never fail the call; only an invalid plan does. The terminal
// state follows the partial-failure policy: Completed when everything
// completed, Failed when the synthesis step failed or nothing completed,
// PartiallyFailed otherwise.
func (e *Executor) Execute(ctx context.Context, plan *models.OrchestrationPlan) (*models.RunReport, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	runID := uuid.NewString()
	shared := state.NewSharedContext()
	report := &models.RunReport{
		RunID:     runID,
		PlanID:    plan.PlanID,
		Query:     plan.Query,
		State:     models.RunRunning,
		StartedAt: time.Now().UTC(),
	}

	metrics.RunsStarted.WithLabelValues(e.mode()).Inc()
	e.logger.Info("Run started",
		zap.String("run_id", runID),
		zap.String("plan_id", plan.PlanID),
		zap.String("mode", e.mode()),
		zap.Int("agents", len(plan.AllSpecs())))

	if e.cfg.Parallelism > 1 {
		e.runParallel(ctx, plan, runID, shared)
	} else {
		e.runSequential(ctx, plan, runID, shared)
	}

	report.Results = shared.AsMap()
	report.FinishedAt = time.Now().UTC()
	report.State = models.ResolveRunState(plan, report.Results)

	elapsed := report.FinishedAt.Sub(report.StartedAt)
	metrics.RunsFinished.WithLabelValues(e.mode(), string(report.State)).Inc()
	metrics.RunDuration.WithLabelValues(e.mode()).Observe(elapsed.Seconds())
	e.logger.Info("Run finished",
		zap.String("run_id", runID),
		zap.String("state", string(report.State)),
		zap.Int("completed", report.CompletedCount()),
		zap.Duration("elapsed", elapsed))

	if e.history != nil {
		// History is audit-only; a write failure must not change the run
		// outcome.
		if err := e.history.WriteRun(context.WithoutCancel(ctx), report); err != nil {
			e.logger.Warn("Run history write failed",
				zap.String("run_id", runID), zap.Error(err))
		}
	}
	return report, nil
}

// runSequential executes specs in plan order, one at a time.
func (e *Executor) runSequential(ctx context.Context, plan *models.OrchestrationPlan, runID string, shared *state.SharedContext) {
	specs := plan.AllSpecs()
	for i, spec := range specs {
		if ctx.Err() != nil {
			e.cancelRemaining(specs[i:], runID, shared)
			return
		}
		e.runOne(ctx, plan, spec, i, runID, shared)
	}
}

// runParallel executes specs wave by wave: every spec whose dependencies
// all have results forms the next wave, and waves run concurrently under
// the parallelism cap. Plan order within a wave is preserved for skip
// decisions, so the observable policy matches the sequential mode.
func (e *Executor) runParallel(ctx context.Context, plan *models.OrchestrationPlan, runID string, shared *state.SharedContext) {
	specs := plan.AllSpecs()
	done := make(map[models.AgentID]bool, len(specs))

	for len(done) < len(specs) {
		if ctx.Err() != nil {
			var remaining []models.AgentSpec
			for _, spec := range specs {
				if !done[spec.ID] {
					remaining = append(remaining, spec)
				}
			}
			e.cancelRemaining(remaining, runID, shared)
			return
		}

		var wave []int
		for i, spec := range specs {
			if done[spec.ID] {
				continue
			}
			ready := true
			for _, dep := range spec.DependsOn {
				if _, ok := shared.Get(dep); !ok {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, i)
			}
		}
		// A validated plan always has at least one ready spec left, so an
		// empty wave cannot happen; guard anyway to avoid spinning.
		if len(wave) == 0 {
			return
		}

		sem := make(chan struct{}, e.cfg.Parallelism)
		waveDone := make(chan struct{})
		for _, i := range wave {
			spec := specs[i]
			done[spec.ID] = true
			sem <- struct{}{}
			go func(spec models.AgentSpec, index int) {
				defer func() { <-sem; waveDone <- struct{}{} }()
				e.runOne(ctx, plan, spec, index, runID, shared)
			}(spec, i)
		}
		for range wave {
			<-waveDone
		}
	}
}

// runOne applies the skip policy and otherwise invokes the agent, recording
// exactly one result for the spec.
func (e *Executor) runOne(ctx context.Context, plan *models.OrchestrationPlan, spec models.AgentSpec, index int, runID string, shared *state.SharedContext) {
	if failedDeps := e.failedDependencies(spec, shared); len(failedDeps) > 0 {
		e.recordSkip(spec.ID, runID, shared,
			fmt.Sprintf("upstream dependency failed: %s", joinIDs(failedDeps)), "upstream_failed")
		return
	}

	invocation := agents.Invocation{
		RunID: runID,
		Query: plan.Query,
		Spec:  spec,
	}
	if spec.ID == models.AgentSynthesis {
		// Synthesis sees the full shared context and must name the failed
		// branches rather than silently dropping them.
		invocation.Upstream = shared.Snapshot()
		invocation.FailedUpstream = failedIDs(shared)
	} else {
		invocation.Upstream = shared.Upstream(spec.DependsOn)
	}
	if e.catalog != nil {
		invocation.Summaries = e.catalog.Summaries(spec.DataSources)
	}

	invokeCtx := ctx
	var cancel context.CancelFunc
	if e.cfg.AgentTimeout > 0 {
		invokeCtx, cancel = context.WithTimeout(ctx, e.cfg.AgentTimeout)
		defer cancel()
	}

	name := agents.DisplayName(runID, index)
	start := time.Now()
	output, err := e.invoker.Invoke(invokeCtx, invocation)
	elapsed := time.Since(start)

	result := models.AgentResult{
		AgentID:    spec.ID,
		Timestamp:  time.Now().UTC(),
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		result.Status = models.StatusFailed
		result.Error = err.Error()
		e.logger.Warn("Agent failed",
			zap.String("run_id", runID),
			zap.String("agent_id", string(spec.ID)),
			zap.String("agent_name", name),
			zap.Error(err))
	} else {
		result.Status = models.StatusCompleted
		result.Output = output
		e.logger.Info("Agent completed",
			zap.String("run_id", runID),
			zap.String("agent_id", string(spec.ID)),
			zap.String("agent_name", name),
			zap.Duration("elapsed", elapsed))
	}

	metrics.AgentExecutions.WithLabelValues(string(spec.ID), string(result.Status)).Inc()
	metrics.AgentExecutionDuration.WithLabelValues(string(spec.ID)).Observe(float64(elapsed.Milliseconds()))

	if recErr := shared.Record(result); recErr != nil {
		// A sealed context after cancellation is the only expected path
		// here; the invariant is that no write lands after sealing.
		e.logger.Warn("Result dropped",
			zap.String("run_id", runID),
			zap.String("agent_id", string(spec.ID)),
			zap.Error(recErr))
	}
}

// cancelRemaining records a cancelled failure for every spec without a
// result and seals the context against late writes from in-flight agents.
func (e *Executor) cancelRemaining(specs []models.AgentSpec, runID string, shared *state.SharedContext) {
	for _, spec := range specs {
		if _, ok := shared.Get(spec.ID); !ok {
			e.recordSkip(spec.ID, runID, shared, "cancelled", "cancelled")
		}
	}
	shared.Seal()
	e.logger.Info("Run cancelled", zap.String("run_id", runID))
}

func (e *Executor) recordSkip(id models.AgentID, runID string, shared *state.SharedContext, reason, metricReason string) {
	metrics.AgentSkips.WithLabelValues(string(id), metricReason).Inc()
	e.logger.Info("Agent skipped",
		zap.String("run_id", runID),
		zap.String("agent_id", string(id)),
		zap.String("reason", reason))
	result := models.AgentResult{
		AgentID:   id,
		Timestamp: time.Now().UTC(),
		Status:    models.StatusFailed,
		Error:     reason,
	}
	if err := shared.Record(result); err != nil {
		e.logger.Warn("Skip record dropped",
			zap.String("agent_id", string(id)), zap.Error(err))
	}
}

// failedDependencies returns the spec's dependencies that have a failed
// result. Synthesis is exempt: it runs over whatever completed so it can
// report the failures.
func (e *Executor) failedDependencies(spec models.AgentSpec, shared *state.SharedContext) []models.AgentID {
	if spec.ID == models.AgentSynthesis {
		return nil
	}
	var failed []models.AgentID
	for _, dep := range spec.DependsOn {
		if res, ok := shared.Get(dep); ok && !res.Completed() {
			failed = append(failed, dep)
		}
	}
	return failed
}

func failedIDs(shared *state.SharedContext) []models.AgentID {
	var failed []models.AgentID
	for _, res := range shared.Snapshot() {
		if !res.Completed() {
			failed = append(failed, res.AgentID)
		}
	}
	return failed
}

func joinIDs(ids []models.AgentID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}

