// Package activities implements the Temporal activities behind the
// durable orchestration workflow. Each activity takes a typed input
// struct and returns a typed result struct so workflow histories stay
// replayable across schema changes.
package activities

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/insightgrid-ai/orchestrator/internal/agents"
	"github.com/insightgrid-ai/orchestrator/internal/datasource"
	"github.com/insightgrid-ai/orchestrator/internal/evaluator"
	"github.com/insightgrid-ai/orchestrator/internal/evalstore"
	"github.com/insightgrid-ai/orchestrator/internal/metrics"
	"github.com/insightgrid-ai/orchestrator/internal/models"
	"github.com/insightgrid-ai/orchestrator/internal/planner"
)

// HistoryWriter mirrors the executor's history seam.
type HistoryWriter interface {
	WriteRun(ctx context.Context, report *models.RunReport) error
}

// Activities bundles the orchestration dependencies for worker
// registration.
type Activities struct {
	planner   *planner.Planner
	invoker   agents.Invoker
	evaluator *evaluator.Evaluator
	store     *evalstore.Store
	catalog   *datasource.Catalog
	history   HistoryWriter
	logger    *zap.Logger
}

// Deps lists what the activities need. Catalog, store, and history are
// optional.
type Deps struct {
	Planner   *planner.Planner
	Invoker   agents.Invoker
	Evaluator *evaluator.Evaluator
	Store     *evalstore.Store
	Catalog   *datasource.Catalog
	History   HistoryWriter
	Logger    *zap.Logger
}

// New builds the activity set.
func New(deps Deps) *Activities {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activities{
		planner:   deps.Planner,
		invoker:   deps.Invoker,
		evaluator: deps.Evaluator,
		store:     deps.Store,
		catalog:   deps.Catalog,
		history:   deps.History,
		logger:    logger,
	}
}

// PlanQueryInput requests a plan for a user query.
type PlanQueryInput struct {
	Query string `json:"query"`
}

// PlanQueryResult carries the validated plan.
type PlanQueryResult struct {
	Plan *models.OrchestrationPlan `json:"plan"`
}

// PlanQuery builds an orchestration plan. An ambiguous query is a
// non-retryable failure: retrying cannot make the query clearer.
func (a *Activities) PlanQuery(ctx context.Context, in PlanQueryInput) (PlanQueryResult, error) {
	plan, err := a.planner.Plan(in.Query)
	if err != nil {
		if errors.Is(err, planner.ErrAmbiguousQuery) {
			return PlanQueryResult{}, temporal.NewNonRetryableApplicationError(
				err.Error(), "AmbiguousQuery", err)
		}
		return PlanQueryResult{}, err
	}
	return PlanQueryResult{Plan: plan}, nil
}

// ExecuteAgentInput invokes one agent of a run.
type ExecuteAgentInput struct {
	RunID          string               `json:"run_id"`
	Query          string               `json:"query"`
	Spec           models.AgentSpec     `json:"spec"`
	Upstream       []models.AgentResult `json:"upstream,omitempty"`
	FailedUpstream []models.AgentID     `json:"failed_upstream,omitempty"`
}

// ExecuteAgentResult carries the agent's recorded outcome. Agent failures
// live inside the result, not in the activity error: the workflow applies
// the skip policy, Temporal's retry machinery does not.
type ExecuteAgentResult struct {
	Result models.AgentResult `json:"result"`
}

// ExecuteAgent runs a single agent invocation.
func (a *Activities) ExecuteAgent(ctx context.Context, in ExecuteAgentInput) (ExecuteAgentResult, error) {
	invocation := agents.Invocation{
		RunID:          in.RunID,
		Query:          in.Query,
		Spec:           in.Spec,
		Upstream:       in.Upstream,
		FailedUpstream: in.FailedUpstream,
	}
	if a.catalog != nil {
		invocation.Summaries = a.catalog.Summaries(in.Spec.DataSources)
	}

	start := time.Now()
	output, err := a.invoker.Invoke(ctx, invocation)
	elapsed := time.Since(start)

	result := models.AgentResult{
		AgentID:    in.Spec.ID,
		Timestamp:  time.Now().UTC(),
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		result.Status = models.StatusFailed
		result.Error = err.Error()
		a.logger.Warn("Agent failed",
			zap.String("run_id", in.RunID),
			zap.String("agent_id", string(in.Spec.ID)),
			zap.Error(err))
	} else {
		result.Status = models.StatusCompleted
		result.Output = output
	}
	metrics.AgentExecutions.WithLabelValues(string(in.Spec.ID), string(result.Status)).Inc()
	metrics.AgentExecutionDuration.WithLabelValues(string(in.Spec.ID)).Observe(float64(elapsed.Milliseconds()))
	return ExecuteAgentResult{Result: result}, nil
}

// EvaluateResponseInput scores one agent response.
type EvaluateResponseInput struct {
	AgentType models.AgentID `json:"agent_type"`
	Query     string         `json:"query"`
	Response  string         `json:"response"`
}

// EvaluateResponseResult carries the scored record.
type EvaluateResponseResult struct {
	Record *evaluator.EvaluationRecord `json:"record"`
}

// EvaluateResponse runs the rubric over one response and persists the
// record when a store is configured.
func (a *Activities) EvaluateResponse(ctx context.Context, in EvaluateResponseInput) (EvaluateResponseResult, error) {
	rec, err := a.evaluator.Evaluate(ctx, in.AgentType, in.Query, in.Response)
	if err != nil {
		if errors.Is(err, evaluator.ErrInvalidEvaluationInput) {
			return EvaluateResponseResult{}, temporal.NewNonRetryableApplicationError(
				err.Error(), "InvalidEvaluationInput", err)
		}
		return EvaluateResponseResult{}, err
	}
	if a.store != nil {
		if _, err := a.store.Save(rec); err != nil {
			return EvaluateResponseResult{}, err
		}
	}
	return EvaluateResponseResult{Record: rec}, nil
}

// PersistRunInput stores a terminal run report.
type PersistRunInput struct {
	Report *models.RunReport `json:"report"`
}

// PersistRun writes the run to history. Without a configured writer it is
// a no-op so the workflow shape stays the same across deployments.
func (a *Activities) PersistRun(ctx context.Context, in PersistRunInput) error {
	if a.history == nil {
		return nil
	}
	return a.history.WriteRun(ctx, in.Report)
}
