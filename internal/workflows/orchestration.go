// Package workflows contains the durable counterpart of the in-process
// executor: the same plan semantics expressed as a Temporal workflow so
// runs survive process restarts.
package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/insightgrid-ai/orchestrator/internal/activities"
	"github.com/insightgrid-ai/orchestrator/internal/evaluator"
	"github.com/insightgrid-ai/orchestrator/internal/models"
)

// OrchestrationInput starts one durable run.
type OrchestrationInput struct {
	Query string `json:"query"`
	// Evaluate scores every completed agent response after execution.
	Evaluate bool `json:"evaluate"`
	// AgentTimeout bounds one agent activity; zero means 2 minutes.
	AgentTimeout time.Duration `json:"agent_timeout"`
}

// OrchestrationResult is the workflow's terminal payload.
type OrchestrationResult struct {
	Report      *models.RunReport             `json:"report"`
	Evaluations []*evaluator.EvaluationRecord `json:"evaluations,omitempty"`
}

// OrchestrationWorkflow plans the query, executes the plan's agents in
// dependency order with the same skip and partial-failure policy as the
// in-process executor, optionally evaluates the outputs, and persists the
// run.
func OrchestrationWorkflow(ctx workflow.Context, input OrchestrationInput) (OrchestrationResult, error) {
	logger := workflow.GetLogger(ctx)

	agentTimeout := input.AgentTimeout
	if agentTimeout <= 0 {
		agentTimeout = 2 * time.Minute
	}

	var a *activities.Activities

	planCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})
	var planned activities.PlanQueryResult
	if err := workflow.ExecuteActivity(planCtx, a.PlanQuery,
		activities.PlanQueryInput{Query: input.Query}).Get(ctx, &planned); err != nil {
		return OrchestrationResult{}, err
	}
	plan := planned.Plan

	runID := workflow.GetInfo(ctx).WorkflowExecution.RunID
	report := &models.RunReport{
		RunID:     runID,
		PlanID:    plan.PlanID,
		Query:     plan.Query,
		State:     models.RunRunning,
		Results:   make(map[models.AgentID]models.AgentResult),
		StartedAt: workflow.Now(ctx).UTC(),
	}
	logger.Info("Durable run started",
		"run_id", runID,
		"plan_id", plan.PlanID,
		"agents", len(plan.AllSpecs()))

	agentCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: agentTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			// The invoker reports agent failures inside the result; an
			// activity error here is infrastructure, worth a few retries.
			MaximumAttempts: 3,
		},
	})

	var order []models.AgentID
	for _, spec := range plan.AllSpecs() {
		order = append(order, spec.ID)

		if failed := failedDependencies(spec, report.Results); len(failed) > 0 {
			report.Results[spec.ID] = models.AgentResult{
				AgentID:   spec.ID,
				Timestamp: workflow.Now(ctx).UTC(),
				Status:    models.StatusFailed,
				Error:     fmt.Sprintf("upstream dependency failed: %s", joinIDs(failed)),
			}
			logger.Info("Agent skipped", "agent_id", spec.ID, "failed_upstream", failed)
			continue
		}

		in := activities.ExecuteAgentInput{
			RunID: runID,
			Query: plan.Query,
			Spec:  spec,
		}
		if spec.ID == models.AgentSynthesis {
			in.Upstream = snapshot(order, report.Results)
			in.FailedUpstream = failedIDs(order, report.Results)
		} else {
			in.Upstream = upstream(spec.DependsOn, report.Results)
		}

		var executed activities.ExecuteAgentResult
		if err := workflow.ExecuteActivity(agentCtx, a.ExecuteAgent, in).Get(ctx, &executed); err != nil {
			// Retries exhausted or the run was cancelled. Either way the
			// agent gets a failed result and the policy takes over.
			executed.Result = models.AgentResult{
				AgentID:   spec.ID,
				Timestamp: workflow.Now(ctx).UTC(),
				Status:    models.StatusFailed,
				Error:     err.Error(),
			}
		}
		report.Results[spec.ID] = executed.Result
	}

	report.FinishedAt = workflow.Now(ctx).UTC()
	report.State = models.ResolveRunState(plan, report.Results)

	var evaluations []*evaluator.EvaluationRecord
	if input.Evaluate {
		evalCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: agentTimeout,
			RetryPolicy: &temporal.RetryPolicy{
				MaximumAttempts:        3,
				NonRetryableErrorTypes: []string{"InvalidEvaluationInput"},
			},
		})
		for _, id := range order {
			res := report.Results[id]
			if !res.Completed() {
				continue
			}
			var scored activities.EvaluateResponseResult
			err := workflow.ExecuteActivity(evalCtx, a.EvaluateResponse,
				activities.EvaluateResponseInput{
					AgentType: id,
					Query:     plan.Query,
					Response:  res.Output,
				}).Get(ctx, &scored)
			if err != nil {
				logger.Warn("Evaluation failed", "agent_id", id, "error", err)
				continue
			}
			evaluations = append(evaluations, scored.Record)
		}
	}

	persistCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 5,
		},
	})
	if err := workflow.ExecuteActivity(persistCtx, a.PersistRun,
		activities.PersistRunInput{Report: report}).Get(ctx, nil); err != nil {
		// History is audit-only, same as the in-process path.
		logger.Warn("Run history write failed", "run_id", runID, "error", err)
	}

	logger.Info("Durable run finished",
		"run_id", runID,
		"state", report.State,
		"completed", report.CompletedCount())
	return OrchestrationResult{Report: report, Evaluations: evaluations}, nil
}

func failedDependencies(spec models.AgentSpec, results map[models.AgentID]models.AgentResult) []models.AgentID {
	if spec.ID == models.AgentSynthesis {
		return nil
	}
	var failed []models.AgentID
	for _, dep := range spec.DependsOn {
		if res, ok := results[dep]; ok && !res.Completed() {
			failed = append(failed, dep)
		}
	}
	return failed
}

func upstream(deps []models.AgentID, results map[models.AgentID]models.AgentResult) []models.AgentResult {
	var out []models.AgentResult
	for _, dep := range deps {
		if res, ok := results[dep]; ok && res.Completed() {
			out = append(out, res)
		}
	}
	return out
}

// snapshot returns results in execution order; workflow code must not
// iterate maps directly.
func snapshot(order []models.AgentID, results map[models.AgentID]models.AgentResult) []models.AgentResult {
	var out []models.AgentResult
	for _, id := range order {
		if res, ok := results[id]; ok {
			out = append(out, res)
		}
	}
	return out
}

func failedIDs(order []models.AgentID, results map[models.AgentID]models.AgentResult) []models.AgentID {
	var failed []models.AgentID
	for _, id := range order {
		if res, ok := results[id]; ok && !res.Completed() {
			failed = append(failed, id)
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
