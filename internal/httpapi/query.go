// Package httpapi exposes the orchestration pipeline over a small JSON
// HTTP API.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/insightgrid-ai/orchestrator/internal/evalstore"
	"github.com/insightgrid-ai/orchestrator/internal/evaluator"
	"github.com/insightgrid-ai/orchestrator/internal/executor"
	"github.com/insightgrid-ai/orchestrator/internal/models"
	"github.com/insightgrid-ai/orchestrator/internal/planner"
)

// QueryHandler plans, executes, and optionally evaluates one query per
// request.
type QueryHandler struct {
	planner   *planner.Planner
	executor  *executor.Executor
	evaluator *evaluator.Evaluator
	store     *evalstore.Store
	logger    *zap.Logger
}

// NewQueryHandler creates a new handler. Evaluation records produced for a
// request are persisted through store so they remain retrievable later.
func NewQueryHandler(p *planner.Planner, e *executor.Executor, ev *evaluator.Evaluator, store *evalstore.Store, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{planner: p, executor: e, evaluator: ev, store: store, logger: logger}
}

// RegisterRoutes registers query routes on the provided mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/query", h.handleQuery)
}

type queryRequest struct {
	Query    string `json:"query"`
	Evaluate bool   `json:"evaluate,omitempty"`
}

type queryResponse struct {
	PlanID      string                                `json:"plan_id"`
	RunID       string                                `json:"run_id"`
	State       models.RunState                       `json:"state"`
	Results     map[models.AgentID]models.AgentResult `json:"results"`
	Evaluations []*evaluator.EvaluationRecord         `json:"evaluations,omitempty"`
}

func (h *QueryHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req queryRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	plan, err := h.planner.Plan(req.Query)
	if err != nil {
		if errors.Is(err, planner.ErrAmbiguousQuery) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("Planning failed", zap.String("query", req.Query), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "planning failed")
		return
	}

	report, err := h.executor.Execute(r.Context(), plan)
	if err != nil {
		h.logger.Error("Execution failed", zap.String("plan_id", plan.PlanID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "execution failed")
		return
	}

	resp := queryResponse{
		PlanID:  plan.PlanID,
		RunID:   report.RunID,
		State:   report.State,
		Results: report.Results,
	}
	if req.Evaluate && h.evaluator != nil {
		for _, spec := range plan.AllSpecs() {
			res, ok := report.Results[spec.ID]
			if !ok || !res.Completed() {
				continue
			}
			rec, err := h.evaluator.Evaluate(r.Context(), spec.ID, plan.Query, res.Output)
			if err != nil {
				h.logger.Warn("Evaluation failed",
					zap.String("agent_id", string(spec.ID)), zap.Error(err))
				continue
			}
			if h.store != nil {
				if _, err := h.store.Save(rec); err != nil {
					h.logger.Warn("Saving evaluation record failed",
						zap.String("agent_id", string(spec.ID)), zap.Error(err))
				}
			}
			resp.Evaluations = append(resp.Evaluations, rec)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
