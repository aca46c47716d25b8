package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/insightgrid-ai/orchestrator/internal/agents"
	"github.com/insightgrid-ai/orchestrator/internal/evalstore"
	"github.com/insightgrid-ai/orchestrator/internal/evaluator"
	"github.com/insightgrid-ai/orchestrator/internal/executor"
	"github.com/insightgrid-ai/orchestrator/internal/models"
	"github.com/insightgrid-ai/orchestrator/internal/planner"
)

func newTestMux(t *testing.T) (*http.ServeMux, *evalstore.Store) {
	t.Helper()
	logger := zap.NewNop()
	store, err := evalstore.New(t.TempDir(), logger)
	require.NoError(t, err)

	p := planner.New(logger)
	e := executor.New(&agents.StubInvoker{}, logger)
	ev := evaluator.New(evaluator.HeuristicRater{}, logger)

	mux := http.NewServeMux()
	NewQueryHandler(p, e, ev, store, logger).RegisterRoutes(mux)
	NewEvaluationsHandler(store, logger).RegisterRoutes(mux)
	return mux, store
}

func postQuery(t *testing.T, mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestQueryEndToEnd(t *testing.T) {
	mux, _ := newTestMux(t)
	rec := postQuery(t, mux, `{"query":"summarize operations and the financial impact"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		PlanID  string                                `json:"plan_id"`
		RunID   string                                `json:"run_id"`
		State   models.RunState                       `json:"state"`
		Results map[models.AgentID]models.AgentResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.PlanID)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, models.RunCompleted, resp.State)
	assert.Contains(t, resp.Results, models.AgentOperations)
	assert.Contains(t, resp.Results, models.AgentSynthesis)
}

func TestQueryWithEvaluation(t *testing.T) {
	mux, store := newTestMux(t)
	rec := postQuery(t, mux, `{"query":"summarize operations","evaluate":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Evaluations []*evaluator.EvaluationRecord `json:"evaluations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Evaluations)
	for _, ev := range resp.Evaluations {
		assert.GreaterOrEqual(t, ev.TotalScore, 1)
		assert.LessOrEqual(t, ev.TotalScore, 10)
	}

	// Records returned to the caller are also persisted, so a later
	// GET /evaluations can serve them.
	ids, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, ids, len(resp.Evaluations))

	req := httptest.NewRequest(http.MethodGet, "/evaluations", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Evaluations []string `json:"evaluations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Evaluations, len(resp.Evaluations))
}

func TestQueryAmbiguous(t *testing.T) {
	mux, _ := newTestMux(t)
	rec := postQuery(t, mux, `{"query":"hello there"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestQueryBadRequests(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := postQuery(t, mux, `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postQuery(t, mux, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postQuery(t, mux, `{"query":"x","unknown_field":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/query", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestListEvaluations(t *testing.T) {
	mux, store := newTestMux(t)
	_, err := store.Save(&evaluator.EvaluationRecord{
		Timestamp:  time.Now().UTC(),
		AgentType:  models.AgentOperations,
		Query:      "q",
		Response:   "r",
		TotalScore: 6,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/evaluations", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Evaluations []string `json:"evaluations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Evaluations, 1)
	assert.Contains(t, resp.Evaluations[0], "operations_summary_evaluation_")
}

func TestListEvaluationsBadLimit(t *testing.T) {
	mux, _ := newTestMux(t)
	req := httptest.NewRequest(http.MethodGet, "/evaluations?limit=-3", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEvaluation(t *testing.T) {
	mux, store := newTestMux(t)
	id, err := store.Save(&evaluator.EvaluationRecord{
		Timestamp:  time.Now().UTC(),
		AgentType:  models.AgentFinancial,
		Query:      "impact",
		Response:   "answer",
		TotalScore: 7,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/evaluations/"+id, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got evaluator.EvaluationRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.AgentFinancial, got.AgentType)
	assert.Equal(t, 7, got.TotalScore)
}

func TestGetEvaluationNotFound(t *testing.T) {
	mux, _ := newTestMux(t)
	req := httptest.NewRequest(http.MethodGet, "/evaluations/no_such_record", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
