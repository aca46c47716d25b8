package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/insightgrid-ai/orchestrator/internal/models"
)

func newMockHistory(t *testing.T) (*History, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewHistory(sqlx.NewDb(mockDB, "sqlmock"), zap.NewNop()), mock
}

func sampleReport() *models.RunReport {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return &models.RunReport{
		RunID:  "run-1",
		PlanID: "plan-1",
		Query:  "summarize operations",
		State:  models.RunCompleted,
		Results: map[models.AgentID]models.AgentResult{
			models.AgentOperations: {
				AgentID:    models.AgentOperations,
				Status:     models.StatusCompleted,
				Output:     "all nominal",
				DurationMs: 120,
				Timestamp:  now,
			},
		},
		StartedAt:  now.Add(-time.Second),
		FinishedAt: now,
	}
}

func TestWriteRun(t *testing.T) {
	h, mock := newMockHistory(t)
	report := sampleReport()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO run_executions`).
		WithArgs("run-1", "plan-1", "summarize operations", "completed",
			1, 1, report.StartedAt, report.FinishedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO agent_executions`).
		WithArgs("run-1", "operations_summary", "completed", "all nominal", "",
			int64(120), report.Results[models.AgentOperations].Timestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, h.WriteRun(context.Background(), report))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRunMultipleAgents(t *testing.T) {
	h, mock := newMockHistory(t)
	report := sampleReport()
	report.Results[models.AgentFinancial] = models.AgentResult{
		AgentID:   models.AgentFinancial,
		Status:    models.StatusFailed,
		Error:     "timeout",
		Timestamp: report.FinishedAt,
	}
	report.State = models.RunPartiallyFailed

	// Map iteration order is not fixed, so agent inserts can land in any
	// order.
	mock.MatchExpectationsInOrder(false)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO run_executions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO agent_executions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO agent_executions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, h.WriteRun(context.Background(), report))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRunRollsBackOnInsertError(t *testing.T) {
	h, mock := newMockHistory(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO run_executions`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := h.WriteRun(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert run run-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentRuns(t *testing.T) {
	h, mock := newMockHistory(t)
	finished := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"run_id", "plan_id", "query", "state", "agent_count", "completed",
		"started_at", "finished_at",
	}).
		AddRow("run-2", "plan-2", "q2", "completed", 3, 3, finished.Add(-time.Minute), finished).
		AddRow("run-1", "plan-1", "q1", "partially_failed", 2, 1, finished.Add(-time.Hour), finished.Add(-time.Hour))
	mock.ExpectQuery(`SELECT .+ FROM run_executions`).
		WithArgs(2).
		WillReturnRows(rows)

	got, err := h.RecentRuns(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-2", got[0].RunID)
	assert.Equal(t, "partially_failed", got[1].State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentRunsDefaultLimit(t *testing.T) {
	h, mock := newMockHistory(t)
	mock.ExpectQuery(`SELECT .+ FROM run_executions`).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{
			"run_id", "plan_id", "query", "state", "agent_count", "completed",
			"started_at", "finished_at",
		}))

	got, err := h.RecentRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAgentExecutions(t *testing.T) {
	h, mock := newMockHistory(t)
	ts := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"run_id", "agent_id", "status", "output", "error", "duration_ms", "timestamp",
	}).
		AddRow("run-1", "operations_summary", "completed", "ok", "", int64(120), ts).
		AddRow("run-1", "synthesis", "completed", "merged", "", int64(80), ts.Add(time.Second))
	mock.ExpectQuery(`SELECT .+ FROM agent_executions`).
		WithArgs("run-1").
		WillReturnRows(rows)

	got, err := h.AgentExecutions(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "operations_summary", got[0].AgentID)
	assert.Equal(t, "synthesis", got[1].AgentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	h, mock := newMockHistory(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS run_executions`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, h.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
