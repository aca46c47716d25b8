// Package db persists run history to a relational database. Postgres is
// the production target; sqlite3 covers single-node deployments. The SQL
// sticks to the portable subset both drivers accept.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/insightgrid-ai/orchestrator/internal/metrics"
	"github.com/insightgrid-ai/orchestrator/internal/models"
)

// RunRow is one orchestration run.
type RunRow struct {
	RunID      string    `db:"run_id"`
	PlanID     string    `db:"plan_id"`
	Query      string    `db:"query"`
	State      string    `db:"state"`
	AgentCount int       `db:"agent_count"`
	Completed  int       `db:"completed"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}

// AgentRow is one agent execution within a run.
type AgentRow struct {
	RunID      string    `db:"run_id"`
	AgentID    string    `db:"agent_id"`
	Status     string    `db:"status"`
	Output     string    `db:"output"`
	Error      string    `db:"error"`
	DurationMs int64     `db:"duration_ms"`
	Timestamp  time.Time `db:"timestamp"`
}

// History writes and reads run execution records.
type History struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open connects to the database and verifies the connection. driver is
// "postgres" or "sqlite3".
func Open(driver, dsn string, logger *zap.Logger) (*History, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	database, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	database.SetMaxOpenConns(25)
	database.SetMaxIdleConns(5)
	database.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Run history database connected", zap.String("driver", driver))
	return &History{db: database, logger: logger}, nil
}

// NewHistory wraps an existing connection, mainly for tests.
func NewHistory(database *sqlx.DB, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{db: database, logger: logger}
}

// Close releases the connection pool.
func (h *History) Close() error { return h.db.Close() }

// Ping verifies the connection, for health checks.
func (h *History) Ping(ctx context.Context) error { return h.db.PingContext(ctx) }

const schema = `
CREATE TABLE IF NOT EXISTS run_executions (
	run_id      TEXT PRIMARY KEY,
	plan_id     TEXT NOT NULL,
	query       TEXT NOT NULL,
	state       TEXT NOT NULL,
	agent_count INTEGER NOT NULL,
	completed   INTEGER NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS agent_executions (
	run_id      TEXT NOT NULL,
	agent_id    TEXT NOT NULL,
	status      TEXT NOT NULL,
	output      TEXT NOT NULL,
	error       TEXT NOT NULL,
	duration_ms BIGINT NOT NULL,
	timestamp   TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, agent_id)
);
CREATE INDEX IF NOT EXISTS idx_runs_finished ON run_executions (finished_at);
`

// EnsureSchema creates the history tables when missing.
func (h *History) EnsureSchema(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure history schema: %w", err)
	}
	return nil
}

// WriteRun stores a terminal run report and its per-agent results in one
// transaction.
func (h *History) WriteRun(ctx context.Context, report *models.RunReport) error {
	tx, err := h.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer tx.Rollback()

	runInsert := h.db.Rebind(`
		INSERT INTO run_executions
			(run_id, plan_id, query, state, agent_count, completed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, runInsert,
		report.RunID, report.PlanID, report.Query, string(report.State),
		len(report.Results), report.CompletedCount(),
		report.StartedAt, report.FinishedAt,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", report.RunID, err)
	}

	agentInsert := h.db.Rebind(`
		INSERT INTO agent_executions
			(run_id, agent_id, status, output, error, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for _, res := range report.Results {
		if _, err := tx.ExecContext(ctx, agentInsert,
			report.RunID, string(res.AgentID), string(res.Status),
			res.Output, res.Error, res.DurationMs, res.Timestamp,
		); err != nil {
			return fmt.Errorf("insert agent %s of run %s: %w", res.AgentID, report.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history tx: %w", err)
	}
	metrics.RecordsSaved.WithLabelValues("run_history").Inc()
	h.logger.Debug("Run history written",
		zap.String("run_id", report.RunID),
		zap.Int("agents", len(report.Results)))
	return nil
}

// RecentRuns returns the most recently finished runs, newest first.
func (h *History) RecentRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	query := h.db.Rebind(`
		SELECT run_id, plan_id, query, state, agent_count, completed, started_at, finished_at
		FROM run_executions
		ORDER BY finished_at DESC
		LIMIT ?`)
	var rows []RunRow
	if err := h.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("select recent runs: %w", err)
	}
	return rows, nil
}

// AgentExecutions returns the per-agent rows of one run.
func (h *History) AgentExecutions(ctx context.Context, runID string) ([]AgentRow, error) {
	query := h.db.Rebind(`
		SELECT run_id, agent_id, status, output, error, duration_ms, timestamp
		FROM agent_executions
		WHERE run_id = ?
		ORDER BY timestamp`)
	var rows []AgentRow
	if err := h.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("select agent executions for %s: %w", runID, err)
	}
	return rows, nil
}
