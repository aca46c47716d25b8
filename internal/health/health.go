// Package health aggregates component checks behind one HTTP endpoint.
// Critical components gate readiness; non-critical ones only degrade the
// reported status.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status of one component or the whole service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Critical  bool          `json:"critical"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

// Checker probes one component.
type Checker interface {
	Name() string
	IsCritical() bool
	Check(ctx context.Context) CheckResult
}

// CheckFunc adapts a plain probe function into a Checker.
type CheckFunc struct {
	ComponentName string
	Critical      bool
	Probe         func(ctx context.Context) error
}

func (c CheckFunc) Name() string     { return c.ComponentName }
func (c CheckFunc) IsCritical() bool { return c.Critical }

func (c CheckFunc) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Component: c.ComponentName,
		Critical:  c.Critical,
		Timestamp: start,
	}
	err := c.Probe(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	} else {
		result.Status = StatusHealthy
	}
	return result
}

// Manager runs registered checks on demand.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
	logger   *zap.Logger
}

// NewManager creates an empty check registry.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{timeout: 5 * time.Second, logger: logger}
}

// Register adds a checker.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Report holds the aggregate and per-component outcomes.
type Report struct {
	Status     Status        `json:"status"`
	Components []CheckResult `json:"components"`
}

// Check runs every registered checker. An unhealthy critical component
// makes the whole report unhealthy; an unhealthy optional one degrades it.
func (m *Manager) Check(ctx context.Context) Report {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	report := Report{Status: StatusHealthy}
	for _, c := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
		result := c.Check(checkCtx)
		cancel()

		if result.Status == StatusUnhealthy {
			if result.Critical {
				report.Status = StatusUnhealthy
			} else if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
			m.logger.Warn("Component unhealthy",
				zap.String("component", result.Component),
				zap.Bool("critical", result.Critical),
				zap.String("error", result.Error))
		}
		report.Components = append(report.Components, result)
	}
	return report
}

// Handler serves the report as JSON; 503 when unhealthy.
func (m *Manager) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := m.Check(r.Context())
		status := http.StatusOK
		if report.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}
