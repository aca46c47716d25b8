// Package planner maps a free-text query to an ordered, acyclic
// orchestration plan over the fixed agent variants.
//
// Selection is keyword based and deliberately explicit: rules are evaluated
// in their declared order and every matching rule contributes its agent.
// The rule order is the precedence rule — when several keyword sets match,
// the resulting specs appear in rule order, which is also a valid
// topological order because each default rule only depends on agents
// declared earlier in the list.
package planner

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightgrid-ai/orchestrator/internal/metrics"
	"github.com/insightgrid-ai/orchestrator/internal/models"
)

// ErrAmbiguousQuery is returned when no rule matches the query. The planner
// never guesses; the caller should ask the user to clarify.
var ErrAmbiguousQuery = errors.New("ambiguous query: no agent capability detected")

// Archiver persists a plan before execution begins, supporting post-hoc
// audit even if execution later fails.
type Archiver interface {
	SavePlan(plan *models.OrchestrationPlan) error
}

// Planner builds orchestration plans from queries.
type Planner struct {
	mu       sync.RWMutex
	rules    []Rule
	archiver Archiver
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Planner.
type Option func(*Planner)

// WithRules replaces the default rule list.
func WithRules(rules []Rule) Option {
	return func(p *Planner) { p.rules = rules }
}

// WithArchiver installs durable plan storage.
func WithArchiver(a Archiver) Option {
	return func(p *Planner) { p.archiver = a }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// New builds a Planner with the default rule list.
func New(logger *zap.Logger, opts ...Option) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Planner{rules: DefaultRules(), logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan selects the agent variants whose keywords match the query, wires
// their dependencies (pruned to the selected set), appends a synthesis step
// when more than one agent is selected, validates the result, and archives
// it. No plan is persisted for an ambiguous query.
func (p *Planner) Plan(query string) (*models.OrchestrationPlan, error) {
	lower := strings.ToLower(query)

	p.mu.RLock()
	rules := p.rules
	p.mu.RUnlock()

	selected := make(map[models.AgentID]bool)
	var specs []models.AgentSpec
	for _, rule := range rules {
		if selected[rule.Agent] || !matchesAny(lower, rule.Keywords) {
			continue
		}
		selected[rule.Agent] = true
		specs = append(specs, models.AgentSpec{
			ID:          rule.Agent,
			Directives:  rule.Directives,
			DataSources: rule.DataSources,
		})
	}

	if len(specs) == 0 {
		metrics.AmbiguousQueries.Inc()
		p.logger.Info("Query matched no agent capability", zap.String("query", query))
		return nil, ErrAmbiguousQuery
	}

	// Dependency edges are pruned to the selected set so the DependsOn
	// graph stays closed over the plan.
	for i := range specs {
		rule := ruleFor(rules, specs[i].ID)
		for _, dep := range rule.DependsOn {
			if selected[dep] {
				specs[i].DependsOn = append(specs[i].DependsOn, dep)
			}
		}
	}

	plan := &models.OrchestrationPlan{
		PlanID:     uuid.NewString(),
		Query:      query,
		CreatedAt:  p.now().UTC(),
		AgentSpecs: specs,
	}
	if len(specs) > 1 {
		upstream := make([]models.AgentID, len(specs))
		for i, spec := range specs {
			upstream[i] = spec.ID
		}
		synthesis := SynthesisSpec(upstream)
		plan.Synthesis = &synthesis
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}

	if p.archiver != nil {
		if err := p.archiver.SavePlan(plan); err != nil {
			return nil, err
		}
	}

	metrics.PlansCreated.Inc()
	metrics.PlanAgentCount.Observe(float64(len(plan.AllSpecs())))
	p.logger.Info("Plan created",
		zap.String("plan_id", plan.PlanID),
		zap.Int("agents", len(specs)),
		zap.Bool("synthesis", plan.Synthesis != nil))
	return plan, nil
}

// ReplaceRules swaps the rule list atomically; in-flight Plan calls keep
// the list they started with. Used by the hot-reload path.
func (p *Planner) ReplaceRules(rules []Rule) {
	p.mu.Lock()
	p.rules = rules
	p.mu.Unlock()
	p.logger.Info("Planner rules replaced", zap.Int("rules", len(rules)))
}

func ruleFor(rules []Rule, id models.AgentID) Rule {
	for _, rule := range rules {
		if rule.Agent == id {
			return rule
		}
	}
	return Rule{}
}

func matchesAny(lowerQuery string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowerQuery, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
