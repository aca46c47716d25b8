package models

import (
	"fmt"
	"time"
)

// AgentID identifies one of the fixed analysis agent variants.
type AgentID string

const (
	AgentOperations AgentID = "operations_summary"
	AgentUpsell     AgentID = "upsell_discovery"
	AgentCampaign   AgentID = "campaign_planner"
	AgentFinancial  AgentID = "financial_impact"
	AgentSynthesis  AgentID = "synthesis"
)

// KnownAgentIDs lists every valid agent variant.
var KnownAgentIDs = []AgentID{
	AgentOperations,
	AgentUpsell,
	AgentCampaign,
	AgentFinancial,
	AgentSynthesis,
}

// Valid reports whether the id names a known agent variant.
func (id AgentID) Valid() bool {
	for _, known := range KnownAgentIDs {
		if id == known {
			return true
		}
	}
	return false
}

// AgentSpec describes one agent's role within a single orchestration run.
// Specs are created by the planner and never mutated afterwards.
type AgentSpec struct {
	ID          AgentID   `json:"agent_id"`
	Directives  []string  `json:"directives"`
	DataSources []string  `json:"data_sources"`
	DependsOn   []AgentID `json:"depends_on,omitempty"`
}

// OrchestrationPlan is the ordered, acyclic set of agent specs selected to
// answer one query. AgentSpecs is always a valid topological order of the
// DependsOn graph; Validate enforces this before the plan leaves the planner.
type OrchestrationPlan struct {
	PlanID     string      `json:"plan_id"`
	Query      string      `json:"query"`
	CreatedAt  time.Time   `json:"created_at"`
	AgentSpecs []AgentSpec `json:"agent_specs"`
	Synthesis  *AgentSpec  `json:"final_synthesis,omitempty"`
}

// AllSpecs returns the executable sequence: AgentSpecs followed by the
// synthesis spec when present.
func (p *OrchestrationPlan) AllSpecs() []AgentSpec {
	specs := make([]AgentSpec, 0, len(p.AgentSpecs)+1)
	specs = append(specs, p.AgentSpecs...)
	if p.Synthesis != nil {
		specs = append(specs, *p.Synthesis)
	}
	return specs
}

// Spec returns the spec for the given id, or nil if the plan does not
// include it.
func (p *OrchestrationPlan) Spec(id AgentID) *AgentSpec {
	for i := range p.AgentSpecs {
		if p.AgentSpecs[i].ID == id {
			return &p.AgentSpecs[i]
		}
	}
	if p.Synthesis != nil && p.Synthesis.ID == id {
		return p.Synthesis
	}
	return nil
}

// Validate checks plan invariants: non-empty spec list, unique ids, known
// variants, dependencies resolvable within the plan, and spec ordering that
// is a valid topological sort of the dependency graph.
func (p *OrchestrationPlan) Validate() error {
	specs := p.AllSpecs()
	if len(specs) == 0 {
		return fmt.Errorf("plan %s has no agent specs", p.PlanID)
	}

	seen := make(map[AgentID]bool, len(specs))
	for _, spec := range specs {
		if !spec.ID.Valid() {
			return fmt.Errorf("plan %s references unknown agent %q", p.PlanID, spec.ID)
		}
		if seen[spec.ID] {
			return fmt.Errorf("plan %s lists agent %q twice", p.PlanID, spec.ID)
		}
		seen[spec.ID] = true
	}

	// The topological-order check doubles as the acyclicity check: every
	// dependency must appear strictly before its dependent.
	placed := make(map[AgentID]bool, len(specs))
	for _, spec := range specs {
		for _, dep := range spec.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("plan %s: agent %q depends on %q which is not in the plan", p.PlanID, spec.ID, dep)
			}
			if !placed[dep] {
				return fmt.Errorf("plan %s: agent %q scheduled before its dependency %q", p.PlanID, spec.ID, dep)
			}
		}
		placed[spec.ID] = true
	}
	return nil
}

// ResultStatus is the outcome of one agent invocation.
type ResultStatus string

const (
	StatusCompleted ResultStatus = "completed"
	StatusFailed    ResultStatus = "failed"
)

// AgentResult is the immutable record of one agent invocation. Skipped
// agents (upstream failure, cancellation) are recorded as failed with an
// explanatory error, matching the partial-failure policy.
type AgentResult struct {
	AgentID    AgentID      `json:"agent_id"`
	Timestamp  time.Time    `json:"timestamp"`
	Status     ResultStatus `json:"status"`
	Output     string       `json:"output,omitempty"`
	Error      string       `json:"error,omitempty"`
	DurationMs int64        `json:"duration_ms"`
}

// Completed reports whether the agent produced a usable output.
func (r AgentResult) Completed() bool { return r.Status == StatusCompleted }

// RunState is the terminal (or in-flight) state of one plan execution.
type RunState string

const (
	RunPending         RunState = "pending"
	RunRunning         RunState = "running"
	RunCompleted       RunState = "completed"
	RunPartiallyFailed RunState = "partially_failed"
	RunFailed          RunState = "failed"
)

// RunReport is the executor's summary of one plan execution.
type RunReport struct {
	RunID      string                  `json:"run_id"`
	PlanID     string                  `json:"plan_id"`
	Query      string                  `json:"query"`
	State      RunState                `json:"state"`
	Results    map[AgentID]AgentResult `json:"results"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
}

// CompletedCount returns how many agents in the run completed.
func (r *RunReport) CompletedCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Completed() {
			n++
		}
	}
	return n
}

// ResolveRunState applies the partial-failure policy to a finished set of
// results: Failed when the synthesis step failed or nothing completed,
// Completed when everything completed, PartiallyFailed otherwise.
func ResolveRunState(plan *OrchestrationPlan, results map[AgentID]AgentResult) RunState {
	completed := 0
	failed := 0
	for _, res := range results {
		if res.Completed() {
			completed++
		} else {
			failed++
		}
	}

	if plan.Synthesis != nil {
		if res, ok := results[plan.Synthesis.ID]; !ok || !res.Completed() {
			return RunFailed
		}
	}
	if completed == 0 {
		return RunFailed
	}
	if failed == 0 {
		return RunCompleted
	}
	return RunPartiallyFailed
}
