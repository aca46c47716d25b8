// Package state holds the per-run shared context that carries agent outputs
// between dependent agents. One SharedContext exists per plan execution and
// is never reused across runs.
package state

import (
	"fmt"
	"sync"

	"github.com/insightgrid-ai/orchestrator/internal/models"
)

// SharedContext is an append-only map from agent id to its result. Only the
// executor writes to it, exactly once per agent id; agents read the subset
// matching their declared dependencies. The mutex makes the write path safe
// for the parallel-branch execution mode.
type SharedContext struct {
	mu      sync.RWMutex
	results map[models.AgentID]models.AgentResult
	order   []models.AgentID
	sealed  bool
}

// NewSharedContext returns an empty context for one run.
func NewSharedContext() *SharedContext {
	return &SharedContext{results: make(map[models.AgentID]models.AgentResult)}
}

// Record stores the result for one agent. It fails if a result for the same
// id was already recorded (write-once invariant) or if the context has been
// sealed by cancellation.
func (c *SharedContext) Record(result models.AgentResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return fmt.Errorf("shared context sealed, refusing write for agent %q", result.AgentID)
	}
	if _, exists := c.results[result.AgentID]; exists {
		return fmt.Errorf("agent %q already has a recorded result", result.AgentID)
	}
	c.results[result.AgentID] = result
	c.order = append(c.order, result.AgentID)
	return nil
}

// Seal stops all further writes. The executor calls this when it observes
// cancellation so that in-flight invocations cannot land late results.
func (c *SharedContext) Seal() {
	c.mu.Lock()
	c.sealed = true
	c.mu.Unlock()
}

// Get returns the recorded result for an agent, if any.
func (c *SharedContext) Get(id models.AgentID) (models.AgentResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.results[id]
	return res, ok
}

// Completed reports whether the agent has a completed result recorded.
func (c *SharedContext) Completed(id models.AgentID) bool {
	res, ok := c.Get(id)
	return ok && res.Completed()
}

// Upstream returns the results for the given dependency ids, in the given
// order, skipping ids with no recorded result. This is the only view an
// agent receives of other agents' work.
func (c *SharedContext) Upstream(deps []models.AgentID) []models.AgentResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.AgentResult, 0, len(deps))
	for _, id := range deps {
		if res, ok := c.results[id]; ok {
			out = append(out, res)
		}
	}
	return out
}

// Snapshot copies every recorded result in insertion order. The synthesis
// agent receives this full view; the executor uses it for the run report.
func (c *SharedContext) Snapshot() []models.AgentResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.AgentResult, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.results[id])
	}
	return out
}

// AsMap copies the results into a plain map for reports and persistence.
func (c *SharedContext) AsMap() map[models.AgentID]models.AgentResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[models.AgentID]models.AgentResult, len(c.results))
	for id, res := range c.results {
		out[id] = res
	}
	return out
}

// Len returns the number of recorded results.
func (c *SharedContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}
