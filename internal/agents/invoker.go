// Package agents is the invocation boundary between the orchestration core
// and the language-model collaborator that actually produces analysis prose.
package agents

import (
	"context"

	"github.com/insightgrid-ai/orchestrator/internal/datasource"
	"github.com/insightgrid-ai/orchestrator/internal/models"
)

// Invocation carries one agent's work order: its spec, the upstream results
// it is allowed to see, and summaries of its declared data sources.
type Invocation struct {
	RunID     string
	Query     string
	Spec      models.AgentSpec
	Upstream  []models.AgentResult
	Summaries []datasource.Summary
	// FailedUpstream names branches that failed or were skipped; the
	// synthesis agent must mention them rather than silently omitting
	// failures.
	FailedUpstream []models.AgentID
}

// Invoker executes one agent invocation. Implementations report failures as
// a typed error return, never panic, and honor ctx cancellation. The
// executor wraps the outcome into an AgentResult.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (string, error)
}
