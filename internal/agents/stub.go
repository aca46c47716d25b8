package agents

import (
	"context"
	"fmt"
	"strings"
)

// StubInvoker renders a deterministic prose response from the work order
// alone. It backs offline demo runs and tests where no LLM service exists.
type StubInvoker struct{}

// Invoke never fails; it summarizes directives, data grounding, and the
// upstream view into plain text.
func (StubInvoker) Invoke(ctx context.Context, inv Invocation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", inv.Spec.ID, inv.Query)
	for _, d := range inv.Spec.Directives {
		fmt.Fprintf(&b, "- %s\n", d)
	}
	for _, s := range inv.Summaries {
		fmt.Fprintf(&b, "data %s: %d rows", s.Name, s.Rows)
		for _, col := range s.Numeric {
			fmt.Fprintf(&b, "; %s min=%.2f max=%.2f mean=%.2f", col.Column, col.Min, col.Max, col.Mean)
		}
		b.WriteString("\n")
	}
	for _, up := range inv.Upstream {
		if up.Completed() {
			fmt.Fprintf(&b, "upstream %s: %s\n", up.AgentID, firstLine(up.Output))
		}
	}
	if len(inv.FailedUpstream) > 0 {
		ids := make([]string, len(inv.FailedUpstream))
		for i, id := range inv.FailedUpstream {
			ids[i] = string(id)
		}
		fmt.Fprintf(&b, "note: branches failed or skipped: %s\n", strings.Join(ids, ", "))
	}
	return b.String(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
