package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentIDValid(t *testing.T) {
	for _, id := range KnownAgentIDs {
		assert.True(t, id.Valid(), "expected %q to be valid", id)
	}
	assert.False(t, AgentID("fortune_teller").Valid())
	assert.False(t, AgentID("").Valid())
}

func TestPlanValidateTopologicalOrder(t *testing.T) {
	testCases := []struct {
		name      string
		plan      OrchestrationPlan
		expectErr string
	}{
		{
			name: "valid chain",
			plan: OrchestrationPlan{
				PlanID: "p1",
				AgentSpecs: []AgentSpec{
					{ID: AgentOperations},
					{ID: AgentUpsell, DependsOn: []AgentID{AgentOperations}},
				},
				Synthesis: &AgentSpec{ID: AgentSynthesis, DependsOn: []AgentID{AgentOperations, AgentUpsell}},
			},
		},
		{
			name: "dependency scheduled after dependent",
			plan: OrchestrationPlan{
				PlanID: "p2",
				AgentSpecs: []AgentSpec{
					{ID: AgentUpsell, DependsOn: []AgentID{AgentOperations}},
					{ID: AgentOperations},
				},
			},
			expectErr: "scheduled before its dependency",
		},
		{
			name: "dependency missing from plan",
			plan: OrchestrationPlan{
				PlanID: "p3",
				AgentSpecs: []AgentSpec{
					{ID: AgentCampaign, DependsOn: []AgentID{AgentUpsell}},
				},
			},
			expectErr: "not in the plan",
		},
		{
			name: "duplicate agent",
			plan: OrchestrationPlan{
				PlanID: "p4",
				AgentSpecs: []AgentSpec{
					{ID: AgentFinancial},
					{ID: AgentFinancial},
				},
			},
			expectErr: "twice",
		},
		{
			name:      "empty plan",
			plan:      OrchestrationPlan{PlanID: "p5"},
			expectErr: "no agent specs",
		},
		{
			name: "unknown agent",
			plan: OrchestrationPlan{
				PlanID:     "p6",
				AgentSpecs: []AgentSpec{{ID: AgentID("mystery")}},
			},
			expectErr: "unknown agent",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.plan.Validate()
			if tc.expectErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectErr)
			}
		})
	}
}

func TestPlanValidateCycle(t *testing.T) {
	// A two-node cycle cannot be laid out in any order that passes the
	// before-check, regardless of which node comes first.
	plan := OrchestrationPlan{
		PlanID: "cycle",
		AgentSpecs: []AgentSpec{
			{ID: AgentUpsell, DependsOn: []AgentID{AgentCampaign}},
			{ID: AgentCampaign, DependsOn: []AgentID{AgentUpsell}},
		},
	}
	require.Error(t, plan.Validate())

	plan.AgentSpecs[0], plan.AgentSpecs[1] = plan.AgentSpecs[1], plan.AgentSpecs[0]
	require.Error(t, plan.Validate())
}

func TestPlanAllSpecsAndSpec(t *testing.T) {
	plan := OrchestrationPlan{
		PlanID:     "p",
		AgentSpecs: []AgentSpec{{ID: AgentOperations}, {ID: AgentFinancial}},
		Synthesis:  &AgentSpec{ID: AgentSynthesis, DependsOn: []AgentID{AgentOperations, AgentFinancial}},
	}

	specs := plan.AllSpecs()
	require.Len(t, specs, 3)
	assert.Equal(t, AgentSynthesis, specs[2].ID)

	require.NotNil(t, plan.Spec(AgentSynthesis))
	require.NotNil(t, plan.Spec(AgentFinancial))
	assert.Nil(t, plan.Spec(AgentCampaign))
}

func TestRunReportCompletedCount(t *testing.T) {
	report := RunReport{
		Results: map[AgentID]AgentResult{
			AgentOperations: {AgentID: AgentOperations, Status: StatusCompleted, Timestamp: time.Now()},
			AgentUpsell:     {AgentID: AgentUpsell, Status: StatusFailed, Error: "boom"},
		},
	}
	assert.Equal(t, 1, report.CompletedCount())
	assert.True(t, report.Results[AgentOperations].Completed())
	assert.False(t, report.Results[AgentUpsell].Completed())
}

func TestResolveRunState(t *testing.T) {
	planWithSynthesis := &OrchestrationPlan{
		PlanID:     "p",
		AgentSpecs: []AgentSpec{{ID: AgentOperations}, {ID: AgentFinancial}},
		Synthesis:  &AgentSpec{ID: AgentSynthesis, DependsOn: []AgentID{AgentOperations, AgentFinancial}},
	}
	planSolo := &OrchestrationPlan{
		PlanID:     "solo",
		AgentSpecs: []AgentSpec{{ID: AgentOperations}},
	}
	done := AgentResult{Status: StatusCompleted}
	failed := AgentResult{Status: StatusFailed, Error: "boom"}

	tests := []struct {
		name    string
		plan    *OrchestrationPlan
		results map[AgentID]AgentResult
		want    RunState
	}{
		{
			name: "all completed",
			plan: planWithSynthesis,
			results: map[AgentID]AgentResult{
				AgentOperations: done, AgentFinancial: done, AgentSynthesis: done,
			},
			want: RunCompleted,
		},
		{
			name: "branch failed, synthesis completed",
			plan: planWithSynthesis,
			results: map[AgentID]AgentResult{
				AgentOperations: failed, AgentFinancial: done, AgentSynthesis: done,
			},
			want: RunPartiallyFailed,
		},
		{
			name: "synthesis failed",
			plan: planWithSynthesis,
			results: map[AgentID]AgentResult{
				AgentOperations: done, AgentFinancial: done, AgentSynthesis: failed,
			},
			want: RunFailed,
		},
		{
			name: "synthesis missing",
			plan: planWithSynthesis,
			results: map[AgentID]AgentResult{
				AgentOperations: done, AgentFinancial: done,
			},
			want: RunFailed,
		},
		{
			name:    "nothing completed",
			plan:    planSolo,
			results: map[AgentID]AgentResult{AgentOperations: failed},
			want:    RunFailed,
		},
		{
			name:    "single agent completed",
			plan:    planSolo,
			results: map[AgentID]AgentResult{AgentOperations: done},
			want:    RunCompleted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveRunState(tt.plan, tt.results))
		})
	}
}
