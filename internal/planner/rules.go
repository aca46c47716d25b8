package planner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/insightgrid-ai/orchestrator/internal/datasource"
	"github.com/insightgrid-ai/orchestrator/internal/models"
)

// Rule maps detectable query features to one agent variant. Rules are
// evaluated in list order; every rule whose keywords match contributes its
// agent, so selection is multi-select with a fixed, documented precedence
// (operations, upsell, campaign, financial) that determines plan ordering
// when several rules fire.
type Rule struct {
	Agent       models.AgentID   `yaml:"agent"`
	Keywords    []string         `yaml:"keywords"`
	Directives  []string         `yaml:"directives"`
	DataSources []string         `yaml:"data_sources"`
	// DependsOn lists upstream agents in preference order; entries not
	// selected for the same plan are pruned, keeping the graph closed.
	DependsOn []models.AgentID `yaml:"depends_on"`
}

// DefaultRules mirrors the production agent pipeline: operations feeds
// upsell discovery, which feeds campaign planning, which feeds financial
// impact.
func DefaultRules() []Rule {
	return []Rule{
		{
			Agent:    models.AgentOperations,
			Keywords: []string{"performance", "analyze", "operations", "quarter", "q1", "q2", "q3", "q4"},
			Directives: []string{
				"Generate an operations summary for the requested period",
				"Identify critical operational issues",
				"Provide a regional performance breakdown",
			},
			DataSources: []string{datasource.InstalledAssets, datasource.LeadFunnel},
		},
		{
			Agent:    models.AgentUpsell,
			Keywords: []string{"growth", "strategy", "upsell", "opportunity", "opportunities", "expansion"},
			Directives: []string{
				"Find the top upsell opportunities",
				"Prioritize by potential value",
				"Include customer context and justification",
			},
			DataSources: []string{datasource.InstalledAssets, datasource.Products},
			DependsOn:   []models.AgentID{models.AgentOperations},
		},
		{
			Agent:    models.AgentCampaign,
			Keywords: []string{"campaign", "marketing", "sales", "outreach"},
			Directives: []string{
				"Create a targeted marketing campaign",
				"Define campaign timeline and channels",
				"Estimate conversion rates and revenue",
			},
			DataSources: []string{datasource.LeadFunnel, datasource.Products},
			DependsOn:   []models.AgentID{models.AgentUpsell},
		},
		{
			Agent:    models.AgentFinancial,
			Keywords: []string{"financial", "revenue", "roi", "impact", "forecast", "margin"},
			Directives: []string{
				"Calculate the financial impact of the recommendations",
				"Provide an ROI analysis",
				"Generate quarterly forecasts",
			},
			DataSources: []string{datasource.IncomeStatement, datasource.BalanceSheet, datasource.CashFlow},
			DependsOn:   []models.AgentID{models.AgentCampaign},
		},
	}
}

// SynthesisSpec builds the terminal combine-everything spec over the given
// upstream agents.
func SynthesisSpec(upstream []models.AgentID) models.AgentSpec {
	return models.AgentSpec{
		ID: models.AgentSynthesis,
		Directives: []string{
			"Combine all agent outputs into an executive summary",
			"Explicitly note any branches that failed or were skipped",
			"Provide actionable recommendations",
		},
		DependsOn: upstream,
	}
}

// LoadRules reads a rule list from a YAML file, validating agent ids and
// keyword presence. Used to override DefaultRules without a rebuild.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s defines no rules", path)
	}
	for i, rule := range doc.Rules {
		if !rule.Agent.Valid() || rule.Agent == models.AgentSynthesis {
			return nil, fmt.Errorf("rules file %s: rule %d has invalid agent %q", path, i, rule.Agent)
		}
		if len(rule.Keywords) == 0 {
			return nil, fmt.Errorf("rules file %s: rule %d for %q has no keywords", path, i, rule.Agent)
		}
	}
	return doc.Rules, nil
}
