package datasource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var sampleFiles = map[string]string{
	"income_statement.csv": "period,revenue,cogs\n2025-Q1,1200.5,300\n2025-Q2,1450.0,310\n",
	"balance_sheet.csv":    "period,assets\n2025-Q1,5000\n",
	"cash_flow.csv":        "period,net_cash\n2025-Q1,420\n",
	"installed_assets.csv": "customer,region,current_products,upsell_potential,next_steps\n" +
		"Acme Energy,EMEA,Solar Panel X1,25000,Schedule demo\n" +
		"Borealis Prop,EMEA,Heat Pump H2,40000,Send proposal\n" +
		"Cactus Power,AMER,Solar Panel X1,15000,Contact customer\n",
	"lead_funnel.csv": "region,stage,leads\nEMEA,qualified,40\nAMER,contacted,25\n",
	"products.csv":    "product,category\nSolar Panel X1,hardware\nHeat Pump H2,hardware\n",
}

func writeSampleDir(t *testing.T, overrides map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range sampleFiles {
		if override, ok := overrides[name]; ok {
			content = override
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func loadSample(t *testing.T, overrides map[string]string) *Catalog {
	t.Helper()
	catalog, err := Load(writeSampleDir(t, overrides), zap.NewNop())
	require.NoError(t, err)
	return catalog
}

func TestLoadAllDatasets(t *testing.T) {
	catalog := loadSample(t, nil)
	for _, name := range Names() {
		table, err := catalog.Table(name)
		require.NoError(t, err, name)
		assert.Greater(t, table.Len(), 0, name)
	}
}

func TestTableUnknownName(t *testing.T) {
	catalog := loadSample(t, nil)
	_, err := catalog.Table("crm_opportunities")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataSourceNotFound)
}

func TestLoadMissingFile(t *testing.T) {
	dir := writeSampleDir(t, nil)
	require.NoError(t, os.Remove(filepath.Join(dir, "lead_funnel.csv")))

	_, err := Load(dir, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataSourceCorrupt)
	assert.Contains(t, err.Error(), "lead_funnel")
}

func TestLoadMissingRequiredColumn(t *testing.T) {
	_, err := Load(writeSampleDir(t, map[string]string{
		"installed_assets.csv": "customer,zone\nAcme,EMEA\n",
	}), zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataSourceCorrupt)
	assert.Contains(t, err.Error(), "region")
}

func TestLoadUnparseableNumericCell(t *testing.T) {
	_, err := Load(writeSampleDir(t, map[string]string{
		"income_statement.csv": "period,revenue\n2025-Q1,a lot\n",
	}), zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataSourceCorrupt)
	assert.Contains(t, err.Error(), "revenue")
}

func TestLoadRaggedRows(t *testing.T) {
	_, err := Load(writeSampleDir(t, map[string]string{
		"products.csv": "product,category\nSolar Panel X1\n",
	}), zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataSourceCorrupt)
}

func TestLoadDuplicateColumn(t *testing.T) {
	_, err := Load(writeSampleDir(t, map[string]string{
		"cash_flow.csv": "period,period\n2025-Q1,2025-Q1\n",
	}), zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataSourceCorrupt)
}

func TestQueryEqualityAndRange(t *testing.T) {
	catalog := loadSample(t, nil)

	rows, err := catalog.Query(InstalledAssets, Predicate{{Column: "region", Equals: "EMEA"}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// Original file order preserved.
	assert.Equal(t, "Acme Energy", rows[0]["customer"])
	assert.Equal(t, "Borealis Prop", rows[1]["customer"])

	min := 20000.0
	rows, err = catalog.Query(InstalledAssets, Predicate{
		{Column: "region", Equals: "EMEA"},
		{Column: "upsell_potential", Min: &min},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	max := 30000.0
	rows, err = catalog.Query(InstalledAssets, Predicate{
		{Column: "upsell_potential", Min: &min, Max: &max},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Acme Energy", rows[0]["customer"])
}

func TestQueryRestartable(t *testing.T) {
	catalog := loadSample(t, nil)
	pred := Predicate{{Column: "region", Equals: "EMEA"}}

	first, err := catalog.Query(InstalledAssets, pred)
	require.NoError(t, err)
	second, err := catalog.Query(InstalledAssets, pred)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestQueryUnknownColumn(t *testing.T) {
	catalog := loadSample(t, nil)
	_, err := catalog.Query(Products, Predicate{{Column: "sku", Equals: "X1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sku")
}

func TestSummaryStats(t *testing.T) {
	catalog := loadSample(t, nil)

	summary, err := catalog.SummaryStats(InstalledAssets)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Rows)
	require.Len(t, summary.Numeric, 1)
	stats := summary.Numeric[0]
	assert.Equal(t, "upsell_potential", stats.Column)
	assert.Equal(t, 15000.0, stats.Min)
	assert.Equal(t, 40000.0, stats.Max)
	assert.InDelta(t, 26666.67, stats.Mean, 0.01)
}

func TestSummariesSkipsUnknown(t *testing.T) {
	catalog := loadSample(t, nil)
	summaries := catalog.Summaries([]string{LeadFunnel, "nope", Products})
	require.Len(t, summaries, 2)
	assert.Equal(t, LeadFunnel, summaries[0].Name)
	assert.Equal(t, Products, summaries[1].Name)
}
