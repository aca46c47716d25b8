// Package datasource loads the fixed set of ERP sample extracts and answers
// filtered lookups for agents. Datasets are read once at process start and
// treated as immutable for the process lifetime, so concurrent readers need
// no locking.
package datasource

import (
	"errors"
	"fmt"
)

// Sentinel errors for the adapter. Callers match with errors.Is.
var (
	ErrDataSourceNotFound = errors.New("data source not found")
	ErrDataSourceCorrupt  = errors.New("data source corrupt")
)

// Dataset names known to the catalog.
const (
	IncomeStatement = "income_statement"
	BalanceSheet    = "balance_sheet"
	CashFlow        = "cash_flow"
	InstalledAssets = "installed_assets"
	LeadFunnel      = "lead_funnel"
	Products        = "products"
)

// datasetSpec declares where a dataset lives and which columns must exist.
// Numeric columns are validated at load time: an unparseable cell in one of
// them fails the load rather than being silently coerced.
type datasetSpec struct {
	file     string
	required []string
	numeric  []string
}

var datasetSpecs = map[string]datasetSpec{
	IncomeStatement: {
		file:     "income_statement.csv",
		required: []string{"period", "revenue"},
		numeric:  []string{"revenue"},
	},
	BalanceSheet: {
		file:     "balance_sheet.csv",
		required: []string{"period"},
	},
	CashFlow: {
		file:     "cash_flow.csv",
		required: []string{"period"},
	},
	InstalledAssets: {
		file:     "installed_assets.csv",
		required: []string{"customer", "region", "upsell_potential"},
		numeric:  []string{"upsell_potential"},
	},
	LeadFunnel: {
		file:     "lead_funnel.csv",
		required: []string{"region"},
	},
	Products: {
		file:     "products.csv",
		required: []string{"product"},
	},
}

// Names returns every dataset name the catalog knows, in a fixed order.
func Names() []string {
	return []string{IncomeStatement, BalanceSheet, CashFlow, InstalledAssets, LeadFunnel, Products}
}

func corrupt(name, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", ErrDataSourceCorrupt, name, fmt.Sprintf(format, args...))
}
