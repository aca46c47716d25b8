package datasource

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

// Catalog holds every loaded dataset. Load it once at startup; afterwards it
// is read-only and safe to share across concurrent agent invocations.
type Catalog struct {
	tables map[string]*Table
	logger *zap.Logger
}

// Load reads all known datasets from dir. It fails fast on the first
// malformed file so a process never runs with a partially valid catalog.
func Load(dir string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tables := make(map[string]*Table, len(datasetSpecs))
	for _, name := range Names() {
		spec := datasetSpecs[name]
		table, err := loadTable(name, filepath.Join(dir, spec.file), spec)
		if err != nil {
			return nil, err
		}
		tables[name] = table
		logger.Info("Loaded dataset",
			zap.String("dataset", name),
			zap.Int("rows", table.Len()),
			zap.Int("columns", len(table.Columns)))
	}

	return &Catalog{tables: tables, logger: logger}, nil
}

// Table returns the named dataset or ErrDataSourceNotFound.
func (c *Catalog) Table(name string) (*Table, error) {
	table, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDataSourceNotFound, name)
	}
	return table, nil
}

// Query runs a predicate against the named dataset.
func (c *Catalog) Query(name string, pred Predicate) ([]Row, error) {
	table, err := c.Table(name)
	if err != nil {
		return nil, err
	}
	return table.Query(pred)
}

// SummaryStats returns the summary for the named dataset.
func (c *Catalog) SummaryStats(name string) (Summary, error) {
	table, err := c.Table(name)
	if err != nil {
		return Summary{}, err
	}
	return table.SummaryStats(), nil
}

// Summaries returns summaries for the given dataset names, skipping names
// the catalog does not know. Agents use this as lightweight data grounding.
func (c *Catalog) Summaries(names []string) []Summary {
	out := make([]Summary, 0, len(names))
	for _, name := range names {
		if table, ok := c.tables[name]; ok {
			out = append(out, table.SummaryStats())
		}
	}
	return out
}
