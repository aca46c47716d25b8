// Package evalstore persists evaluation records, batch records, and
// orchestration plans as self-describing JSON documents under one
// directory. File name conventions:
//
//	<agent_type>_evaluation_<timestamp>.json  single evaluation
//	batch_evaluation_<uuid>.json              batch evaluation
//	orchestration_<plan_id>.json              archived plan
package evalstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/insightgrid-ai/orchestrator/internal/evaluator"
	"github.com/insightgrid-ai/orchestrator/internal/metrics"
	"github.com/insightgrid-ai/orchestrator/internal/models"
)

// ErrRecordNotFound is returned when an identifier has no stored document.
var ErrRecordNotFound = errors.New("record not found")

const planPrefix = "orchestration_"

// Store is a directory-backed JSON document store.
type Store struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates the store directory if needed.
func New(dir string, logger *zap.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	s := &Store{dir: dir, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save writes one evaluation record and returns its identifier. Two saves
// within the same clock second get distinct identifiers: the second is
// disambiguated with a numeric suffix rather than clobbering the first.
func (s *Store) Save(rec *evaluator.EvaluationRecord) (string, error) {
	base := fmt.Sprintf("%s_evaluation_%s", rec.AgentType, s.now().UTC().Format("20060102_150405"))
	id, err := s.createUnique(base, rec)
	if err != nil {
		return "", err
	}
	metrics.RecordsSaved.WithLabelValues("evaluation").Inc()
	s.logger.Info("Saved evaluation record", zap.String("id", id))
	return id, nil
}

// SaveBatch writes one batch record under its batch id.
func (s *Store) SaveBatch(batch *evaluator.BatchEvaluationRecord) (string, error) {
	id, err := s.createUnique(batch.BatchID, batch)
	if err != nil {
		return "", err
	}
	metrics.RecordsSaved.WithLabelValues("batch").Inc()
	s.logger.Info("Saved batch evaluation record", zap.String("id", id))
	return id, nil
}

// SavePlan archives an orchestration plan under its plan id. Plans are
// written exactly once; a second save for the same id is an error.
func (s *Store) SavePlan(plan *models.OrchestrationPlan) error {
	id := planPrefix + plan.PlanID
	raw, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", id, err)
	}
	if err := s.createExclusive(id, raw); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("plan %s already archived", plan.PlanID)
		}
		return err
	}
	metrics.RecordsSaved.WithLabelValues("plan").Inc()
	return nil
}

// Get loads one evaluation record. ErrRecordNotFound when absent.
func (s *Store) Get(id string) (*evaluator.EvaluationRecord, error) {
	var rec evaluator.EvaluationRecord
	if err := s.read(id, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetBatch loads one batch record.
func (s *Store) GetBatch(id string) (*evaluator.BatchEvaluationRecord, error) {
	var batch evaluator.BatchEvaluationRecord
	if err := s.read(id, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetPlan loads one archived plan by plan id.
func (s *Store) GetPlan(planID string) (*models.OrchestrationPlan, error) {
	var plan models.OrchestrationPlan
	if err := s.read(planPrefix+planID, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// List returns evaluation identifiers (single and batch, not plans),
// most-recent-first. limit <= 0 means no limit. Listing never mutates any
// record and repeated calls over unchanged data return the same sequence.
func (s *Store) List(limit int) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list store dir: %w", err)
	}

	type candidate struct {
		id  string
		mod time.Time
	}
	var found []candidate
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, planPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{id: strings.TrimSuffix(name, ".json"), mod: info.ModTime()})
	}

	sort.Slice(found, func(i, j int) bool {
		if !found[i].mod.Equal(found[j].mod) {
			return found[i].mod.After(found[j].mod)
		}
		// Stable tie-break keeps the listing restartable within one clock
		// resolution.
		return found[i].id > found[j].id
	})

	ids := make([]string, 0, len(found))
	for _, c := range found {
		ids = append(ids, c.id)
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// createUnique writes doc under the first free identifier derived from
// base, appending _<n> on collision. Reservation and write are one atomic
// step (O_EXCL), so concurrent saves within the same clock second get
// distinct suffixes instead of clobbering each other.
func (s *Store) createUnique(base string, doc interface{}) (string, error) {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", base, err)
	}
	id := base
	for n := 1; ; n++ {
		err := s.createExclusive(id, raw)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}

// createExclusive writes raw under id, failing with os.ErrExist when the
// identifier is already taken.
func (s *Store) createExclusive(id string, raw []byte) error {
	f, err := os.OpenFile(s.path(id), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return err
		}
		return fmt.Errorf("create %s: %w", id, err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", id, err)
	}
	return nil
}

func (s *Store) read(id string, doc interface{}) error {
	raw, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %q", ErrRecordNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", id, err)
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return fmt.Errorf("parse %s: %w", id, err)
	}
	return nil
}
