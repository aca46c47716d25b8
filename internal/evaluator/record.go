package evaluator

import (
	"fmt"
	"time"

	"github.com/insightgrid-ai/orchestrator/internal/models"
)

func errorsf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidEvaluationInput, fmt.Sprintf(format, args...))
}

// CriterionScore is the rating, derived points, and feedback for one rubric
// aspect.
type CriterionScore struct {
	Rating  int     `json:"rating"`
	Points  float64 `json:"points"`
	Comment string  `json:"comment,omitempty"`
}

// EvaluationRecord is the structured, weighted multi-criterion score for one
// (agent type, query, response) triple. Immutable once created.
type EvaluationRecord struct {
	Timestamp         time.Time                    `json:"timestamp"`
	AgentType         models.AgentID               `json:"agent_type"`
	Query             string                       `json:"query"`
	Response          string                       `json:"response"`
	Criteria          map[Criterion]CriterionScore `json:"criteria"`
	TotalScore        int                          `json:"total_score"`
	OverallAssessment string                       `json:"overall_assessment,omitempty"`
	Recommendations   []string                     `json:"improvement_recommendations,omitempty"`
}

// Rating returns the raw rating for one criterion.
func (r *EvaluationRecord) Rating(c Criterion) int {
	return r.Criteria[c].Rating
}

// BatchSummary aggregates total scores across a batch.
type BatchSummary struct {
	Count        int              `json:"count"`
	AverageScore float64          `json:"average_score"`
	MinScore     int              `json:"min_score"`
	MaxScore     int              `json:"max_score"`
	AgentTypes   []models.AgentID `json:"agent_types"`
}

// BatchItemError records an item that could not be evaluated. The rest of
// the batch is unaffected.
type BatchItemError struct {
	Index     int            `json:"index"`
	AgentType models.AgentID `json:"agent_type"`
	Error     string         `json:"error"`
}

// BatchEvaluationRecord is the aggregate of one batch evaluation. Derived
// data only; never mutated after creation.
type BatchEvaluationRecord struct {
	BatchID   string             `json:"batch_id"`
	CreatedAt time.Time          `json:"created_at"`
	Records   []EvaluationRecord `json:"records"`
	Errors    []BatchItemError   `json:"errors,omitempty"`
	Summary   BatchSummary       `json:"summary"`
}

// Summarize computes batch statistics over the given records.
func Summarize(records []EvaluationRecord) BatchSummary {
	summary := BatchSummary{Count: len(records)}
	if len(records) == 0 {
		return summary
	}

	seen := make(map[models.AgentID]bool)
	summary.MinScore = records[0].TotalScore
	summary.MaxScore = records[0].TotalScore
	var sum int
	for _, rec := range records {
		sum += rec.TotalScore
		if rec.TotalScore < summary.MinScore {
			summary.MinScore = rec.TotalScore
		}
		if rec.TotalScore > summary.MaxScore {
			summary.MaxScore = rec.TotalScore
		}
		if !seen[rec.AgentType] {
			seen[rec.AgentType] = true
			summary.AgentTypes = append(summary.AgentTypes, rec.AgentType)
		}
	}
	summary.AverageScore = float64(sum) / float64(len(records))
	return summary
}
