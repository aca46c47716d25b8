package evaluator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightgrid-ai/orchestrator/internal/metrics"
	"github.com/insightgrid-ai/orchestrator/internal/models"
)

// RatingInput carries everything a judge needs to rate one criterion.
type RatingInput struct {
	AgentType models.AgentID
	Query     string
	Response  string
}

// CriterionRating is one judge verdict for one criterion.
type CriterionRating struct {
	Rating  int
	Comment string
}

// Rater produces per-criterion ratings in [1,4]. Implementations may be
// nondeterministic (an LLM judge); that nondeterminism stays behind this
// seam so the arithmetic below is reproducible given fixed ratings.
type Rater interface {
	Rate(ctx context.Context, criterion Criterion, in RatingInput) (CriterionRating, error)
}

// RecordCache stores finished records keyed by input triple so repeat
// evaluations skip the judge entirely.
type RecordCache interface {
	Get(ctx context.Context, in RatingInput) (*EvaluationRecord, bool)
	Put(ctx context.Context, in RatingInput, rec *EvaluationRecord)
}

// Evaluator scores responses with a fixed rubric. The zero value is not
// usable; construct with New.
type Evaluator struct {
	rater   Rater
	weights Weights
	cache   RecordCache
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithWeights overrides the default criterion weights.
func WithWeights(w Weights) Option {
	return func(e *Evaluator) { e.weights = w }
}

// WithCache installs an idempotency cache for finished records.
func WithCache(c RecordCache) Option {
	return func(e *Evaluator) { e.cache = c }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// New builds an Evaluator around the given judge.
func New(rater Rater, logger *zap.Logger, opts ...Option) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Evaluator{
		rater:   rater,
		weights: DefaultWeights(),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate scores one (agent type, query, response) triple. The ratings come
// from the injected Rater; the weighting, rounding, and clamping here are
// deterministic, so identical ratings always produce the identical record.
func (e *Evaluator) Evaluate(ctx context.Context, agentType models.AgentID, query, response string) (*EvaluationRecord, error) {
	if err := e.weights.Validate(); err != nil {
		return nil, err
	}
	if !agentType.Valid() {
		return nil, errorsf("unknown agent type %q", agentType)
	}

	in := RatingInput{AgentType: agentType, Query: query, Response: response}
	if e.cache != nil {
		if rec, ok := e.cache.Get(ctx, in); ok {
			metrics.EvaluationCacheHits.Inc()
			return rec, nil
		}
	}

	ratings := make(map[Criterion]CriterionRating, len(Criteria))
	for _, criterion := range Criteria {
		rating, err := e.rater.Rate(ctx, criterion, in)
		if err != nil {
			return nil, fmt.Errorf("rate %s: %w", criterion, err)
		}
		ratings[criterion] = rating
	}

	rec, err := e.Score(agentType, query, response, ratings)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.Put(ctx, in, rec)
	}

	metrics.EvaluationsCompleted.WithLabelValues(string(agentType)).Inc()
	metrics.EvaluationTotalScore.WithLabelValues(string(agentType)).Observe(float64(rec.TotalScore))
	e.logger.Info("Evaluation completed",
		zap.String("agent_type", string(agentType)),
		zap.Int("total_score", rec.TotalScore))
	return rec, nil
}

// Score is the pure arithmetic layer: validate ratings, compute weighted
// points, round half up, clamp to [1,10]. Exposed separately so the
// deterministic core can be tested without any judge.
func (e *Evaluator) Score(agentType models.AgentID, query, response string, ratings map[Criterion]CriterionRating) (*EvaluationRecord, error) {
	if err := e.weights.Validate(); err != nil {
		return nil, err
	}
	for _, criterion := range Criteria {
		rating, ok := ratings[criterion]
		if !ok {
			return nil, errorsf("missing rating for criterion %q", criterion)
		}
		if rating.Rating < MinRating || rating.Rating > MaxRating {
			return nil, errorsf("rating %d for criterion %q outside [%d,%d]",
				rating.Rating, criterion, MinRating, MaxRating)
		}
	}

	rec := &EvaluationRecord{
		Timestamp: e.now().UTC(),
		AgentType: agentType,
		Query:     query,
		Response:  response,
		Criteria:  make(map[Criterion]CriterionScore, len(Criteria)),
	}

	var total float64
	for _, criterion := range Criteria {
		rating := ratings[criterion]
		points := float64(rating.Rating) / float64(MaxRating) * e.weights[criterion] * float64(MaxTotalScore)
		rec.Criteria[criterion] = CriterionScore{
			Rating:  rating.Rating,
			Points:  points,
			Comment: rating.Comment,
		}
		total += points
	}

	// Round half up, then clamp. math.Floor(x+0.5) is half-up for the
	// non-negative sums produced here; the rule is fixed so the 2.5 floor
	// case always lands on 3.
	score := int(math.Floor(total + 0.5))
	if score < MinTotalScore {
		score = MinTotalScore
	}
	if score > MaxTotalScore {
		score = MaxTotalScore
	}
	rec.TotalScore = score
	rec.OverallAssessment = assess(score)
	rec.Recommendations = recommend(rec)
	return rec, nil
}

// EvaluateBatch scores each triple independently; the order of items cannot
// affect any individual record, and one invalid item fails only itself.
func (e *Evaluator) EvaluateBatch(ctx context.Context, items []RatingInput) (*BatchEvaluationRecord, error) {
	batch := &BatchEvaluationRecord{
		BatchID:   fmt.Sprintf("batch_evaluation_%s", uuid.NewString()),
		CreatedAt: e.now().UTC(),
	}

	for i, item := range items {
		rec, err := e.Evaluate(ctx, item.AgentType, item.Query, item.Response)
		if err != nil {
			e.logger.Warn("Batch item failed",
				zap.Int("index", i),
				zap.String("agent_type", string(item.AgentType)),
				zap.Error(err))
			batch.Errors = append(batch.Errors, BatchItemError{
				Index:     i,
				AgentType: item.AgentType,
				Error:     err.Error(),
			})
			continue
		}
		batch.Records = append(batch.Records, *rec)
	}

	batch.Summary = Summarize(batch.Records)
	return batch, nil
}

func assess(score int) string {
	switch {
	case score >= 9:
		return "excellent response, ready for executive use"
	case score >= 7:
		return "good response with minor gaps"
	case score >= 5:
		return "adequate response, needs revision before distribution"
	default:
		return "poor response, rework required"
	}
}

func recommend(rec *EvaluationRecord) []string {
	var recs []string
	for _, criterion := range Criteria {
		if rec.Criteria[criterion].Rating <= 2 {
			recs = append(recs, fmt.Sprintf("improve %s (rated %d/%d)",
				criterion, rec.Criteria[criterion].Rating, MaxRating))
		}
	}
	return recs
}
