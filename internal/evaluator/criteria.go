// Package evaluator scores agent responses against a fixed five-criterion
// weighted rubric. The rating step sits behind the Rater interface because
// it is typically an LLM judge; everything after the ratings is pure,
// deterministic arithmetic.
package evaluator

import (
	"errors"
	"math"
)

// Criterion is one rubric aspect.
type Criterion string

const (
	Factuality           Criterion = "factuality"
	InstructionFollowing Criterion = "instruction_following"
	Conciseness          Criterion = "conciseness"
	Completeness         Criterion = "completeness"
	DataSourceValidation Criterion = "data_source_validation"
)

// Criteria lists the rubric aspects in their canonical order.
var Criteria = []Criterion{
	Factuality,
	InstructionFollowing,
	Conciseness,
	Completeness,
	DataSourceValidation,
}

// Rating bounds. Ratings are integers: 1 = very poor, 4 = very good.
const (
	MinRating = 1
	MaxRating = 4
)

// Total score bounds after weighting.
const (
	MinTotalScore = 1
	MaxTotalScore = 10
)

// Default criterion weights. Factuality is weighted heaviest; the weights
// must sum to 1.0.
const (
	FactualityWeight           = 0.30
	InstructionFollowingWeight = 0.25
	ConcisenessWeight          = 0.15
	CompletenessWeight         = 0.15
	DataSourceValidationWeight = 0.15
)

// weightTolerance is the floating tolerance for the weight-sum check.
const weightTolerance = 1e-6

// ErrInvalidEvaluationInput covers out-of-range ratings and malformed
// weights. The arithmetic layer validates before computing anything.
var ErrInvalidEvaluationInput = errors.New("invalid evaluation input")

// Weights maps each criterion to its share of the total score.
type Weights map[Criterion]float64

// DefaultWeights returns a fresh copy of the standard weights.
func DefaultWeights() Weights {
	return Weights{
		Factuality:           FactualityWeight,
		InstructionFollowing: InstructionFollowingWeight,
		Conciseness:          ConcisenessWeight,
		Completeness:         CompletenessWeight,
		DataSourceValidation: DataSourceValidationWeight,
	}
}

// Validate checks that every criterion has a weight and the weights sum to
// 1.0 within tolerance.
func (w Weights) Validate() error {
	var sum float64
	for _, criterion := range Criteria {
		weight, ok := w[criterion]
		if !ok {
			return errorsf("missing weight for criterion %q", criterion)
		}
		if weight < 0 {
			return errorsf("negative weight %v for criterion %q", weight, criterion)
		}
		sum += weight
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return errorsf("weights sum to %v, want 1.0", sum)
	}
	return nil
}
