package evaluator

import (
	"context"
	"strings"

	"github.com/insightgrid-ai/orchestrator/internal/datasource"
)

// HeuristicRater is a fast, deterministic judge for offline runs and CI. It
// avoids external calls entirely; deployments inject an LLM-backed Rater
// instead.
type HeuristicRater struct{}

// Rate applies cheap lexical checks per criterion.
func (HeuristicRater) Rate(_ context.Context, criterion Criterion, in RatingInput) (CriterionRating, error) {
	response := strings.TrimSpace(in.Response)
	if len(response) < 8 {
		return CriterionRating{Rating: MinRating, Comment: "response too short or empty"}, nil
	}
	lower := strings.ToLower(response)

	switch criterion {
	case Factuality:
		if strings.ContainsAny(lower, "0123456789") {
			return CriterionRating{Rating: 3, Comment: "cites concrete figures"}, nil
		}
		return CriterionRating{Rating: 2, Comment: "no concrete figures cited"}, nil

	case DataSourceValidation:
		for _, name := range datasource.Names() {
			if strings.Contains(lower, name) || strings.Contains(lower, strings.ReplaceAll(name, "_", " ")) {
				return CriterionRating{Rating: 4, Comment: "references a known data source"}, nil
			}
		}
		return CriterionRating{Rating: 2, Comment: "no data source referenced"}, nil

	case InstructionFollowing:
		if overlap(lower, strings.ToLower(in.Query)) >= 2 {
			return CriterionRating{Rating: 3, Comment: "addresses the query terms"}, nil
		}
		return CriterionRating{Rating: 2, Comment: "weak overlap with the query"}, nil

	case Conciseness:
		if len(response) <= 1500 {
			return CriterionRating{Rating: 3, Comment: "reasonably focused"}, nil
		}
		return CriterionRating{Rating: 2, Comment: "overly long"}, nil

	case Completeness:
		if strings.Count(response, ".") >= 3 {
			return CriterionRating{Rating: 3, Comment: "covers multiple points"}, nil
		}
		return CriterionRating{Rating: 2, Comment: "thin coverage"}, nil
	}

	return CriterionRating{Rating: 2}, nil
}

// overlap counts distinct words longer than three characters that appear in
// both strings.
func overlap(a, b string) int {
	words := make(map[string]bool)
	for _, w := range strings.Fields(b) {
		w = strings.Trim(w, ".,!?:;")
		if len(w) > 3 {
			words[w] = true
		}
	}
	n := 0
	counted := make(map[string]bool)
	for _, w := range strings.Fields(a) {
		w = strings.Trim(w, ".,!?:;")
		if words[w] && !counted[w] {
			counted[w] = true
			n++
		}
	}
	return n
}
