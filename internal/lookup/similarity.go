package lookup

import (
	"fmt"

	"applicant-registry/internal/models"
)

// DefaultSimilarityThreshold equals pg_trgm.similarity_threshold's default.
const DefaultSimilarityThreshold = 0.3

// Scorer measures closeness between stored and supplied values and builds the
// fuzzy tier's filter and ranking expressions.
type Scorer struct {
	weights   FieldWeights
	threshold float64
}

// NewScorer validates threshold, which must lie strictly between 0 and 1.
func NewScorer(weights FieldWeights, threshold float64) (*Scorer, error) {
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("similarity threshold must be in (0, 1), got %g", threshold)
	}
	if weights.m == nil {
		weights = DefaultFieldWeights()
	}
	return &Scorer{weights: weights, threshold: threshold}, nil
}

func (s *Scorer) Threshold() float64 {
	return s.threshold
}

func (s *Scorer) Weights() FieldWeights {
	return s.weights
}

// Matches reports whether stored is close enough to query to pass the fuzzy filter.
func (s *Scorer) Matches(stored, query string) bool {
	return Similarity(stored, query) > s.threshold
}

// Distance returns (1 - similarity) scaled by the field weight. Lower is closer.
func (s *Scorer) Distance(field models.FieldName, stored, query string) float64 {
	return (1 - Similarity(stored, query)) * s.weights.Weight(field)
}

// Filter returns the similarity predicate for an active fuzzy-eligible field.
func (s *Scorer) Filter(f FieldSpec, c Criterion) Predicate {
	return Predicate{
		Op:        OpSimilar,
		Field:     f.Name,
		Column:    f.Column,
		Type:      f.Type,
		Value:     c.String(),
		Threshold: s.threshold,
	}
}

// Aggregate returns one distance term per active fuzzy-eligible field of req.
// The ranking key is their plain sum.
func (s *Scorer) Aggregate(req SearchRequest) []DistanceTerm {
	var terms []DistanceTerm
	for _, f := range req.ActiveFields() {
		if f.Tag != TagFuzzyEligible {
			continue
		}
		c, _ := req.Active(f.Name)
		terms = append(terms, DistanceTerm{
			Field:  f.Name,
			Column: f.Column,
			Value:  c.String(),
			Weight: s.weights.Weight(f.Name),
		})
	}
	return terms
}

// Score evaluates the summed distance of terms against a row. column returns
// the stored text of a column and false for NULL, which scores as no overlap.
func (s *Scorer) Score(terms []DistanceTerm, column func(name string) (string, bool)) float64 {
	total := 0.0
	for _, t := range terms {
		stored, ok := column(t.Column)
		sim := 0.0
		if ok {
			sim = Similarity(stored, t.Value)
		}
		total += (1 - sim) * t.Weight
	}
	return total
}
