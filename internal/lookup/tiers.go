package lookup

import (
	"applicant-registry/internal/models"
)

// TierBuilder turns a SearchRequest into the three tier queries. A false
// second return means the tier has no active criteria and is empty without
// touching the store.
type TierBuilder struct {
	scorer *Scorer
}

func NewTierBuilder(scorer *Scorer) *TierBuilder {
	return &TierBuilder{scorer: scorer}
}

func (b *TierBuilder) Scorer() *Scorer {
	return b.scorer
}

// Exact requires every active field to equal the stored value.
func (b *TierBuilder) Exact(req SearchRequest) (*Query, bool) {
	return b.equality(req, models.TierExact, "")
}

// Relaxed is Exact with the kind's dropped field removed from the filter.
func (b *TierBuilder) Relaxed(req SearchRequest) (*Query, bool) {
	spec, err := SpecFor(req.Kind)
	if err != nil {
		return nil, false
	}
	return b.equality(req, spec.RelaxedTier, spec.DroppedField)
}

// Fuzzy applies date-exact and equality-only fields as equality filters and
// fuzzy-eligible fields as similarity filters, ranked by Aggregate.
func (b *TierBuilder) Fuzzy(req SearchRequest) (*Query, bool) {
	spec, err := SpecFor(req.Kind)
	if err != nil {
		return nil, false
	}
	active := req.ActiveFields()
	if len(active) == 0 {
		return nil, false
	}

	q := newQuery(spec, models.TierFuzzy)
	for _, f := range active {
		c, _ := req.Active(f.Name)
		if f.Tag == TagFuzzyEligible {
			q.Filters = append(q.Filters, b.scorer.Filter(f, c))
			continue
		}
		q.Filters = append(q.Filters, equal(f, c))
	}
	q.Order = b.scorer.Aggregate(req)
	return q, true
}

func (b *TierBuilder) equality(req SearchRequest, tier models.TierName, drop models.FieldName) (*Query, bool) {
	spec, err := SpecFor(req.Kind)
	if err != nil {
		return nil, false
	}

	q := newQuery(spec, tier)
	for _, f := range req.ActiveFields() {
		if f.Name == drop {
			continue
		}
		c, _ := req.Active(f.Name)
		q.Filters = append(q.Filters, equal(f, c))
	}
	if len(q.Filters) == 0 {
		return nil, false
	}
	return q, true
}

func newQuery(spec KindSpec, tier models.TierName) *Query {
	return &Query{
		Kind:    spec.Kind,
		Tier:    tier,
		Table:   spec.Table,
		Columns: append([]string(nil), spec.Columns...),
	}
}

func equal(f FieldSpec, c Criterion) Predicate {
	return Predicate{
		Op:     OpEqual,
		Field:  f.Name,
		Column: f.Column,
		Type:   f.Type,
		Value:  c.Value(),
	}
}
