package lookup

import (
	"context"

	"applicant-registry/internal/models"
)

// Op is a filter capability a store must provide.
type Op int

const (
	// OpEqual keeps rows whose column equals Value.
	OpEqual Op = iota + 1
	// OpSimilar keeps rows whose column has trigram similarity above Threshold.
	OpSimilar
)

func (o Op) String() string {
	switch o {
	case OpEqual:
		return "equal"
	case OpSimilar:
		return "similar"
	default:
		return "unknown"
	}
}

// Predicate is one filter of a Query. Value is a string, time.Time or
// models.StructuredAddress.
type Predicate struct {
	Op        Op
	Field     models.FieldName
	Column    string
	Type      ValueType
	Value     interface{}
	Threshold float64
}

// DistanceTerm contributes (1 - similarity(Column, Value)) * Weight to the
// ranking key of a row.
type DistanceTerm struct {
	Field  models.FieldName
	Column string
	Value  string
	Weight float64
}

// Query is a backend-neutral read query for one tier of one kind. Rows pass
// when every filter holds. When Order is set rows are sorted by the summed
// distance ascending, then by id.
type Query struct {
	Kind    models.ApplicantKind
	Tier    models.TierName
	Table   string
	Columns []string
	Filters []Predicate
	Order   []DistanceTerm
}

// Ranked reports whether the query carries a distance ordering.
func (q *Query) Ranked() bool {
	return len(q.Order) > 0
}

// Store compiles and runs queries against a record backend. Implementations
// map connection failures to ErrStoreUnavailable, rejected values to
// ErrInvalidCriterion and everything else to ErrQueryFailed.
type Store interface {
	Find(ctx context.Context, q *Query) ([]Candidate, error)
}

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
