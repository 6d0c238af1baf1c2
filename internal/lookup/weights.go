package lookup

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"applicant-registry/internal/models"
)

// DefaultWeight applies to any field without a configured coefficient.
const DefaultWeight = 1.0

// FieldWeights holds the per-field distance coefficients. It is built once
// at startup and never mutated afterwards.
type FieldWeights struct {
	m map[models.FieldName]float64
}

// DefaultFieldWeights returns 1.0 for every fuzzy-eligible field.
func DefaultFieldWeights() FieldWeights {
	m := make(map[models.FieldName]float64)
	for _, f := range FuzzyFields() {
		m[f] = DefaultWeight
	}
	return FieldWeights{m: m}
}

// NewFieldWeights overlays raw on the defaults. Keys must be fuzzy-eligible
// field names; values must be finite and non-negative.
func NewFieldWeights(raw map[string]float64) (FieldWeights, error) {
	w := DefaultFieldWeights()
	eligible := make(map[models.FieldName]bool)
	for _, f := range FuzzyFields() {
		eligible[f] = true
	}

	for key, v := range raw {
		name := models.FieldName(strings.TrimSpace(key))
		if !eligible[name] {
			return FieldWeights{}, fmt.Errorf("weight for %q: not a fuzzy-eligible field", key)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return FieldWeights{}, fmt.Errorf("weight for %q must be finite", key)
		}
		if v < 0 {
			return FieldWeights{}, fmt.Errorf("weight for %q must not be negative, got %g", key, v)
		}
		w.m[name] = v
	}
	return w, nil
}

// Weight returns the coefficient for field, DefaultWeight when unset.
func (w FieldWeights) Weight(field models.FieldName) float64 {
	if v, ok := w.m[field]; ok {
		return v
	}
	return DefaultWeight
}

// Map returns a copy keyed by field name.
func (w FieldWeights) Map() map[string]float64 {
	out := make(map[string]float64, len(w.m))
	for k, v := range w.m {
		out[string(k)] = v
	}
	return out
}

// Fingerprint is a stable textual form used in cache keys.
func (w FieldWeights) Fingerprint() string {
	keys := make([]string, 0, len(w.m))
	for k := range w.m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(w.m[models.FieldName(k)], 'g', -1, 64))
	}
	return b.String()
}
