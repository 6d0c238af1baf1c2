package lookup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"applicant-registry/internal/models"
)

func personRequest(t *testing.T, fields map[string]interface{}) SearchRequest {
	t.Helper()
	req, err := ParseSearchRequest(models.KindIndividual, fields)
	require.NoError(t, err)
	return req
}

func filterColumns(q *Query) []string {
	out := make([]string, 0, len(q.Filters))
	for _, p := range q.Filters {
		out = append(out, p.Column)
	}
	return out
}

func TestTierBuilder_Exact(t *testing.T) {
	b := NewTierBuilder(newTestScorer(t, nil))
	req := personRequest(t, map[string]interface{}{
		"first_name": "Ivan",
		"last_name":  "Ivanov",
		"birth_date": "1990-05-17",
		"snils":      "",
	})

	q, ok := b.Exact(req)
	require.True(t, ok)
	assert.Equal(t, models.TierExact, q.Tier)
	assert.Equal(t, "individuals", q.Table)
	assert.Equal(t, []string{"first_name", "last_name", "birth_date"}, filterColumns(q))
	assert.False(t, q.Ranked())
	for _, p := range q.Filters {
		assert.Equal(t, OpEqual, p.Op)
	}
	assert.Equal(t, mustDate(t, "1990-05-17"), q.Filters[2].Value)
}

func TestTierBuilder_Relaxed(t *testing.T) {
	b := NewTierBuilder(newTestScorer(t, nil))

	q, ok := b.Relaxed(personRequest(t, map[string]interface{}{"first_name": "Ivan", "last_name": "Ivanov"}))
	require.True(t, ok)
	assert.Equal(t, models.TierWithoutLastName, q.Tier)
	assert.Equal(t, []string{"first_name"}, filterColumns(q))

	_, ok = b.Relaxed(personRequest(t, map[string]interface{}{"last_name": "Ivanov"}))
	assert.False(t, ok, "only the dropped field is active")

	org, err := ParseSearchRequest(models.KindOrganization, map[string]interface{}{"full_name": "ACME LLC", "inn": "9999999999"})
	require.NoError(t, err)
	q, ok = b.Relaxed(org)
	require.True(t, ok)
	assert.Equal(t, models.TierWithoutINN, q.Tier)
	assert.Equal(t, []string{"full_name"}, filterColumns(q))
}

func TestTierBuilder_Fuzzy(t *testing.T) {
	b := NewTierBuilder(newTestScorer(t, map[string]float64{"first_name": 0.5}))
	req := personRequest(t, map[string]interface{}{
		"first_name": "Ivan",
		"last_name":  "Ivanov",
		"birth_date": "1990-05-17",
		"inn":        "123456789012",
	})

	q, ok := b.Fuzzy(req)
	require.True(t, ok)
	assert.Equal(t, models.TierFuzzy, q.Tier)
	require.Len(t, q.Filters, 4)

	ops := map[string]Op{}
	for _, p := range q.Filters {
		ops[p.Column] = p.Op
	}
	assert.Equal(t, map[string]Op{
		"first_name": OpSimilar,
		"last_name":  OpSimilar,
		"birth_date": OpEqual,
		"inn":        OpEqual,
	}, ops)

	require.Len(t, q.Order, 2)
	assert.Equal(t, "first_name", q.Order[0].Column)
	assert.Equal(t, 0.5, q.Order[0].Weight)
	assert.Equal(t, "last_name", q.Order[1].Column)
	assert.Equal(t, 1.0, q.Order[1].Weight)
}

func TestTierBuilder_NoActiveCriteria(t *testing.T) {
	b := NewTierBuilder(newTestScorer(t, nil))
	req := personRequest(t, map[string]interface{}{"first_name": "", "last_name": "  ", "birth_date": nil})

	_, ok := b.Exact(req)
	assert.False(t, ok)
	_, ok = b.Relaxed(req)
	assert.False(t, ok)
	_, ok = b.Fuzzy(req)
	assert.False(t, ok)
}

func TestTierBuilder_BlankEqualsAbsent(t *testing.T) {
	b := NewTierBuilder(newTestScorer(t, nil))
	withBlank := personRequest(t, map[string]interface{}{"first_name": "Ivan", "middle_name": ""})
	without := personRequest(t, map[string]interface{}{"first_name": "Ivan"})

	for _, build := range []func(SearchRequest) (*Query, bool){b.Exact, b.Relaxed, b.Fuzzy} {
		q1, ok1 := build(withBlank)
		q2, ok2 := build(without)
		assert.Equal(t, ok2, ok1)
		assert.Equal(t, q2, q1)
	}
}

func TestTierBuilder_OrganizationFuzzy(t *testing.T) {
	b := NewTierBuilder(newTestScorer(t, nil))
	req, err := ParseSearchRequest(models.KindOrganization, map[string]interface{}{
		"inn":           "1234567890",
		"legal_address": map[string]interface{}{"city": "Moscow"},
	})
	require.NoError(t, err)

	q, ok := b.Fuzzy(req)
	require.True(t, ok)
	assert.Empty(t, q.Order)
	assert.Equal(t, []string{"inn", "legal_address"}, filterColumns(q))
	assert.Equal(t, ValueAddress, q.Filters[1].Type)
}
