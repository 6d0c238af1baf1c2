package lookup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"applicant-registry/internal/models"
)

// ==========================
// Mock Store
// ==========================

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Find(ctx context.Context, q *Query) ([]Candidate, error) {
	args := m.Called(ctx, q)
	rows, _ := args.Get(0).([]Candidate)
	return rows, args.Error(1)
}

func tier(name models.TierName) interface{} {
	return mock.MatchedBy(func(q *Query) bool { return q.Tier == name })
}

func newTestKindLookup(t *testing.T, kind models.ApplicantKind, store Store, parallel bool) *KindLookup {
	t.Helper()
	kl, err := NewKindLookup(kind, NewTierBuilder(newTestScorer(t, nil)), store, parallel)
	require.NoError(t, err)
	return kl
}

// ==========================
// Tests
// ==========================

func TestKindLookup_AllTiers(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		store := &mockStore{}
		store.On("Find", mock.Anything, tier(models.TierExact)).Return([]Candidate{{ID: "1"}}, nil).Once()
		store.On("Find", mock.Anything, tier(models.TierWithoutLastName)).Return([]Candidate{{ID: "1"}, {ID: "2"}}, nil).Once()
		store.On("Find", mock.Anything, tier(models.TierFuzzy)).Return([]Candidate{{ID: "3"}}, nil).Once()

		req, err := ParseSearchRequest(models.KindEntrepreneur, map[string]interface{}{
			"first_name": "Ivan",
			"last_name":  "Ivanov",
		})
		require.NoError(t, err)

		kl := newTestKindLookup(t, models.KindEntrepreneur, store, parallel)
		resp, err := kl.Lookup(context.Background(), req)
		require.NoError(t, err)

		assert.Len(t, resp.Exact, 1)
		assert.Len(t, resp.Relaxed, 2)
		assert.Len(t, resp.Fuzzy, 1)
		for _, c := range append(append(resp.Exact, resp.Relaxed...), resp.Fuzzy...) {
			assert.Equal(t, models.KindEntrepreneur, c.ClientType)
		}
		store.AssertExpectations(t)
	}
}

func TestKindLookup_SkipsTiersWithoutCriteria(t *testing.T) {
	store := &mockStore{}
	store.On("Find", mock.Anything, tier(models.TierExact)).Return([]Candidate{}, nil).Once()
	store.On("Find", mock.Anything, tier(models.TierFuzzy)).Return([]Candidate{}, nil).Once()

	kl := newTestKindLookup(t, models.KindIndividual, store, false)
	resp, err := kl.Lookup(context.Background(), personRequest(t, map[string]interface{}{"last_name": "Ivanov"}))
	require.NoError(t, err)

	assert.Equal(t, []Candidate{}, resp.Relaxed)
	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "Find", 2)
}

func TestKindLookup_EmptyRequestNeverHitsStore(t *testing.T) {
	store := &mockStore{}
	kl := newTestKindLookup(t, models.KindIndividual, store, false)

	resp, err := kl.Lookup(context.Background(), personRequest(t, map[string]interface{}{"first_name": " "}))
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Total())
	store.AssertNotCalled(t, "Find", mock.Anything, mock.Anything)
}

func TestKindLookup_ErrorAbortsLookup(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		store := &mockStore{}
		storeErr := StoreUnavailable("find", errors.New("connection refused"))
		store.On("Find", mock.Anything, tier(models.TierExact)).Return([]Candidate{{ID: "1"}}, nil).Maybe()
		store.On("Find", mock.Anything, tier(models.TierWithoutLastName)).Return(nil, storeErr).Once()
		store.On("Find", mock.Anything, tier(models.TierFuzzy)).Return([]Candidate{{ID: "3"}}, nil).Maybe()

		kl := newTestKindLookup(t, models.KindIndividual, store, parallel)
		resp, err := kl.Lookup(context.Background(), personRequest(t, map[string]interface{}{
			"first_name": "Ivan",
			"last_name":  "Ivanov",
		}))

		assert.Nil(t, resp)
		assert.True(t, errors.Is(err, ErrStoreUnavailable))
		assert.Contains(t, err.Error(), "without_last_name tier")
	}
}

func TestKindLookup_KindMismatch(t *testing.T) {
	kl := newTestKindLookup(t, models.KindOrganization, &mockStore{}, false)
	_, err := kl.Lookup(context.Background(), personRequest(t, map[string]interface{}{"first_name": "Ivan"}))
	assert.True(t, errors.Is(err, ErrInvalidApplicantKind))
}

func TestNewKindLookup_Validation(t *testing.T) {
	_, err := NewKindLookup("robot", NewTierBuilder(newTestScorer(t, nil)), &mockStore{}, false)
	assert.Error(t, err)

	_, err = NewKindLookup(models.KindIndividual, nil, &mockStore{}, false)
	assert.Error(t, err)
}
