package lookupapplicant

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	commonerrors "applicant-registry/internal/common/errors"
	"applicant-registry/internal/common/logger"
	"applicant-registry/internal/lookup"
	"applicant-registry/internal/lookup/batch"
	"applicant-registry/internal/lookup/store"
	"applicant-registry/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		Timeout:      5 * time.Second,
		MaxBatchSize: 3,
	}
}

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewZapAdapter(zaptest.NewLogger(t))
}

func str(s string) *string { return &s }

func createTestService(t *testing.T) *lookup.Service {
	t.Helper()
	scorer, err := lookup.NewScorer(lookup.DefaultFieldWeights(), lookup.DefaultSimilarityThreshold)
	require.NoError(t, err)

	mem, err := store.NewMemoryStore(scorer,
		models.Applicant{Kind: models.KindIndividual, ID: "1", FirstName: str("Ivan"), LastName: str("Ivanov"),
			BirthDate: str("1990-05-17"), BirthPlace: str("Moscow")},
		models.Applicant{Kind: models.KindIndividual, ID: "2", FirstName: str("Ivan"), LastName: str("Sidorov"),
			BirthDate: str("1990-05-17"), BirthPlace: str("Moscow")},
		models.Applicant{Kind: models.KindOrganization, ID: "100", FullName: str("ACME LLC"), INN: str("1234567890")},
	)
	require.NoError(t, err)

	svc, err := lookup.NewService(mem, lookup.Options{}, createTestLogger(t))
	require.NoError(t, err)
	return svc
}

func createTestHandler(t *testing.T, lookuper lookup.Lookuper, runner *batch.Runner) *Handler {
	t.Helper()
	h, err := NewHandler(createTestConfig(), lookuper, runner, createTestLogger(t))
	require.NoError(t, err)
	return h
}

func decodeInput(t *testing.T, vars string) *Input {
	t.Helper()
	var in Input
	require.NoError(t, json.Unmarshal([]byte(vars), &in))
	return &in
}

func ids(cands []lookup.Candidate) []string {
	out := []string{}
	for _, c := range cands {
		out = append(out, c.ID)
	}
	return out
}

type failingLookuper struct{ err error }

func (f failingLookuper) Execute(context.Context, lookup.SearchRequest) (*lookup.Response, error) {
	return nil, f.err
}

func requireCode(t *testing.T, err error, code commonerrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	stdErr := commonerrors.FromLookupError("", err)
	assert.Equal(t, code, stdErr.Code, err.Error())
}

// ==========================
// Input Decoding
// ==========================

func TestInput_Payload(t *testing.T) {
	in := decodeInput(t, `{"individual": {"first_name": "Ivan"}, "processStartedBy": "operator", "attempt": 2}`)
	assert.False(t, in.IsBatch())

	payload, err := in.Payload()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"individual": map[string]interface{}{"first_name": "Ivan"}}, payload)
}

func TestInput_NullKind(t *testing.T) {
	payload, err := decodeInput(t, `{"organization": null}`).Payload()
	require.NoError(t, err)
	v, ok := payload["organization"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestInput_Batch(t *testing.T) {
	in := decodeInput(t, `{"requests": [{"individual": {}}]}`)
	assert.True(t, in.IsBatch())
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Single(t *testing.T) {
	h := createTestHandler(t, createTestService(t), nil)

	out, err := h.Execute(context.Background(), decodeInput(t,
		`{"individual": {"first_name": "Ivan", "last_name": "Ivanov", "birth_date": "1990-05-17"}}`))
	require.NoError(t, err)

	assert.Equal(t, "individual", out.Kind)
	require.NotNil(t, out.Result)
	assert.Equal(t, []string{"1"}, ids(out.Result.Exact))
	assert.Equal(t, []string{"1", "2"}, ids(out.Result.Relaxed))
	assert.Equal(t, []string{"1"}, ids(out.Result.Fuzzy))
	assert.Equal(t, 4, out.TotalCandidates)
	assert.Nil(t, out.Results)
}

func TestHandler_Execute_OutputShape(t *testing.T) {
	h := createTestHandler(t, createTestService(t), nil)

	out, err := h.Execute(context.Background(), decodeInput(t, `{"organization": {"full_name": "ACME LLC"}}`))
	require.NoError(t, err)

	data, err := json.Marshal(out)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	result := decoded["result"].(map[string]interface{})
	assert.Contains(t, result, "exact")
	assert.Contains(t, result, "without_inn")
	assert.Contains(t, result, "fuzzy")
	assert.NotContains(t, decoded, "results")
}

func TestHandler_Execute_Batch(t *testing.T) {
	svc := createTestService(t)
	runner, err := batch.NewRunner(svc, batch.WithPoolSize(2))
	require.NoError(t, err)
	defer runner.Release()

	for name, r := range map[string]*batch.Runner{"pool": runner, "sequential": nil} {
		t.Run(name, func(t *testing.T) {
			h := createTestHandler(t, svc, r)
			out, err := h.Execute(context.Background(), decodeInput(t, `{"requests": [
				{"organization": {"inn": "1234567890"}},
				{"individual": {"first_name": "Ivan", "birth_date": "1990-05-17"}}
			]}`))
			require.NoError(t, err)

			require.Len(t, out.Results, 2)
			assert.Equal(t, models.KindOrganization, out.Results[0].Kind)
			assert.Equal(t, []string{"100"}, ids(out.Results[0].Exact))
			assert.Equal(t, models.KindIndividual, out.Results[1].Kind)
			assert.Equal(t, []string{"1", "2"}, ids(out.Results[1].Exact))
			assert.Nil(t, out.Result)
		})
	}
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_ValidationFailure(t *testing.T) {
	h := createTestHandler(t, createTestService(t), nil)

	tests := map[string]string{
		"no kind":       `{"somethingElse": true}`,
		"two kinds":     `{"individual": {}, "organization": {}}`,
		"wrong type":    `{"individual": {"first_name": 7}}`,
		"unknown field": `{"organization": {"first_name": "Ivan"}}`,
		"bad date":      `{"individual": {"birth_date": "May 17"}}`,
		"empty batch":   `{"requests": []}`,
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := h.Execute(context.Background(), decodeInput(t, vars))
			requireCode(t, err, commonerrors.ErrCodeLookupValidationFailed)
		})
	}
}

func TestHandler_Execute_ImpossibleDate(t *testing.T) {
	h := createTestHandler(t, createTestService(t), nil)

	// matches the schema pattern but is not a calendar date
	_, err := h.Execute(context.Background(), decodeInput(t, `{"individual": {"birth_date": "1990-13-45"}}`))
	requireCode(t, err, commonerrors.ErrCodeInvalidCriterion)
}

func TestHandler_Execute_BatchTooLarge(t *testing.T) {
	h := createTestHandler(t, createTestService(t), nil)

	_, err := h.Execute(context.Background(), decodeInput(t, `{"requests": [
		{"individual": {}}, {"individual": {}}, {"individual": {}}, {"individual": {}}
	]}`))
	requireCode(t, err, commonerrors.ErrCodeLookupValidationFailed)
}

func TestHandler_Execute_StoreUnavailable(t *testing.T) {
	storeErr := lookup.StoreUnavailable("find individuals", errors.New("connection refused"))
	h := createTestHandler(t, failingLookuper{err: storeErr}, nil)

	_, err := h.Execute(context.Background(), decodeInput(t, `{"individual": {"first_name": "Ivan"}}`))
	assert.ErrorIs(t, err, lookup.ErrStoreUnavailable)
	requireCode(t, err, commonerrors.ErrCodeStoreUnavailable)
}

func TestHandler_Execute_Timeout(t *testing.T) {
	h := createTestHandler(t, failingLookuper{err: lookup.StoreUnavailable("find", context.DeadlineExceeded)}, nil)

	_, err := h.Execute(context.Background(), decodeInput(t, `{"individual": {"first_name": "Ivan"}}`))
	requireCode(t, err, commonerrors.ErrCodeQueryTimeout)
}

func TestHandler_Execute_NilInput(t *testing.T) {
	h := createTestHandler(t, createTestService(t), nil)
	_, err := h.Execute(context.Background(), nil)
	requireCode(t, err, commonerrors.ErrCodeParseError)
}

func TestNewHandler_RequiresLookuper(t *testing.T) {
	_, err := NewHandler(createTestConfig(), nil, nil, createTestLogger(t))
	assert.Error(t, err)
}
