package validatelookuprequest

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	commonerrors "applicant-registry/internal/common/errors"
	"applicant-registry/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestHandler(t *testing.T) *Handler {
	t.Helper()
	h, err := NewHandler(&Config{Timeout: time.Second, MaxBatchSize: 2}, logger.NewZapAdapter(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return h
}

func decodeInput(t *testing.T, vars string) *Input {
	t.Helper()
	var in Input
	require.NoError(t, json.Unmarshal([]byte(vars), &in))
	return &in
}

func validationErrors(t *testing.T, err error) []ValidationError {
	t.Helper()
	var stdErr *commonerrors.StandardError
	require.True(t, stderrors.As(err, &stdErr), "expected StandardError, got %v", err)
	assert.Equal(t, commonerrors.ErrCodeLookupValidationFailed, stdErr.Code)
	errs, ok := stdErr.Metadata["validationErrors"].([]ValidationError)
	require.True(t, ok)
	return errs
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Valid(t *testing.T) {
	h := createTestHandler(t)

	out, err := h.Execute(context.Background(), decodeInput(t,
		`{"individual": {"last_name": "Ivanov", "first_name": "Ivan", "middle_name": " "}, "initiator": "crm"}`))
	require.NoError(t, err)

	assert.True(t, out.IsValid)
	assert.Equal(t, "individual", out.Kind)
	assert.Equal(t, 1, out.RequestCount)
	assert.Equal(t, []string{"first_name", "last_name"}, out.ActiveFields)
	assert.Empty(t, out.ValidationErrors)
}

func TestHandler_Execute_ValidBatch(t *testing.T) {
	h := createTestHandler(t)

	out, err := h.Execute(context.Background(), decodeInput(t,
		`{"requests": [{"organization": {"inn": "1234567890"}}, {"entrepreneur": null}]}`))
	require.NoError(t, err)
	assert.True(t, out.IsValid)
	assert.Equal(t, 2, out.RequestCount)
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_SchemaErrors(t *testing.T) {
	h := createTestHandler(t)

	_, err := h.Execute(context.Background(), decodeInput(t, `{"individual": {"first_name": 1, "inn": true}}`))
	require.Error(t, err)

	errs := validationErrors(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, "individual.first_name", errs[0].Field)
	assert.Equal(t, "individual.inn", errs[1].Field)
}

func TestHandler_Execute_ImpossibleDate(t *testing.T) {
	h := createTestHandler(t)

	_, err := h.Execute(context.Background(), decodeInput(t, `{"entrepreneur": {"birth_date": "2001-02-30"}}`))
	errs := validationErrors(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "birth_date", errs[0].Field)
	assert.Equal(t, string(commonerrors.ErrCodeInvalidCriterion), errs[0].Code)
}

func TestHandler_Execute_BatchErrors(t *testing.T) {
	h := createTestHandler(t)

	_, err := h.Execute(context.Background(), decodeInput(t,
		`{"requests": [{"individual": {}}, {"individual": {"birth_date": "1990-02-31"}}]}`))
	errs := validationErrors(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "requests.1.birth_date", errs[0].Field)

	_, err = h.Execute(context.Background(), decodeInput(t,
		`{"requests": [{"individual": {}}, {"individual": {}}, {"individual": {}}]}`))
	errs = validationErrors(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "MAX_ITEMS_VIOLATION", errs[0].Code)
}

func TestHandler_Execute_NoKind(t *testing.T) {
	h := createTestHandler(t)

	_, err := h.Execute(context.Background(), decodeInput(t, `{"applicantId": "42"}`))
	errs := validationErrors(t, err)
	assert.NotEmpty(t, errs)
}

func TestHandler_Execute_NilInput(t *testing.T) {
	h := createTestHandler(t)

	_, err := h.Execute(context.Background(), nil)
	var stdErr *commonerrors.StandardError
	require.True(t, stderrors.As(err, &stdErr))
	assert.Equal(t, commonerrors.ErrCodeParseError, stdErr.Code)
}
