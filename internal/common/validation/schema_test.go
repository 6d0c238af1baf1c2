package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"applicant-registry/internal/lookup"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	return v
}

func decode(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestValidateLookup(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name      string
		payload   string
		valid     bool
		errorPath string
	}{
		{name: "individual", payload: `{"individual": {"first_name": "Ivan", "last_name": "Ivanov", "birth_date": "1990-05-17"}}`, valid: true},
		{name: "entrepreneur with timestamp", payload: `{"entrepreneur": {"birth_date": "1990-05-17T00:00:00Z", "inn": "123"}}`, valid: true},
		{name: "null fields", payload: `{"individual": {"first_name": null, "birth_date": ""}}`, valid: true},
		{name: "null kind", payload: `{"organization": null}`, valid: true},
		{name: "organization address", payload: `{"organization": {"full_name": "ACME", "legal_address": {"city": "Moscow"}}}`, valid: true},
		{name: "blank address", payload: `{"organization": {"legal_address": "  "}}`, valid: true},
		{name: "empty payload", payload: `{}`, valid: false},
		{name: "two kinds", payload: `{"individual": {}, "organization": {}}`, valid: false},
		{name: "unknown kind", payload: `{"robot": {}}`, valid: false},
		{name: "number name", payload: `{"individual": {"first_name": 42}}`, valid: false, errorPath: "individual.first_name"},
		{name: "bad date", payload: `{"individual": {"birth_date": "17.05.1990"}}`, valid: false, errorPath: "individual.birth_date"},
		{name: "unknown field", payload: `{"individual": {"nickname": "vanya"}}`, valid: false, errorPath: "individual"},
		{name: "person field on organization", payload: `{"organization": {"first_name": "Ivan"}}`, valid: false, errorPath: "organization"},
		{name: "address as text", payload: `{"organization": {"legal_address": "Moscow"}}`, valid: false, errorPath: "organization.legal_address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateLookup(decode(t, tt.payload))
			assert.Equal(t, tt.valid, result.Valid, result.GetErrorMessages())
			if tt.errorPath != "" {
				assert.NotEmpty(t, result.GetErrorsForField(tt.errorPath), result.GetErrorMessages())
			}
		})
	}
}

func TestValidateLookup_AgreesWithParser(t *testing.T) {
	v := newValidator(t)

	payloads := []string{
		`{"individual": {"first_name": "Ivan", "birth_date": "1990-05-17"}}`,
		`{"entrepreneur": {"snils": "112-233-445 95", "birth_place": "Kazan"}}`,
		`{"organization": {"inn": "1234567890", "legal_address": {"city": "Moscow", "house": 1}}}`,
		`{"organization": null}`,
	}
	for _, p := range payloads {
		payload := decode(t, p)
		require.True(t, v.ValidateLookup(payload).Valid, p)
		_, err := lookup.ParsePayload(payload)
		assert.NoError(t, err, p)
	}
}

func TestValidateBatch(t *testing.T) {
	v := newValidator(t)

	ok := v.ValidateBatch(decode(t, `{"requests": [{"individual": {"first_name": "Ivan"}}, {"organization": {"inn": "1"}}]}`))
	assert.True(t, ok.Valid, ok.GetErrorMessages())

	empty := v.ValidateBatch(decode(t, `{"requests": []}`))
	assert.False(t, empty.Valid)

	missing := v.ValidateBatch(map[string]interface{}{})
	assert.False(t, missing.Valid)
	assert.NotEmpty(t, missing.Errors)

	badItem := v.ValidateBatch(decode(t, `{"requests": [{"individual": {"first_name": 1}}]}`))
	assert.False(t, badItem.Valid)
	assert.NotEmpty(t, badItem.GetErrorsForField("requests"))
}

func TestSchemaJSON(t *testing.T) {
	data, err := SchemaJSON(LookupSchema())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"first_name"`)
	assert.Contains(t, string(data), `"legal_address"`)

	var roundTrip map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &roundTrip))
	assert.Equal(t, "object", roundTrip["type"])
}

func TestValidationResult_Helpers(t *testing.T) {
	vr := &ValidationResult{Errors: []ValidationError{
		{Field: "individual.first_name", Message: "Invalid type"},
		{Field: "requests.0", Message: "bad"},
	}}

	assert.Equal(t, []string{"individual.first_name: Invalid type", "requests.0: bad"}, vr.GetErrorMessages())
	assert.True(t, vr.HasErrors("individual.first_name"))
	assert.False(t, vr.HasErrors("individual"))
	assert.Len(t, vr.GetErrorsForField("individual"), 1)
}
