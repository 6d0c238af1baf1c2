package lookup

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"applicant-registry/internal/models"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(DateLayout, s)
	require.NoError(t, err)
	return d
}

func TestCriterion_Active(t *testing.T) {
	empty := ""
	tests := []struct {
		name string
		c    Criterion
		want bool
	}{
		{name: "zero", c: Criterion{}, want: false},
		{name: "nil text pointer", c: Criterion{Text: nil}, want: false},
		{name: "empty text", c: Criterion{Text: &empty}, want: false},
		{name: "whitespace", c: TextCriterion(" \t "), want: false},
		{name: "text", c: TextCriterion("Ivan"), want: true},
		{name: "date", c: DateCriterion(time.Date(1990, 5, 17, 13, 0, 0, 0, time.UTC)), want: true},
		{name: "empty address", c: AddressCriterion(models.StructuredAddress{}), want: false},
		{name: "address", c: AddressCriterion(models.StructuredAddress{"city": "Moscow"}), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Active())
		})
	}
}

func TestDateCriterion_TruncatesToDay(t *testing.T) {
	c := DateCriterion(time.Date(1990, 5, 17, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, "1990-05-17", c.String())
	assert.Equal(t, time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC), c.Value())
}

func TestParseSearchRequest(t *testing.T) {
	req, err := ParseSearchRequest(models.KindIndividual, map[string]interface{}{
		"first_name":  "Ivan",
		"last_name":   "",
		"middle_name": nil,
		"birth_date":  "1990-05-17",
		"inn":         "123456789012",
	})
	require.NoError(t, err)

	assert.Equal(t, models.KindIndividual, req.Kind)
	names := make([]models.FieldName, 0)
	for _, f := range req.ActiveFields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []models.FieldName{models.FieldFirstName, models.FieldBirthDate, models.FieldINN}, names)

	bd, ok := req.Active(models.FieldBirthDate)
	require.True(t, ok)
	assert.Equal(t, mustDate(t, "1990-05-17"), bd.Value())
}

func TestParseSearchRequest_Dates(t *testing.T) {
	for _, raw := range []interface{}{"1990-05-17", "1990-05-17T10:00:00Z", mustDate(t, "1990-05-17")} {
		req, err := ParseSearchRequest(models.KindEntrepreneur, map[string]interface{}{"birth_date": raw})
		require.NoError(t, err, "%v", raw)
		c, ok := req.Active(models.FieldBirthDate)
		require.True(t, ok)
		assert.Equal(t, "1990-05-17", c.String())
	}

	req, err := ParseSearchRequest(models.KindEntrepreneur, map[string]interface{}{"birth_date": "  "})
	require.NoError(t, err)
	assert.Empty(t, req.ActiveFields())
}

func TestParseSearchRequest_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		kind   models.ApplicantKind
		fields map[string]interface{}
		field  models.FieldName
	}{
		{name: "bad date", kind: models.KindIndividual, fields: map[string]interface{}{"birth_date": "not-a-date"}, field: models.FieldBirthDate},
		{name: "numeric name", kind: models.KindIndividual, fields: map[string]interface{}{"first_name": 42.0}, field: models.FieldFirstName},
		{name: "unknown field", kind: models.KindIndividual, fields: map[string]interface{}{"full_name": "ACME"}, field: models.FieldFullName},
		{name: "address as number", kind: models.KindOrganization, fields: map[string]interface{}{"legal_address": 7.0}, field: models.FieldLegalAddress},
		{name: "person field on organization", kind: models.KindOrganization, fields: map[string]interface{}{"snils": "112-233-445 95"}, field: models.FieldSNILS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSearchRequest(tt.kind, tt.fields)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCriterion))

			var critErr *CriterionError
			require.True(t, errors.As(err, &critErr))
			assert.Equal(t, tt.field, critErr.Field)
		})
	}
}

func TestParseSearchRequest_UnknownKind(t *testing.T) {
	_, err := ParseSearchRequest("company", map[string]interface{}{})
	assert.True(t, errors.Is(err, ErrInvalidApplicantKind))
}

func TestParsePayload(t *testing.T) {
	req, err := ParsePayload(map[string]interface{}{
		"organization": map[string]interface{}{
			"full_name":     "ACME LLC",
			"legal_address": map[string]interface{}{"city": "Moscow", "zip": "101000"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.KindOrganization, req.Kind)
	addr, ok := req.Active(models.FieldLegalAddress)
	require.True(t, ok)
	assert.Equal(t, models.StructuredAddress{"city": "Moscow", "zip": "101000"}, addr.Value())

	bad := []map[string]interface{}{
		{},
		{"individual": map[string]interface{}{}, "organization": map[string]interface{}{}},
		{"company": map[string]interface{}{}},
		{"individual": "Ivan"},
	}
	for _, payload := range bad {
		_, err := ParsePayload(payload)
		assert.True(t, errors.Is(err, ErrInvalidApplicantKind), "%v", payload)
	}
}

func TestSearchRequest_Validate(t *testing.T) {
	ok := SearchRequest{Kind: models.KindIndividual, Criteria: map[models.FieldName]Criterion{
		models.FieldFirstName: TextCriterion("Ivan"),
		models.FieldBirthDate: DateCriterion(mustDate(t, "1990-05-17")),
	}}
	assert.NoError(t, ok.Validate())

	wrongType := SearchRequest{Kind: models.KindIndividual, Criteria: map[models.FieldName]Criterion{
		models.FieldBirthDate: TextCriterion("1990-05-17"),
	}}
	assert.True(t, errors.Is(wrongType.Validate(), ErrInvalidCriterion))

	wrongKind := SearchRequest{Kind: "nobody"}
	assert.True(t, errors.Is(wrongKind.Validate(), ErrInvalidApplicantKind))
}
