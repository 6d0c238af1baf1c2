package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"applicant-registry/internal/lookup"
	"applicant-registry/internal/models"
)

const maxTextLength = 512

// datePattern admits blanks, calendar dates and RFC 3339 timestamps.
const datePattern = `^(\s*|\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2}))?)$`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validator checks lookup payloads against the request JSON schemas.
type Validator struct {
	single *gojsonschema.Schema
	batch  *gojsonschema.Schema
}

func NewValidator() (*Validator, error) {
	single, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(LookupSchema()))
	if err != nil {
		return nil, fmt.Errorf("compile lookup schema: %w", err)
	}
	batch, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(BatchSchema()))
	if err != nil {
		return nil, fmt.Errorf("compile batch schema: %w", err)
	}
	return &Validator{single: single, batch: batch}, nil
}

// ValidateLookup validates a single {"<kind>": {fields}} payload.
func (v *Validator) ValidateLookup(input map[string]interface{}) *ValidationResult {
	return validate(v.single, input)
}

// ValidateBatch validates a {"requests": [payload, ...]} document.
func (v *Validator) ValidateBatch(input map[string]interface{}) *ValidationResult {
	return validate(v.batch, input)
}

func validate(schema *gojsonschema.Schema, input map[string]interface{}) *ValidationResult {
	if input == nil {
		input = map[string]interface{}{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return &ValidationResult{
			Valid:  false,
			Errors: []ValidationError{{Field: "(root)", Message: err.Error(), Code: "SCHEMA_ERROR"}},
		}
	}
	if result.Valid() {
		return &ValidationResult{Valid: true}
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		errs = append(errs, ValidationError{
			Field:   re.Field(),
			Message: re.Description(),
			Code:    strings.ToUpper(re.Type()),
		})
	}
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return &ValidationResult{Valid: false, Errors: errs}
}

// LookupSchema builds the request schema from the lookup field table, so
// the schema and the parser never disagree on field names or types.
func LookupSchema() map[string]interface{} {
	kinds := make(map[string]interface{}, len(models.ApplicantKinds))
	for _, kind := range models.ApplicantKinds {
		spec, err := lookup.SpecFor(kind)
		if err != nil {
			continue
		}
		props := make(map[string]interface{}, len(spec.Fields))
		for _, f := range spec.Fields {
			props[string(f.Name)] = fieldSchema(f)
		}
		kinds[kind.String()] = map[string]interface{}{
			"type":                 []interface{}{"object", "null"},
			"additionalProperties": false,
			"properties":           props,
		}
	}

	return map[string]interface{}{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"title":                "applicant lookup request",
		"type":                 "object",
		"minProperties":        1,
		"maxProperties":        1,
		"additionalProperties": false,
		"properties":           kinds,
	}
}

func BatchSchema() map[string]interface{} {
	item := LookupSchema()
	delete(item, "$schema")
	delete(item, "title")

	return map[string]interface{}{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"title":                "applicant batch lookup request",
		"type":                 "object",
		"required":             []interface{}{"requests"},
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"requests": map[string]interface{}{
				"type":     "array",
				"minItems": 1,
				"items":    item,
			},
		},
	}
}

func fieldSchema(f lookup.FieldSpec) map[string]interface{} {
	switch f.Type {
	case lookup.ValueDate:
		return map[string]interface{}{
			"type":    []interface{}{"string", "null"},
			"pattern": datePattern,
		}
	case lookup.ValueAddress:
		return map[string]interface{}{
			"anyOf": []interface{}{
				map[string]interface{}{"type": []interface{}{"object", "null"}},
				map[string]interface{}{"type": "string", "pattern": `^\s*$`},
			},
		}
	default:
		return map[string]interface{}{
			"type":      []interface{}{"string", "null"},
			"maxLength": maxTextLength,
		}
	}
}

// SchemaJSON renders a schema for documentation and tooling.
func SchemaJSON(schema map[string]interface{}) ([]byte, error) {
	return json.MarshalIndent(schema, "", "  ")
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// GetErrorsForField returns errors for a specific field
func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") || strings.HasPrefix(err.Field, field+"[") {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}
