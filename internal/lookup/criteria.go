package lookup

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"applicant-registry/internal/models"
)

// DateLayout is the calendar date format accepted for birth_date.
const DateLayout = "2006-01-02"

// Criterion is an optional search value. At most one of its members is set,
// matching the field's ValueType.
type Criterion struct {
	Text    *string
	Date    *time.Time
	Address models.StructuredAddress
}

func TextCriterion(s string) Criterion {
	return Criterion{Text: &s}
}

func DateCriterion(t time.Time) Criterion {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return Criterion{Date: &d}
}

func AddressCriterion(a models.StructuredAddress) Criterion {
	return Criterion{Address: a}
}

// Active reports whether the criterion constrains a search. Nil values,
// whitespace-only strings and empty addresses are inactive.
func (c Criterion) Active() bool {
	switch {
	case c.Text != nil:
		return strings.TrimSpace(*c.Text) != ""
	case c.Date != nil:
		return true
	default:
		return !c.Address.IsEmpty()
	}
}

// Value returns the native value: string, time.Time or StructuredAddress.
func (c Criterion) Value() interface{} {
	switch {
	case c.Text != nil:
		return *c.Text
	case c.Date != nil:
		return *c.Date
	case c.Address != nil:
		return c.Address
	default:
		return nil
	}
}

// String renders the value for logs and cache keys.
func (c Criterion) String() string {
	switch {
	case c.Text != nil:
		return *c.Text
	case c.Date != nil:
		return c.Date.Format(DateLayout)
	case c.Address != nil:
		data, err := c.Address.Canonical()
		if err != nil {
			return fmt.Sprintf("%v", map[string]interface{}(c.Address))
		}
		return string(data)
	default:
		return ""
	}
}

func (c Criterion) matchesType(t ValueType) bool {
	switch t {
	case ValueText:
		return c.Date == nil && c.Address == nil
	case ValueDate:
		return c.Text == nil && c.Address == nil
	case ValueAddress:
		return c.Text == nil && c.Date == nil
	default:
		return false
	}
}

// SearchRequest is the set of criteria for one applicant kind.
type SearchRequest struct {
	Kind     models.ApplicantKind
	Criteria map[models.FieldName]Criterion
}

// Active returns the criterion for field when it is present and active.
func (r SearchRequest) Active(field models.FieldName) (Criterion, bool) {
	c, ok := r.Criteria[field]
	if !ok || !c.Active() {
		return Criterion{}, false
	}
	return c, true
}

// ActiveFields returns the active fields in field-table order.
func (r SearchRequest) ActiveFields() []FieldSpec {
	spec, err := SpecFor(r.Kind)
	if err != nil {
		return nil
	}
	var out []FieldSpec
	for _, f := range spec.Fields {
		if _, ok := r.Active(f.Name); ok {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks the kind and that every criterion names a recognized field
// and carries a value of the field's type.
func (r SearchRequest) Validate() error {
	spec, err := SpecFor(r.Kind)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(r.Criteria))
	for name := range r.Criteria {
		names = append(names, string(name))
	}
	sort.Strings(names)

	for _, name := range names {
		field := models.FieldName(name)
		f, ok := spec.Field(field)
		if !ok {
			return invalidCriterion(field, r.Criteria[field].Value(), "field not recognized for %s", r.Kind)
		}
		if c := r.Criteria[field]; !c.matchesType(f.Type) {
			return invalidCriterion(field, c.Value(), "value type does not match column %s", f.Column)
		}
	}
	return nil
}

// ParseSearchRequest converts loosely typed field values, as decoded from
// JSON, into a SearchRequest. nil and blank values are kept as inactive
// criteria so the request round-trips identically to omitting them.
func ParseSearchRequest(kind models.ApplicantKind, fields map[string]interface{}) (SearchRequest, error) {
	spec, err := SpecFor(kind)
	if err != nil {
		return SearchRequest{}, err
	}

	req := SearchRequest{Kind: kind, Criteria: make(map[models.FieldName]Criterion, len(fields))}
	for key, raw := range fields {
		name := models.FieldName(key)
		f, ok := spec.Field(name)
		if !ok {
			return SearchRequest{}, invalidCriterion(name, raw, "field not recognized for %s", kind)
		}
		c, err := parseValue(f, raw)
		if err != nil {
			return SearchRequest{}, err
		}
		req.Criteria[name] = c
	}
	return req, nil
}

// ParsePayload reads a payload keyed by exactly one applicant kind.
func ParsePayload(payload map[string]interface{}) (SearchRequest, error) {
	if len(payload) != 1 {
		return SearchRequest{}, fmt.Errorf("%w: expected one kind key, got %d", ErrInvalidApplicantKind, len(payload))
	}
	for key, raw := range payload {
		kind, err := models.ParseApplicantKind(key)
		if err != nil {
			return SearchRequest{}, fmt.Errorf("%w: %v", ErrInvalidApplicantKind, err)
		}
		var fields map[string]interface{}
		switch v := raw.(type) {
		case map[string]interface{}:
			fields = v
		case nil:
			fields = map[string]interface{}{}
		default:
			return SearchRequest{}, fmt.Errorf("%w: %s fields must be an object", ErrInvalidApplicantKind, key)
		}
		return ParseSearchRequest(kind, fields)
	}
	return SearchRequest{}, ErrInvalidApplicantKind
}

func parseValue(f FieldSpec, raw interface{}) (Criterion, error) {
	if raw == nil {
		return Criterion{}, nil
	}

	switch f.Type {
	case ValueText:
		switch v := raw.(type) {
		case string:
			return TextCriterion(v), nil
		case *string:
			if v == nil {
				return Criterion{}, nil
			}
			return TextCriterion(*v), nil
		}
		return Criterion{}, invalidCriterion(f.Name, raw, "expected string, got %T", raw)

	case ValueDate:
		switch v := raw.(type) {
		case time.Time:
			return DateCriterion(v), nil
		case *time.Time:
			if v == nil {
				return Criterion{}, nil
			}
			return DateCriterion(*v), nil
		case string:
			return parseDate(f.Name, v)
		}
		return Criterion{}, invalidCriterion(f.Name, raw, "expected date, got %T", raw)

	case ValueAddress:
		switch v := raw.(type) {
		case map[string]interface{}:
			return AddressCriterion(models.StructuredAddress(v)), nil
		case models.StructuredAddress:
			return AddressCriterion(v), nil
		case string:
			if strings.TrimSpace(v) == "" {
				return Criterion{}, nil
			}
		}
		return Criterion{}, invalidCriterion(f.Name, raw, "expected address object, got %T", raw)
	}
	return Criterion{}, invalidCriterion(f.Name, raw, "unsupported field type")
}

func parseDate(field models.FieldName, s string) (Criterion, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Criterion{}, nil
	}
	if t, err := time.Parse(DateLayout, trimmed); err == nil {
		return DateCriterion(t), nil
	}
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return DateCriterion(t), nil
	}
	return Criterion{}, invalidCriterion(field, s, "unparsable date, want %s", DateLayout)
}
