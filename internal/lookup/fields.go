package lookup

import (
	"fmt"

	"applicant-registry/internal/models"
)

// FieldTag says how a field participates in each tier.
type FieldTag int

const (
	// TagEqualityOnly fields are compared by equality in every tier.
	TagEqualityOnly FieldTag = iota + 1
	// TagFuzzyEligible fields are equality filters in exact tiers and
	// trigram filters plus ranking terms in the fuzzy tier.
	TagFuzzyEligible
	// TagDateExact fields are exact date filters in every tier.
	TagDateExact
)

func (t FieldTag) String() string {
	switch t {
	case TagEqualityOnly:
		return "equality-only"
	case TagFuzzyEligible:
		return "fuzzy-eligible"
	case TagDateExact:
		return "date-exact"
	default:
		return "unknown"
	}
}

// ValueType is the native type a criterion must convert to.
type ValueType int

const (
	ValueText ValueType = iota + 1
	ValueDate
	ValueAddress
)

type FieldSpec struct {
	Name   models.FieldName
	Column string
	Tag    FieldTag
	Type   ValueType
}

// KindSpec describes how one applicant kind is stored and searched.
type KindSpec struct {
	Kind    models.ApplicantKind
	Table   string
	Fields  []FieldSpec
	Columns []string

	// RelaxedTier is the name of the middle tier, which repeats the exact
	// tier without DroppedField.
	RelaxedTier  models.TierName
	DroppedField models.FieldName
}

// Field returns the spec for name if the kind recognizes it.
func (k KindSpec) Field(name models.FieldName) (FieldSpec, bool) {
	for _, f := range k.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

var personFields = []FieldSpec{
	{Name: models.FieldFirstName, Column: "first_name", Tag: TagFuzzyEligible, Type: ValueText},
	{Name: models.FieldLastName, Column: "last_name", Tag: TagFuzzyEligible, Type: ValueText},
	{Name: models.FieldMiddleName, Column: "middle_name", Tag: TagFuzzyEligible, Type: ValueText},
	{Name: models.FieldBirthDate, Column: "birth_date", Tag: TagDateExact, Type: ValueDate},
	{Name: models.FieldBirthPlace, Column: "birth_place", Tag: TagFuzzyEligible, Type: ValueText},
	{Name: models.FieldINN, Column: "inn", Tag: TagEqualityOnly, Type: ValueText},
	{Name: models.FieldSNILS, Column: "snils", Tag: TagEqualityOnly, Type: ValueText},
}

var personColumns = []string{"id", "first_name", "last_name", "middle_name", "birth_place", "birth_date"}

var kindSpecs = map[models.ApplicantKind]KindSpec{
	models.KindIndividual: {
		Kind:         models.KindIndividual,
		Table:        "individuals",
		Fields:       personFields,
		Columns:      personColumns,
		RelaxedTier:  models.TierWithoutLastName,
		DroppedField: models.FieldLastName,
	},
	models.KindEntrepreneur: {
		Kind:         models.KindEntrepreneur,
		Table:        "entrepreneurs",
		Fields:       personFields,
		Columns:      personColumns,
		RelaxedTier:  models.TierWithoutLastName,
		DroppedField: models.FieldLastName,
	},
	models.KindOrganization: {
		Kind:  models.KindOrganization,
		Table: "organizations",
		Fields: []FieldSpec{
			{Name: models.FieldFullName, Column: "full_name", Tag: TagFuzzyEligible, Type: ValueText},
			{Name: models.FieldINN, Column: "inn", Tag: TagEqualityOnly, Type: ValueText},
			{Name: models.FieldLegalAddress, Column: "legal_address", Tag: TagEqualityOnly, Type: ValueAddress},
		},
		Columns:      []string{"id", "full_name", "inn"},
		RelaxedTier:  models.TierWithoutINN,
		DroppedField: models.FieldINN,
	},
}

// SpecFor returns the static field table entry for kind.
func SpecFor(kind models.ApplicantKind) (KindSpec, error) {
	spec, ok := kindSpecs[kind]
	if !ok {
		return KindSpec{}, fmt.Errorf("%w: %q", ErrInvalidApplicantKind, kind)
	}
	return spec, nil
}

// FuzzyFields lists every field name that is fuzzy-eligible for some kind.
func FuzzyFields() []models.FieldName {
	seen := make(map[models.FieldName]bool)
	var out []models.FieldName
	for _, kind := range models.ApplicantKinds {
		for _, f := range kindSpecs[kind].Fields {
			if f.Tag == TagFuzzyEligible && !seen[f.Name] {
				seen[f.Name] = true
				out = append(out, f.Name)
			}
		}
	}
	return out
}
