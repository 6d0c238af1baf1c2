// internal/models/applicant.go
package models

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// ApplicantKind is one of the disjoint categories of registry subject.
type ApplicantKind string

const (
	KindIndividual   ApplicantKind = "individual"
	KindEntrepreneur ApplicantKind = "entrepreneur"
	KindOrganization ApplicantKind = "organization"
)

// ApplicantKinds lists every kind in the order payload keys are checked.
var ApplicantKinds = []ApplicantKind{KindIndividual, KindEntrepreneur, KindOrganization}

// ParseApplicantKind maps a payload key to a kind.
func ParseApplicantKind(s string) (ApplicantKind, error) {
	switch ApplicantKind(s) {
	case KindIndividual, KindEntrepreneur, KindOrganization:
		return ApplicantKind(s), nil
	}
	return "", fmt.Errorf("unknown applicant kind %q", s)
}

func (k ApplicantKind) String() string {
	return string(k)
}

// IsPerson reports whether the kind carries personal name and birth fields.
func (k ApplicantKind) IsPerson() bool {
	return k == KindIndividual || k == KindEntrepreneur
}

// StructuredAddress is a legal address as stored in the registry: an
// arbitrary JSON object compared by deep structural equality.
type StructuredAddress map[string]interface{}

// IsEmpty reports whether the address carries no keys.
func (a StructuredAddress) IsEmpty() bool {
	return len(a) == 0
}

// Canonical returns the JSON encoding with sorted keys.
func (a StructuredAddress) Canonical() ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]interface{}(a))
}

// Equal compares two addresses after normalising both through JSON, so that
// numeric and nested types decoded from different sources compare alike.
func (a StructuredAddress) Equal(other StructuredAddress) bool {
	left, err := normalizeAddress(a)
	if err != nil {
		return false
	}
	right, err := normalizeAddress(other)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(left, right)
}

func normalizeAddress(a StructuredAddress) (interface{}, error) {
	data, err := a.Canonical()
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Applicant is a registry row of any kind, as seeded into or indexed by a
// record store. BirthDate uses the 2006-01-02 layout.
type Applicant struct {
	Kind         ApplicantKind     `json:"client_type"`
	ID           string            `json:"id"`
	FirstName    *string           `json:"first_name,omitempty"`
	LastName     *string           `json:"last_name,omitempty"`
	MiddleName   *string           `json:"middle_name,omitempty"`
	BirthDate    *string           `json:"birth_date,omitempty"`
	BirthPlace   *string           `json:"birth_place,omitempty"`
	FullName     *string           `json:"full_name,omitempty"`
	INN          *string           `json:"inn,omitempty"`
	SNILS        *string           `json:"snils,omitempty"`
	LegalAddress StructuredAddress `json:"legal_address,omitempty"`
}
