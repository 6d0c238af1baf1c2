// internal/models/query_types.go
package models

// FieldName is a recognized lookup criterion key.
type FieldName string

const (
	FieldFirstName    FieldName = "first_name"
	FieldLastName     FieldName = "last_name"
	FieldMiddleName   FieldName = "middle_name"
	FieldBirthDate    FieldName = "birth_date"
	FieldBirthPlace   FieldName = "birth_place"
	FieldINN          FieldName = "inn"
	FieldSNILS        FieldName = "snils"
	FieldFullName     FieldName = "full_name"
	FieldLegalAddress FieldName = "legal_address"
)

// TierName names one of the three match strategies returned by a lookup.
type TierName string

const (
	TierExact           TierName = "exact"
	TierWithoutLastName TierName = "without_last_name"
	TierWithoutINN      TierName = "without_inn"
	TierFuzzy           TierName = "fuzzy"
)
