// internal/workers/registry/validate-lookup-request/models.go
package validatelookuprequest

import (
	"applicant-registry/internal/common/validation"
	"applicant-registry/internal/models"
)

type Input = models.LookupVariables

type ValidationError = validation.ValidationError

type Output struct {
	IsValid          bool              `json:"isValid"`
	Kind             string            `json:"kind,omitempty"`
	RequestCount     int               `json:"requestCount"`
	ActiveFields     []string          `json:"activeFields,omitempty"`
	ValidationErrors []ValidationError `json:"validationErrors"`
}
