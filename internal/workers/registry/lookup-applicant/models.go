// internal/workers/registry/lookup-applicant/models.go
package lookupapplicant

import (
	"applicant-registry/internal/lookup"
	"applicant-registry/internal/models"
)

// Input is either a single {"<kind>": {fields}} payload or {"requests": [...]}.
type Input = models.LookupVariables

type Output struct {
	Kind                string             `json:"kind,omitempty"`
	Result              *lookup.Response   `json:"result,omitempty"`
	Results             []*lookup.Response `json:"results,omitempty"`
	TotalCandidates     int                `json:"totalCandidates"`
	LookupExecutionTime int64              `json:"lookupExecutionTime"` // milliseconds
}
