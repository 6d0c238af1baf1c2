// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"applicant-registry/internal/common/config"
	"applicant-registry/internal/common/errors"
	"applicant-registry/internal/common/validation"
	lookupapplicant "applicant-registry/internal/workers/registry/lookup-applicant"
	validatelookuprequest "applicant-registry/internal/workers/registry/validate-lookup-request"
)

const category = "applicant-registry"

// Build describes the lookup workers with the timeouts and retry counts
// cfg assigns them. cfg may be nil.
func Build(cfg *config.Config, version string) *ActivityRegistry {
	if cfg == nil {
		cfg = &config.Config{}
	}

	lookupCodes := []errors.ErrorCode{
		errors.ErrCodeLookupValidationFailed,
		errors.ErrCodeInvalidApplicantKind,
		errors.ErrCodeInvalidCriterion,
		errors.ErrCodeStoreUnavailable,
		errors.ErrCodeQueryExecutionFailed,
		errors.ErrCodeQueryTimeout,
	}

	return &ActivityRegistry{
		Version:     version,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Activities: []Activity{
			activity(cfg, version, validatelookuprequest.TaskType,
				"Validate Lookup Request",
				"Checks a single or batch lookup payload against the request schema and the criterion parsers.",
				validation.LookupSchema(),
				objectSchema(map[string]string{
					"isValid":          "boolean",
					"kind":             "string",
					"requestCount":     "integer",
					"activeFields":     "array",
					"validationErrors": "array",
				}),
				[]errors.ErrorCode{errors.ErrCodeLookupValidationFailed},
				"validation"),
			activity(cfg, version, lookupapplicant.TaskType,
				"Lookup Applicant",
				"Returns the exact, relaxed and fuzzy candidate tiers for one applicant or a batch of them.",
				validation.LookupSchema(),
				objectSchema(map[string]string{
					"kind":                "string",
					"result":              "object",
					"results":             "array",
					"totalCandidates":     "integer",
					"lookupExecutionTime": "integer",
				}),
				lookupCodes,
				"lookup", "fuzzy-search"),
		},
	}
}

func activity(cfg *config.Config, version, taskType, name, description string, in, out map[string]interface{}, codes []errors.ErrorCode, tags ...string) Activity {
	wcfg := config.GetWorkerConfig(cfg, taskType)
	codeNames := make([]string, len(codes))
	for i, c := range codes {
		codeNames[i] = string(c)
	}
	return Activity{
		ID:           taskType,
		DisplayName:  name,
		Description:  description,
		Category:     category,
		Version:      version,
		TaskType:     taskType,
		Enabled:      wcfg.Enabled,
		InputSchema:  in,
		OutputSchema: out,
		ErrorCodes:   codeNames,
		Timeout:      config.GetDuration(wcfg.Timeout).String(),
		Retries:      wcfg.MaxRetries,
		Tags:         tags,
	}
}

func objectSchema(props map[string]string) map[string]interface{} {
	properties := make(map[string]interface{}, len(props))
	for name, typ := range props {
		properties[name] = map[string]interface{}{"type": typ}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
}

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

// Write encodes reg as indented JSON.
func Write(w io.Writer, reg *ActivityRegistry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reg)
}

// Find returns the activity bound to taskType.
func (r *ActivityRegistry) Find(taskType string) (Activity, bool) {
	for _, a := range r.Activities {
		if a.TaskType == taskType {
			return a, true
		}
	}
	return Activity{}, false
}

// Validate checks that activities are present, uniquely identified and
// carry the fields modelers rely on.
func (r *ActivityRegistry) Validate() error {
	if len(r.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}

	ids := make(map[string]bool)
	for _, activity := range r.Activities {
		if activity.ID == "" {
			return fmt.Errorf("activity missing required field: ID")
		}
		if ids[activity.ID] {
			return fmt.Errorf("duplicate activity ID: %s", activity.ID)
		}
		ids[activity.ID] = true

		if activity.DisplayName == "" {
			return fmt.Errorf("activity %s missing required field: DisplayName", activity.ID)
		}
		if activity.TaskType == "" {
			return fmt.Errorf("activity %s missing required field: TaskType", activity.ID)
		}
		if activity.Category == "" {
			return fmt.Errorf("activity %s missing required field: Category", activity.ID)
		}
	}
	return nil
}
