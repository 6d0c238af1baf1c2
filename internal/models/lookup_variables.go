package models

import (
	"encoding/json"
	"fmt"
)

// LookupVariables picks the lookup variables out of a job or request body.
// Unrelated process variables are ignored. A kind key present with null is
// kept so it parses as an all-blank request.
type LookupVariables struct {
	Individual   json.RawMessage          `json:"individual,omitempty"`
	Entrepreneur json.RawMessage          `json:"entrepreneur,omitempty"`
	Organization json.RawMessage          `json:"organization,omitempty"`
	Requests     []map[string]interface{} `json:"requests,omitempty"`
}

// IsBatch reports whether the variables carry a requests list.
func (v *LookupVariables) IsBatch() bool {
	return v.Requests != nil
}

// Payload rebuilds the {"<kind>": {fields}} document from the kind keys
// that were present.
func (v *LookupVariables) Payload() (map[string]interface{}, error) {
	payload := make(map[string]interface{}, 1)
	raws := map[ApplicantKind]json.RawMessage{
		KindIndividual:   v.Individual,
		KindEntrepreneur: v.Entrepreneur,
		KindOrganization: v.Organization,
	}
	for kind, raw := range raws {
		if raw == nil {
			continue
		}
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		payload[kind.String()] = decoded
	}
	return payload, nil
}

// BatchDocument returns the {"requests": [...]} document for schema checks.
func (v *LookupVariables) BatchDocument() map[string]interface{} {
	doc := make([]interface{}, len(v.Requests))
	for i, p := range v.Requests {
		doc[i] = p
	}
	return map[string]interface{}{"requests": doc}
}
