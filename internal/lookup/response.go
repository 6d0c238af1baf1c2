package lookup

import (
	"encoding/json"
	"fmt"
	"time"

	"applicant-registry/internal/models"
)

// Candidate is one projected registry row. Only the members relevant to
// ClientType are serialized.
type Candidate struct {
	ClientType models.ApplicantKind
	ID         string
	FirstName  *string
	LastName   *string
	MiddleName *string
	BirthPlace *string
	BirthDate  *time.Time
	FullName   *string
	INN        *string
}

type personJSON struct {
	ClientType models.ApplicantKind `json:"client_type"`
	ID         string               `json:"id"`
	FirstName  *string              `json:"first_name"`
	LastName   *string              `json:"last_name"`
	MiddleName *string              `json:"middle_name"`
	BirthPlace *string              `json:"birth_place"`
	BirthDate  *string              `json:"birth_date"`
}

type organizationJSON struct {
	ClientType models.ApplicantKind `json:"client_type"`
	ID         string               `json:"id"`
	FullName   *string              `json:"full_name"`
	INN        *string              `json:"inn"`
}

// Column returns the text stored in a projected column, false for NULL.
func (c Candidate) Column(name string) (string, bool) {
	var p *string
	switch name {
	case "id":
		return c.ID, true
	case "first_name":
		p = c.FirstName
	case "last_name":
		p = c.LastName
	case "middle_name":
		p = c.MiddleName
	case "birth_place":
		p = c.BirthPlace
	case "full_name":
		p = c.FullName
	case "inn":
		p = c.INN
	case "birth_date":
		if c.BirthDate == nil {
			return "", false
		}
		return c.BirthDate.Format(DateLayout), true
	}
	if p == nil {
		return "", false
	}
	return *p, true
}

func (c Candidate) MarshalJSON() ([]byte, error) {
	if c.ClientType == models.KindOrganization {
		return json.Marshal(organizationJSON{
			ClientType: c.ClientType,
			ID:         c.ID,
			FullName:   c.FullName,
			INN:        c.INN,
		})
	}

	var birthDate *string
	if c.BirthDate != nil {
		s := c.BirthDate.Format(DateLayout)
		birthDate = &s
	}
	return json.Marshal(personJSON{
		ClientType: c.ClientType,
		ID:         c.ID,
		FirstName:  c.FirstName,
		LastName:   c.LastName,
		MiddleName: c.MiddleName,
		BirthPlace: c.BirthPlace,
		BirthDate:  birthDate,
	})
}

func (c *Candidate) UnmarshalJSON(data []byte) error {
	var raw struct {
		personJSON
		FullName *string `json:"full_name"`
		INN      *string `json:"inn"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Candidate{
		ClientType: raw.ClientType,
		ID:         raw.ID,
		FirstName:  raw.FirstName,
		LastName:   raw.LastName,
		MiddleName: raw.MiddleName,
		BirthPlace: raw.BirthPlace,
		FullName:   raw.FullName,
		INN:        raw.INN,
	}
	if raw.BirthDate != nil {
		t, err := time.Parse(DateLayout, *raw.BirthDate)
		if err != nil {
			return fmt.Errorf("candidate %s birth_date: %w", raw.ID, err)
		}
		c.BirthDate = &t
	}
	return nil
}

// Response holds the three tiers for one kind. Relaxed is serialized under
// the kind's relaxed tier name.
type Response struct {
	Kind    models.ApplicantKind
	Exact   []Candidate
	Relaxed []Candidate
	Fuzzy   []Candidate
}

// NewResponse returns a response with three empty tiers.
func NewResponse(kind models.ApplicantKind) *Response {
	return &Response{
		Kind:    kind,
		Exact:   []Candidate{},
		Relaxed: []Candidate{},
		Fuzzy:   []Candidate{},
	}
}

// RelaxedTierName is without_last_name for persons and without_inn for organizations.
func (r *Response) RelaxedTierName() models.TierName {
	if r.Kind == models.KindOrganization {
		return models.TierWithoutINN
	}
	return models.TierWithoutLastName
}

// Tier returns the candidates of a named tier.
func (r *Response) Tier(name models.TierName) []Candidate {
	switch name {
	case models.TierExact:
		return r.Exact
	case models.TierFuzzy:
		return r.Fuzzy
	case r.RelaxedTierName():
		return r.Relaxed
	default:
		return nil
	}
}

func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[models.TierName][]Candidate{
		models.TierExact:    nonNil(r.Exact),
		r.RelaxedTierName(): nonNil(r.Relaxed),
		models.TierFuzzy:    nonNil(r.Fuzzy),
	})
}

// UnmarshalJSON restores the tiers. Kind is taken from the relaxed key for
// organizations and left unchanged otherwise, since persons share a key.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw map[models.TierName][]Candidate
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Exact = nonNil(raw[models.TierExact])
	r.Fuzzy = nonNil(raw[models.TierFuzzy])
	if relaxed, ok := raw[models.TierWithoutINN]; ok {
		r.Kind = models.KindOrganization
		r.Relaxed = nonNil(relaxed)
	} else {
		r.Relaxed = nonNil(raw[models.TierWithoutLastName])
	}
	return nil
}

// Total counts candidates over all tiers.
func (r *Response) Total() int {
	return len(r.Exact) + len(r.Relaxed) + len(r.Fuzzy)
}

func nonNil(c []Candidate) []Candidate {
	if c == nil {
		return []Candidate{}
	}
	return c
}
