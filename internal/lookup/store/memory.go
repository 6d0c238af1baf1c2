package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"applicant-registry/internal/lookup"
	"applicant-registry/internal/models"
)

// MemoryStore evaluates queries in process with the same trigram semantics
// as pg_trgm. It backs the CLI and the tests.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[models.ApplicantKind][]models.Applicant
	scorer *lookup.Scorer
	finds  atomic.Int64
}

// NewMemoryStore copies records into a fresh store. scorer supplies the
// Score function for ranked queries.
func NewMemoryStore(scorer *lookup.Scorer, records ...models.Applicant) (*MemoryStore, error) {
	if scorer == nil {
		return nil, fmt.Errorf("memory store: scorer is required")
	}
	s := &MemoryStore{rows: make(map[models.ApplicantKind][]models.Applicant), scorer: scorer}
	if err := s.Add(records...); err != nil {
		return nil, err
	}
	return s, nil
}

// Add appends records, rejecting unknown kinds and unparsable birth dates.
func (s *MemoryStore) Add(records ...models.Applicant) error {
	for _, r := range records {
		if _, err := lookup.SpecFor(r.Kind); err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
		if r.BirthDate != nil {
			if _, err := time.Parse(lookup.DateLayout, *r.BirthDate); err != nil {
				return fmt.Errorf("record %s birth_date: %w", r.ID, err)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.rows[r.Kind] = append(s.rows[r.Kind], r)
	}
	return nil
}

// LoadRecords decodes a JSON array of applicants.
func LoadRecords(r io.Reader) ([]models.Applicant, error) {
	var records []models.Applicant
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

// Finds returns how many queries reached the store.
func (s *MemoryStore) Finds() int64 {
	return s.finds.Load()
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Find(ctx context.Context, q *lookup.Query) ([]lookup.Candidate, error) {
	s.finds.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, lookup.StoreUnavailable("memory find", err)
	}

	s.mu.RLock()
	rows := s.rows[q.Kind]
	s.mu.RUnlock()

	type scored struct {
		row   models.Applicant
		score float64
	}
	var hits []scored
	for _, row := range rows {
		ok, err := matchAll(row, q.Filters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		h := scored{row: row}
		if q.Ranked() {
			h.score = s.scorer.Score(q.Order, func(col string) (string, bool) { return columnText(row, col) })
		}
		hits = append(hits, h)
	}

	if q.Ranked() {
		sort.SliceStable(hits, func(i, j int) bool {
			if hits[i].score != hits[j].score {
				return hits[i].score < hits[j].score
			}
			return hits[i].row.ID < hits[j].row.ID
		})
	}

	out := make([]lookup.Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, project(h.row, q.Columns))
	}
	return out, nil
}

func matchAll(row models.Applicant, filters []lookup.Predicate) (bool, error) {
	for _, p := range filters {
		ok, err := match(row, p)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func match(row models.Applicant, p lookup.Predicate) (bool, error) {
	switch p.Op {
	case lookup.OpSimilar:
		stored, ok := columnText(row, p.Column)
		value, _ := p.Value.(string)
		return ok && lookup.Similarity(stored, value) > p.Threshold, nil

	case lookup.OpEqual:
		switch v := p.Value.(type) {
		case string:
			stored, ok := columnText(row, p.Column)
			return ok && stored == v, nil
		case time.Time:
			stored, ok := columnText(row, p.Column)
			return ok && stored == v.Format(lookup.DateLayout), nil
		case models.StructuredAddress:
			return row.LegalAddress != nil && row.LegalAddress.Equal(v), nil
		default:
			return false, &lookup.CriterionError{Field: p.Field, Value: p.Value, Err: fmt.Errorf("unsupported value type %T", p.Value)}
		}
	}
	return false, lookup.QueryFailed("memory find", fmt.Errorf("unsupported operator %s", p.Op))
}

func columnText(row models.Applicant, column string) (string, bool) {
	var p *string
	switch column {
	case "id":
		return row.ID, true
	case "first_name":
		p = row.FirstName
	case "last_name":
		p = row.LastName
	case "middle_name":
		p = row.MiddleName
	case "birth_date":
		p = row.BirthDate
	case "birth_place":
		p = row.BirthPlace
	case "full_name":
		p = row.FullName
	case "inn":
		p = row.INN
	case "snils":
		p = row.SNILS
	}
	if p == nil {
		return "", false
	}
	return *p, true
}

func project(row models.Applicant, columns []string) lookup.Candidate {
	c := lookup.Candidate{ClientType: row.Kind, ID: row.ID}
	for _, col := range columns {
		switch col {
		case "first_name":
			c.FirstName = row.FirstName
		case "last_name":
			c.LastName = row.LastName
		case "middle_name":
			c.MiddleName = row.MiddleName
		case "birth_place":
			c.BirthPlace = row.BirthPlace
		case "full_name":
			c.FullName = row.FullName
		case "inn":
			c.INN = row.INN
		case "birth_date":
			if row.BirthDate != nil {
				if t, err := time.Parse(lookup.DateLayout, *row.BirthDate); err == nil {
					c.BirthDate = &t
				}
			}
		}
	}
	return c
}
