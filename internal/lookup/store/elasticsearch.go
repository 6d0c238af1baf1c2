package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"applicant-registry/internal/common/logger"
	"applicant-registry/internal/lookup"
	"applicant-registry/internal/models"
)

const (
	trigramSubfield = "trigram"
	addressKeyField = "legal_address_key"
	defaultMaxHits  = 1000
)

// ElasticsearchStore runs lookup queries against one index per applicant
// kind. Text columns carry a ".trigram" sub-field analyzed into 3-grams,
// which approximates pg_trgm similarity with minimum_should_match.
type ElasticsearchStore struct {
	client  *elasticsearch.Client
	prefix  string
	maxHits int
	logger  logger.Logger
}

func NewElasticsearchStore(client *elasticsearch.Client, indexPrefix string, log logger.Logger) *ElasticsearchStore {
	if indexPrefix == "" {
		indexPrefix = "applicants"
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &ElasticsearchStore{
		client:  client,
		prefix:  indexPrefix,
		maxHits: defaultMaxHits,
		logger:  log.WithFields(map[string]interface{}{"store": "elasticsearch"}),
	}
}

// IndexName returns the index holding rows of table.
func (s *ElasticsearchStore) IndexName(table string) string {
	return s.prefix + "-" + table
}

func (s *ElasticsearchStore) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return lookup.StoreUnavailable("elasticsearch ping", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return lookup.StoreUnavailable("elasticsearch ping", fmt.Errorf("status %s", res.Status()))
	}
	return nil
}

func (s *ElasticsearchStore) Find(ctx context.Context, q *lookup.Query) ([]lookup.Candidate, error) {
	body, err := BuildSearchBody(q, s.maxHits)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, lookup.QueryFailed("elasticsearch encode", err)
	}

	start := time.Now()
	req := esapi.SearchRequest{
		Index: []string{s.IndexName(q.Table)},
		Body:  bytes.NewReader(data),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, lookup.StoreUnavailable("elasticsearch search", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, classifyElasticsearchStatus(res)
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, lookup.QueryFailed("elasticsearch decode", err)
	}

	out := make([]lookup.Candidate, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		row := hit.Source.toApplicant(q.Kind)
		out = append(out, project(row, q.Columns))
	}

	s.logger.Debug("tier search executed", map[string]interface{}{
		"kind":       string(q.Kind),
		"tier":       string(q.Tier),
		"hits":       len(out),
		"took":       r.Took,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return out, nil
}

// BuildSearchBody compiles q into a search request body. Equality filters
// become term queries, similarity filters become match queries on the
// trigram sub-field, and distance terms become boosted should clauses so
// that _score descending mirrors summed distance ascending.
func BuildSearchBody(q *lookup.Query, size int) (map[string]interface{}, error) {
	if q == nil || q.Table == "" {
		return nil, lookup.QueryFailed("compile", errors.New("query needs a table"))
	}

	filters := make([]interface{}, 0, len(q.Filters))
	for _, p := range q.Filters {
		clause, err := filterClause(p)
		if err != nil {
			return nil, err
		}
		filters = append(filters, clause)
	}

	boolQuery := map[string]interface{}{"filter": filters}
	sort := []interface{}{map[string]interface{}{"id": "asc"}}

	if q.Ranked() {
		should := make([]interface{}, 0, len(q.Order))
		for _, t := range q.Order {
			should = append(should, map[string]interface{}{
				"match": map[string]interface{}{
					t.Column + "." + trigramSubfield: map[string]interface{}{
						"query": t.Value,
						"boost": t.Weight,
					},
				},
			})
		}
		boolQuery["should"] = should
		sort = append([]interface{}{"_score"}, sort...)
	}

	return map[string]interface{}{
		"size":             size,
		"track_total_hits": false,
		"query":            map[string]interface{}{"bool": boolQuery},
		"sort":             sort,
	}, nil
}

func filterClause(p lookup.Predicate) (interface{}, error) {
	switch p.Op {
	case lookup.OpEqual:
		switch v := p.Value.(type) {
		case string:
			return map[string]interface{}{"term": map[string]interface{}{p.Column: v}}, nil
		case time.Time:
			return map[string]interface{}{"term": map[string]interface{}{p.Column: v.Format(lookup.DateLayout)}}, nil
		case models.StructuredAddress:
			key, err := v.Canonical()
			if err != nil {
				return nil, &lookup.CriterionError{Field: p.Field, Value: p.Value, Err: err}
			}
			return map[string]interface{}{"term": map[string]interface{}{addressKeyField: string(key)}}, nil
		}
		return nil, &lookup.CriterionError{Field: p.Field, Value: p.Value, Err: fmt.Errorf("unsupported value type %T", p.Value)}

	case lookup.OpSimilar:
		value, ok := p.Value.(string)
		if !ok {
			return nil, &lookup.CriterionError{Field: p.Field, Value: p.Value, Err: errors.New("similarity needs text")}
		}
		return map[string]interface{}{
			"match": map[string]interface{}{
				p.Column + "." + trigramSubfield: map[string]interface{}{
					"query":                value,
					"minimum_should_match": minimumShouldMatch(p.Threshold),
				},
			},
		}, nil
	}
	return nil, lookup.QueryFailed("compile", fmt.Errorf("unsupported operator %s", p.Op))
}

func minimumShouldMatch(threshold float64) string {
	pct := int(math.Ceil(math.Round(threshold*10000) / 100))
	if pct < 1 {
		pct = 1
	}
	return fmt.Sprintf("%d%%", pct)
}

func classifyElasticsearchStatus(res *esapi.Response) error {
	err := fmt.Errorf("elasticsearch: %s", res.String())
	switch res.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return lookup.StoreUnavailable("elasticsearch search", err)
	}
	return lookup.QueryFailed("elasticsearch search", err)
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Hits []struct {
			Source esDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// esDocument is the stored form of an applicant.
type esDocument struct {
	ID              string                   `json:"id"`
	FirstName       *string                  `json:"first_name,omitempty"`
	LastName        *string                  `json:"last_name,omitempty"`
	MiddleName      *string                  `json:"middle_name,omitempty"`
	BirthDate       *string                  `json:"birth_date,omitempty"`
	BirthPlace      *string                  `json:"birth_place,omitempty"`
	FullName        *string                  `json:"full_name,omitempty"`
	INN             *string                  `json:"inn,omitempty"`
	SNILS           *string                  `json:"snils,omitempty"`
	LegalAddress    models.StructuredAddress `json:"legal_address,omitempty"`
	LegalAddressKey *string                  `json:"legal_address_key,omitempty"`
}

func (d esDocument) toApplicant(kind models.ApplicantKind) models.Applicant {
	return models.Applicant{
		Kind:         kind,
		ID:           d.ID,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		MiddleName:   d.MiddleName,
		BirthDate:    d.BirthDate,
		BirthPlace:   d.BirthPlace,
		FullName:     d.FullName,
		INN:          d.INN,
		SNILS:        d.SNILS,
		LegalAddress: d.LegalAddress,
	}
}

func documentFor(a models.Applicant) (esDocument, error) {
	doc := esDocument{
		ID:           a.ID,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		MiddleName:   a.MiddleName,
		BirthDate:    a.BirthDate,
		BirthPlace:   a.BirthPlace,
		FullName:     a.FullName,
		INN:          a.INN,
		SNILS:        a.SNILS,
		LegalAddress: a.LegalAddress,
	}
	if !a.LegalAddress.IsEmpty() {
		key, err := a.LegalAddress.Canonical()
		if err != nil {
			return esDocument{}, err
		}
		s := string(key)
		doc.LegalAddressKey = &s
	}
	return doc, nil
}

// IndexMapping returns the settings and mappings for a kind's index.
func IndexMapping(kind models.ApplicantKind) (map[string]interface{}, error) {
	spec, err := lookup.SpecFor(kind)
	if err != nil {
		return nil, err
	}

	props := map[string]interface{}{
		"id": map[string]interface{}{"type": "keyword"},
	}
	for _, f := range spec.Fields {
		switch {
		case f.Type == lookup.ValueDate:
			props[f.Column] = map[string]interface{}{"type": "date", "format": "yyyy-MM-dd"}
		case f.Type == lookup.ValueAddress:
			props[f.Column] = map[string]interface{}{"type": "object", "enabled": false}
			props[addressKeyField] = map[string]interface{}{"type": "keyword"}
		case f.Tag == lookup.TagFuzzyEligible:
			props[f.Column] = map[string]interface{}{
				"type": "keyword",
				"fields": map[string]interface{}{
					trigramSubfield: map[string]interface{}{"type": "text", "analyzer": "trigram"},
				},
			}
		default:
			props[f.Column] = map[string]interface{}{"type": "keyword"}
		}
	}

	return map[string]interface{}{
		"settings": map[string]interface{}{
			"analysis": map[string]interface{}{
				"tokenizer": map[string]interface{}{
					"trigram": map[string]interface{}{
						"type":        "ngram",
						"min_gram":    3,
						"max_gram":    3,
						"token_chars": []string{"letter", "digit", "whitespace"},
					},
				},
				"analyzer": map[string]interface{}{
					"trigram": map[string]interface{}{
						"type":      "custom",
						"tokenizer": "trigram",
						"filter":    []string{"lowercase"},
					},
				},
			},
		},
		"mappings": map[string]interface{}{
			"dynamic":    "strict",
			"properties": props,
		},
	}, nil
}

// EnsureIndex creates the kind's index when it does not exist yet.
func (s *ElasticsearchStore) EnsureIndex(ctx context.Context, kind models.ApplicantKind) error {
	spec, err := lookup.SpecFor(kind)
	if err != nil {
		return err
	}
	index := s.IndexName(spec.Table)

	res, err := s.client.Indices.Exists([]string{index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return lookup.StoreUnavailable("elasticsearch exists", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	mapping, err := IndexMapping(kind)
	if err != nil {
		return err
	}
	data, err := json.Marshal(mapping)
	if err != nil {
		return err
	}

	res, err = s.client.Indices.Create(index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return lookup.StoreUnavailable("elasticsearch create index", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return lookup.QueryFailed("elasticsearch create index", errors.New(res.String()))
	}

	s.logger.Info("index created", map[string]interface{}{"index": index})
	return nil
}

// Index writes applicants with a single bulk request and refreshes the
// touched indices.
func (s *ElasticsearchStore) Index(ctx context.Context, applicants ...models.Applicant) error {
	if len(applicants) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, a := range applicants {
		spec, err := lookup.SpecFor(a.Kind)
		if err != nil {
			return fmt.Errorf("applicant %s: %w", a.ID, err)
		}
		doc, err := documentFor(a)
		if err != nil {
			return fmt.Errorf("applicant %s: %w", a.ID, err)
		}
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_index": s.IndexName(spec.Table), "_id": a.ID},
		}
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			return err
		}
		if err := json.NewEncoder(&buf).Encode(doc); err != nil {
			return err
		}
	}

	res, err := s.client.Bulk(bytes.NewReader(buf.Bytes()),
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return lookup.StoreUnavailable("elasticsearch bulk", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return lookup.QueryFailed("elasticsearch bulk", errors.New(res.String()))
	}

	var bulk struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
		return lookup.QueryFailed("elasticsearch bulk decode", err)
	}
	if bulk.Errors {
		return lookup.QueryFailed("elasticsearch bulk", errors.New("one or more documents were rejected"))
	}
	return nil
}
