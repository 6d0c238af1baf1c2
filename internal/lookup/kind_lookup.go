package lookup

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"applicant-registry/internal/models"
)

// KindLookup runs the three tiers for one applicant kind.
type KindLookup struct {
	spec     KindSpec
	builder  *TierBuilder
	store    Store
	parallel bool
}

func NewKindLookup(kind models.ApplicantKind, builder *TierBuilder, store Store, parallel bool) (*KindLookup, error) {
	spec, err := SpecFor(kind)
	if err != nil {
		return nil, err
	}
	if builder == nil || store == nil {
		return nil, fmt.Errorf("kind lookup %s: builder and store are required", kind)
	}
	return &KindLookup{spec: spec, builder: builder, store: store, parallel: parallel}, nil
}

func (l *KindLookup) Kind() models.ApplicantKind {
	return l.spec.Kind
}

// Lookup returns all three tiers or the first tier error. Tiers never
// suppress each other.
func (l *KindLookup) Lookup(ctx context.Context, req SearchRequest) (*Response, error) {
	if req.Kind != l.spec.Kind {
		return nil, fmt.Errorf("%w: request for %s sent to %s lookup", ErrInvalidApplicantKind, req.Kind, l.spec.Kind)
	}

	queries := []func(SearchRequest) (*Query, bool){
		l.builder.Exact,
		l.builder.Relaxed,
		l.builder.Fuzzy,
	}
	results := make([][]Candidate, len(queries))

	if l.parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i, build := range queries {
			i, build := i, build
			g.Go(func() error {
				res, err := l.runTier(gctx, build, req)
				results[i] = res
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, build := range queries {
			res, err := l.runTier(ctx, build, req)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
	}

	resp := NewResponse(l.spec.Kind)
	resp.Exact = results[0]
	resp.Relaxed = results[1]
	resp.Fuzzy = results[2]
	return resp, nil
}

func (l *KindLookup) runTier(ctx context.Context, build func(SearchRequest) (*Query, bool), req SearchRequest) ([]Candidate, error) {
	q, ok := build(req)
	if !ok {
		return []Candidate{}, nil
	}
	rows, err := l.store.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%s tier: %w", q.Tier, err)
	}
	out := make([]Candidate, len(rows))
	for i, row := range rows {
		row.ClientType = l.spec.Kind
		out[i] = row
	}
	return out, nil
}
