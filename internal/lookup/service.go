package lookup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"applicant-registry/internal/common/logger"
	"applicant-registry/internal/common/metrics"
	"applicant-registry/internal/models"
)

const tracerName = "applicant-registry/internal/lookup"

// Lookuper is satisfied by Service and by decorators such as the response cache.
type Lookuper interface {
	Execute(ctx context.Context, req SearchRequest) (*Response, error)
}

// Options configures a Service.
type Options struct {
	Weights       FieldWeights
	Threshold     float64
	ParallelTiers bool
}

// Service is the lookup entry point. It holds no per-request state.
type Service struct {
	lookups map[models.ApplicantKind]*KindLookup
	scorer  *Scorer
	store   Store
	logger  logger.Logger
	tracer  trace.Tracer
}

func NewService(store Store, opts Options, log logger.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("lookup service: store is required")
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultSimilarityThreshold
	}
	scorer, err := NewScorer(opts.Weights, opts.Threshold)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	builder := NewTierBuilder(scorer)
	lookups := make(map[models.ApplicantKind]*KindLookup, len(models.ApplicantKinds))
	for _, kind := range models.ApplicantKinds {
		kl, err := NewKindLookup(kind, builder, store, opts.ParallelTiers)
		if err != nil {
			return nil, err
		}
		lookups[kind] = kl
	}

	return &Service{
		lookups: lookups,
		scorer:  scorer,
		store:   store,
		logger:  log.WithFields(map[string]interface{}{"component": "lookup"}),
		tracer:  otel.Tracer(tracerName),
	}, nil
}

func (s *Service) Scorer() *Scorer {
	return s.scorer
}

// Ping checks the store when it supports readiness probes.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Lookup parses loosely typed fields for kind and runs the tiers.
func (s *Service) Lookup(ctx context.Context, kind models.ApplicantKind, fields map[string]interface{}) (*Response, error) {
	req, err := ParseSearchRequest(kind, fields)
	if err != nil {
		s.observe(kind, time.Now(), err)
		return nil, err
	}
	return s.Execute(ctx, req)
}

// LookupPayload accepts {"<kind>": {fields}} with exactly one kind key.
func (s *Service) LookupPayload(ctx context.Context, payload map[string]interface{}) (*Response, error) {
	req, err := ParsePayload(payload)
	if err != nil {
		s.observe(req.Kind, time.Now(), err)
		return nil, err
	}
	return s.Execute(ctx, req)
}

// Execute validates req and returns its three tiers.
func (s *Service) Execute(ctx context.Context, req SearchRequest) (resp *Response, err error) {
	start := time.Now()
	defer func() { s.observe(req.Kind, start, err) }()

	ctx, span := s.tracer.Start(ctx, "lookup.Execute", trace.WithAttributes(
		attribute.String("lookup.kind", string(req.Kind)),
		attribute.Int("lookup.active_fields", len(req.ActiveFields())),
	))
	defer span.End()

	if err = req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	kl, ok := s.lookups[req.Kind]
	if !ok {
		err = fmt.Errorf("%w: %q", ErrInvalidApplicantKind, req.Kind)
		return nil, err
	}

	resp, err = kl.Lookup(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.FromContext(ctx, s.logger).Warn("lookup failed", map[string]interface{}{
			"kind":  string(req.Kind),
			"error": err.Error(),
		})
		return nil, err
	}

	for _, tier := range []models.TierName{models.TierExact, resp.RelaxedTierName(), models.TierFuzzy} {
		n := len(resp.Tier(tier))
		span.SetAttributes(attribute.Int("lookup.tier."+string(tier), n))
		metrics.LookupTierCandidates.WithLabelValues(string(req.Kind), string(tier)).Observe(float64(n))
	}

	logger.FromContext(ctx, s.logger).Debug("lookup completed", map[string]interface{}{
		"kind":       string(req.Kind),
		"exact":      len(resp.Exact),
		"relaxed":    len(resp.Relaxed),
		"fuzzy":      len(resp.Fuzzy),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return resp, nil
}

func (s *Service) observe(kind models.ApplicantKind, start time.Time, err error) {
	label := string(kind)
	if _, ok := kindSpecs[kind]; !ok {
		label = "unknown"
	}
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	metrics.LookupRequests.WithLabelValues(label, status).Inc()
	metrics.LookupDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
}
