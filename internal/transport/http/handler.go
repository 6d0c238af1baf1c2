package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	commonerrors "applicant-registry/internal/common/errors"
	"applicant-registry/internal/common/logger"
	"applicant-registry/internal/common/validation"
	"applicant-registry/internal/lookup"
	"applicant-registry/internal/lookup/batch"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether the record store can serve lookups.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Timeout      time.Duration
	MaxBatchSize int
	// ProbesOnly leaves the lookup routes unmounted.
	ProbesOnly bool
}

// Handler serves applicant lookups over HTTP.
type Handler struct {
	lookuper  lookup.Lookuper
	batch     *batch.Runner
	pinger    Pinger
	validator *validation.Validator
	logger    logger.Logger
	opts      Options
}

// New builds the handler. runner and pinger may be nil.
func New(lookuper lookup.Lookuper, runner *batch.Runner, pinger Pinger, log logger.Logger, opts Options) (*Handler, error) {
	if lookuper == nil {
		return nil, errors.New("http handler: lookuper is required")
	}
	validator, err := validation.NewValidator()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Handler{
		lookuper:  lookuper,
		batch:     runner,
		pinger:    pinger,
		validator: validator,
		logger:    log.WithFields(map[string]interface{}{"component": "http"}),
		opts:      opts,
	}, nil
}

// Register mounts the lookup endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/v1/applicants/lookup", h.handleLookup)
	r.Post("/api/v1/applicants/lookup/batch", h.handleBatch)
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type batchResponse struct {
	Results []*lookup.Response `json:"results"`
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx, h.logger)

	var payload map[string]interface{}
	if err := decodeBody(w, r, &payload); err != nil {
		h.writeError(w, r, commonerrors.NewParseError(err))
		return
	}
	if result := h.validator.ValidateLookup(payload); !result.Valid {
		h.writeError(w, r, commonerrors.NewLookupValidationFailedError(strings.Join(result.GetErrorMessages(), "; ")))
		return
	}
	req, err := lookup.ParsePayload(payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
	defer cancel()

	resp, err := h.lookuper.Execute(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	log.Info("lookup served", map[string]interface{}{
		"kind":       req.Kind.String(),
		"candidates": resp.Total(),
	})
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var doc map[string]interface{}
	if err := decodeBody(w, r, &doc); err != nil {
		h.writeError(w, r, commonerrors.NewParseError(err))
		return
	}
	if result := h.validator.ValidateBatch(doc); !result.Valid {
		h.writeError(w, r, commonerrors.NewLookupValidationFailedError(strings.Join(result.GetErrorMessages(), "; ")))
		return
	}

	items, _ := doc["requests"].([]interface{})
	if h.opts.MaxBatchSize > 0 && len(items) > h.opts.MaxBatchSize {
		h.writeError(w, r, commonerrors.NewLookupValidationFailedError(
			fmt.Sprintf("batch of %d requests exceeds the limit of %d", len(items), h.opts.MaxBatchSize)))
		return
	}

	reqs := make([]lookup.SearchRequest, len(items))
	for i, item := range items {
		payload, _ := item.(map[string]interface{})
		req, err := lookup.ParsePayload(payload)
		if err != nil {
			h.writeError(w, r, fmt.Errorf("request %d: %w", i, err))
			return
		}
		reqs[i] = req
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
	defer cancel()

	var (
		results []*lookup.Response
		err     error
	)
	if h.batch != nil {
		results, err = h.batch.Run(ctx, reqs)
	} else {
		results = make([]*lookup.Response, 0, len(reqs))
		for _, req := range reqs {
			resp, execErr := h.lookuper.Execute(ctx, req)
			if execErr != nil {
				err = execErr
				break
			}
			results = append(results, resp)
		}
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			logger.FromContext(r.Context(), h.logger).Warn("readiness check failed", map[string]interface{}{
				"error": err.Error(),
			})
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := commonerrors.FromLookupError("", err)
	status := StatusFor(stdErr.Code)

	log := logger.FromContext(r.Context(), h.logger)
	fields := map[string]interface{}{
		"errorCode": string(stdErr.Code),
		"status":    status,
		"error":     err.Error(),
	}
	if status >= http.StatusInternalServerError {
		log.Error("lookup failed", fields)
	} else {
		log.Warn("lookup rejected", fields)
	}

	writeJSON(w, status, errorResponse{
		Error:     string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		RequestID: RequestID(r.Context()),
	})
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code commonerrors.ErrorCode) int {
	switch code {
	case commonerrors.ErrCodeInvalidCriterion,
		commonerrors.ErrCodeInvalidApplicantKind,
		commonerrors.ErrCodeLookupValidationFailed,
		commonerrors.ErrCodeParseError:
		return http.StatusBadRequest
	case commonerrors.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case commonerrors.ErrCodeQueryTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid request body: trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
