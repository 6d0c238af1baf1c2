package lookupapplicant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	commonerrors "applicant-registry/internal/common/errors"
	"applicant-registry/internal/common/logger"
	"applicant-registry/internal/common/metrics"
	"applicant-registry/internal/common/validation"
	"applicant-registry/internal/lookup"
	"applicant-registry/internal/lookup/batch"
)

const (
	TaskType = "lookup-applicant"
)

type Handler struct {
	config    *Config
	lookuper  lookup.Lookuper
	batch     *batch.Runner
	validator *validation.Validator
	errors    *commonerrors.ErrorHandler
	logger    logger.Logger
}

// NewHandler wires the worker. runner may be nil, in which case batch
// requests run one after another.
func NewHandler(config *Config, lookuper lookup.Lookuper, runner *batch.Runner, log logger.Logger) (*Handler, error) {
	if lookuper == nil {
		return nil, fmt.Errorf("%s: lookuper is required", TaskType)
	}
	validator, err := validation.NewValidator()
	if err != nil {
		return nil, err
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		lookuper:  lookuper,
		batch:     runner,
		validator: validator,
		errors:    commonerrors.NewErrorHandler(l),
		logger:    l,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()
	defer func() {
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	requestID := uuid.NewString()
	log := h.logger.WithFields(map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
		"requestId":   requestID,
	})
	log.Info("processing job", nil)

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()
	ctx = logger.ContextWithLogger(ctx, log)

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(client, job, commonerrors.NewParseError(err))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	h.completeJob(client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	log.Info("job completed", map[string]interface{}{
		"totalCandidates": output.TotalCandidates,
		"durationMs":      output.LookupExecutionTime,
	})
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, commonerrors.NewParseError(fmt.Errorf("input cannot be nil"))
	}
	start := time.Now()

	if input.IsBatch() {
		return h.executeBatch(ctx, input, start)
	}

	payload, err := input.Payload()
	if err != nil {
		return nil, commonerrors.NewParseError(err)
	}
	if result := h.validator.ValidateLookup(payload); !result.Valid {
		return nil, commonerrors.NewLookupValidationFailedError(strings.Join(result.GetErrorMessages(), "; "))
	}

	req, err := lookup.ParsePayload(payload)
	if err != nil {
		return nil, err
	}
	resp, err := h.lookuper.Execute(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", req.Kind, err)
	}

	return &Output{
		Kind:                req.Kind.String(),
		Result:              resp,
		TotalCandidates:     resp.Total(),
		LookupExecutionTime: time.Since(start).Milliseconds(),
	}, nil
}

func (h *Handler) executeBatch(ctx context.Context, input *Input, start time.Time) (*Output, error) {
	payloads := input.Requests
	if result := h.validator.ValidateBatch(input.BatchDocument()); !result.Valid {
		return nil, commonerrors.NewLookupValidationFailedError(strings.Join(result.GetErrorMessages(), "; "))
	}
	if h.config.MaxBatchSize > 0 && len(payloads) > h.config.MaxBatchSize {
		return nil, commonerrors.NewLookupValidationFailedError(
			fmt.Sprintf("batch of %d requests exceeds the limit of %d", len(payloads), h.config.MaxBatchSize))
	}

	reqs := make([]lookup.SearchRequest, len(payloads))
	for i, p := range payloads {
		req, err := lookup.ParsePayload(p)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		reqs[i] = req
	}

	var (
		results []*lookup.Response
		err     error
	)
	if h.batch != nil {
		results, err = h.batch.Run(ctx, reqs)
	} else {
		results, err = h.runSequential(ctx, reqs)
	}
	if err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += r.Total()
	}
	return &Output{
		Results:             results,
		TotalCandidates:     total,
		LookupExecutionTime: time.Since(start).Milliseconds(),
	}, nil
}

func (h *Handler) runSequential(ctx context.Context, reqs []lookup.SearchRequest) ([]*lookup.Response, error) {
	results := make([]*lookup.Response, 0, len(reqs))
	for i, req := range reqs {
		resp, err := h.lookuper.Execute(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("request %d (%s): %w", i, req.Kind, err)
		}
		results = append(results, resp)
	}
	return results, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

// fail reports on a fresh context; the job context may have expired.
func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) {
	bpmnErr := h.errors.HandleJobError(context.Background(), client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
