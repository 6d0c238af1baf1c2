// internal/workers/registry/validate-lookup-request/handler.go
package validatelookuprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	commonerrors "applicant-registry/internal/common/errors"
	"applicant-registry/internal/common/logger"
	"applicant-registry/internal/common/metrics"
	"applicant-registry/internal/common/validation"
	"applicant-registry/internal/lookup"
)

const (
	TaskType = "validate-lookup-request"
)

type Handler struct {
	config    *Config
	validator *validation.Validator
	errors    *commonerrors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, log logger.Logger) (*Handler, error) {
	validator, err := validation.NewValidator()
	if err != nil {
		return nil, err
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		validator: validator,
		errors:    commonerrors.NewErrorHandler(l),
		logger:    l,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(client, job, commonerrors.NewParseError(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err = cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

// execute checks the schema first and then the values the schema cannot
// see, such as calendar dates. Invalid input is an error so the process
// can catch LOOKUP_VALIDATION_FAILED on the task.
func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, commonerrors.NewParseError(fmt.Errorf("input cannot be nil"))
	}

	var (
		output *Output
		err    error
	)
	if input.IsBatch() {
		output, err = h.validateBatch(input)
	} else {
		output, err = h.validateSingle(input)
	}
	if err != nil {
		return nil, err
	}

	h.logger.Info("validation completed", map[string]interface{}{
		"isValid":    output.IsValid,
		"errorCount": len(output.ValidationErrors),
	})

	if !output.IsValid {
		stdErr := commonerrors.NewLookupValidationFailedError(
			fmt.Sprintf("%d validation errors", len(output.ValidationErrors)))
		return nil, stdErr.WithMetadata("validationErrors", output.ValidationErrors)
	}
	return output, nil
}

func (h *Handler) validateSingle(input *Input) (*Output, error) {
	payload, err := input.Payload()
	if err != nil {
		return nil, commonerrors.NewParseError(err)
	}

	output := &Output{RequestCount: 1, ValidationErrors: []ValidationError{}}
	if result := h.validator.ValidateLookup(payload); !result.Valid {
		output.ValidationErrors = result.Errors
		return output, nil
	}

	req, err := lookup.ParsePayload(payload)
	if err != nil {
		output.ValidationErrors = append(output.ValidationErrors, criterionError(err, ""))
		return output, nil
	}

	output.IsValid = true
	output.Kind = req.Kind.String()
	for _, f := range req.ActiveFields() {
		output.ActiveFields = append(output.ActiveFields, string(f.Name))
	}
	return output, nil
}

func (h *Handler) validateBatch(input *Input) (*Output, error) {
	output := &Output{RequestCount: len(input.Requests), ValidationErrors: []ValidationError{}}

	if result := h.validator.ValidateBatch(input.BatchDocument()); !result.Valid {
		output.ValidationErrors = result.Errors
		return output, nil
	}
	if h.config.MaxBatchSize > 0 && len(input.Requests) > h.config.MaxBatchSize {
		output.ValidationErrors = append(output.ValidationErrors, ValidationError{
			Field:   "requests",
			Message: fmt.Sprintf("at most %d requests are allowed", h.config.MaxBatchSize),
			Code:    "MAX_ITEMS_VIOLATION",
		})
		return output, nil
	}

	for i, p := range input.Requests {
		if _, err := lookup.ParsePayload(p); err != nil {
			output.ValidationErrors = append(output.ValidationErrors, criterionError(err, fmt.Sprintf("requests.%d", i)))
		}
	}
	output.IsValid = len(output.ValidationErrors) == 0
	return output, nil
}

func criterionError(err error, prefix string) ValidationError {
	field := prefix
	var critErr *lookup.CriterionError
	if errors.As(err, &critErr) && critErr.Field != "" {
		if field != "" {
			field += "."
		}
		field += string(critErr.Field)
	}
	if field == "" {
		field = "(root)"
	}
	return ValidationError{
		Field:   field,
		Message: err.Error(),
		Code:    string(commonerrors.FromLookupError("", err).Code),
	}
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) {
	bpmnErr := h.errors.HandleJobError(context.Background(), client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
