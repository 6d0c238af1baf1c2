package camunda

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Job outcomes reported to a JobObserver.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusBPMNError = "bpmn_error"
)

// JobObserver records a span and counters for every handled job.
type JobObserver interface {
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
	RecordJobProcessed(ctx context.Context, taskType, status string)
	RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string)
}

// outcomeClient notes whether the handler failed the job or threw a BPMN
// error. Anything else counts as completed.
type outcomeClient struct {
	worker.JobClient
	status string
}

func (c *outcomeClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	c.status = StatusFailed
	return c.JobClient.NewFailJobCommand()
}

func (c *outcomeClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	c.status = StatusBPMNError
	return c.JobClient.NewThrowErrorCommand()
}

// Observe wraps handler so each job is traced and counted by outcome.
func Observe(obs JobObserver, taskType string, handler worker.JobHandler) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		ctx, span := obs.StartSpan(context.Background(), "job "+taskType,
			attribute.String("taskType", taskType),
			attribute.Int64("jobKey", job.Key),
		)
		defer span.End()

		oc := &outcomeClient{JobClient: client, status: StatusCompleted}
		handler(oc, job)

		span.SetAttributes(attribute.String("status", oc.status))
		obs.RecordJobProcessed(ctx, taskType, oc.status)
		obs.RecordJobDuration(ctx, taskType, time.Since(start), oc.status)
	}
}
