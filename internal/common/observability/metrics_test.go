package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"applicant-registry/internal/common/logger"
)

func TestObservability_Lifecycle(t *testing.T) {
	o := New("applicant-registry-test", logger.NewTestLogger(t))
	require.NotNil(t, o)
	t.Cleanup(o.Shutdown)

	ctx, span := o.StartSpan(context.Background(), "lookup", attribute.String("kind", "individual"))
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NotPanics(t, func() {
		o.RecordJobProcessed(ctx, "lookup-applicant", "success")
		o.RecordJobDuration(ctx, "lookup-applicant", 15*time.Millisecond, "success")
	})
}

func TestObservability_NilSafe(t *testing.T) {
	var o *Observability
	assert.NotNil(t, o.Tracer())
	assert.NotPanics(t, func() {
		o.RecordJobProcessed(context.Background(), "lookup-applicant", "error")
		o.RecordJobDuration(context.Background(), "lookup-applicant", time.Second, "error")
	})
}
