package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"applicant-registry/internal/common/config"
)

func fastRetry(max int) *RetryConfig {
	return &RetryConfig{MaxRetries: max, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("dial tcp 127.0.0.1:26500: connect: connection refused"), true},
		{errors.New("rpc error: code = Unavailable desc = transport is closing"), true},
		{context.DeadlineExceeded, true},
		{errors.New("permission denied"), false},
		{nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryable(tt.err), "%v", tt.err)
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(5), "topology", zaptest.NewLogger(t), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(5), "topology", zaptest.NewLogger(t), func(context.Context) error {
		calls++
		return errors.New("permission denied")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "topology failed")
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), "topology", zaptest.NewLogger(t), func(context.Context) error {
		calls++
		return errors.New("unavailable")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rc := &RetryConfig{MaxRetries: 5, BaseDelay: time.Hour}

	err := Retry(ctx, rc, "topology", zaptest.NewLogger(t), func(context.Context) error {
		cancel()
		return errors.New("connection reset")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigFrom(t *testing.T) {
	cc := ConfigFrom(config.CamundaConfig{BrokerAddress: "zeebe:26500"})
	assert.Equal(t, "zeebe:26500", cc.GatewayAddress)
	assert.True(t, cc.UsePlaintextConnection)
	assert.Equal(t, 10*time.Second, cc.ConnectionTimeout)

	cc = ConfigFrom(config.CamundaConfig{BrokerAddress: "zeebe:26500", RequestTimeout: 2500})
	assert.Equal(t, 2500*time.Millisecond, cc.ConnectionTimeout)
}

func TestNewClientWithConfig_RequiresAddress(t *testing.T) {
	_, err := NewClientWithConfig(context.Background(), &ClientConfig{}, nil)
	assert.Error(t, err)
}
