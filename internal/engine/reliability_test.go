package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/aegis-vault/internal/connectors"
	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/engine"
)

func fastConfig() engine.ReliabilityConfig {
	cfg := engine.DefaultReliabilityConfig()
	cfg.RateLimit = 1000
	cfg.AttemptTimeout = time.Second
	return cfg
}

func TestReliability_RetriesThrottled(t *testing.T) {
	calls := 0
	next := engine.ExecutorFunc(func(context.Context, domain.Transfer) error {
		calls++
		if calls < 3 {
			return &connectors.ThrottleError{RetryAfter: time.Millisecond, Cause: errors.New("429")}
		}
		return nil
	})

	w := engine.NewReliabilityWrapper(next, fastConfig(), nil, zap.NewNop())
	require.NoError(t, w.Execute(context.Background(), domain.Transfer{Kind: domain.KindSwap}))
	assert.Equal(t, 3, calls)
}

func TestReliability_PermanentErrorIsNotRetried(t *testing.T) {
	calls := 0
	next := engine.ExecutorFunc(func(context.Context, domain.Transfer) error {
		calls++
		return fmt.Errorf("%w: unknown pool", connectors.ErrTransferRejected)
	})

	w := engine.NewReliabilityWrapper(next, fastConfig(), nil, zap.NewNop())
	err := w.Execute(context.Background(), domain.Transfer{Kind: domain.KindSwap})
	assert.True(t, connectors.IsPermanent(err))
	assert.Equal(t, 1, calls)
	assert.Equal(t, gobreaker.StateClosed, w.State(), "business rejection does not trip the breaker")
}

func TestReliability_BreakerOpens(t *testing.T) {
	cfg := fastConfig()
	cfg.Attempts = 1
	cfg.TripFailures = 2
	metrics := engine.NewMetrics(prometheus.NewRegistry())

	calls := 0
	next := engine.ExecutorFunc(func(context.Context, domain.Transfer) error {
		calls++
		return errors.New("connection refused")
	})
	w := engine.NewReliabilityWrapper(next, cfg, metrics, zap.NewNop())

	for i := 0; i < 2; i++ {
		require.Error(t, w.Execute(context.Background(), domain.Transfer{}))
	}
	assert.Equal(t, gobreaker.StateOpen, w.State())

	err := w.Execute(context.Background(), domain.Transfer{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, err, domain.ErrExecutorUnavailable, "nothing was attempted")
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues(cfg.Name)))
}

func TestReliability_AttemptedFailureIsNotUnavailable(t *testing.T) {
	cfg := fastConfig()
	cfg.Attempts = 2
	next := engine.ExecutorFunc(func(context.Context, domain.Transfer) error {
		return errors.New("connection reset")
	})

	w := engine.NewReliabilityWrapper(next, cfg, nil, zap.NewNop())
	err := w.Execute(context.Background(), domain.Transfer{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrExecutorUnavailable)
}

func TestReliability_CancelledBeforeAttempt(t *testing.T) {
	calls := 0
	next := engine.ExecutorFunc(func(context.Context, domain.Transfer) error {
		calls++
		return nil
	})
	w := engine.NewReliabilityWrapper(next, fastConfig(), nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Execute(ctx, domain.Transfer{})
	assert.ErrorIs(t, err, domain.ErrExecutorUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
