package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/aegis-vault/internal/connectors"
	"github.com/xela07ax/aegis-vault/internal/domain"
)

type ReliabilityConfig struct {
	Name           string
	MaxRequests    uint32
	Interval       time.Duration
	Timeout        time.Duration // Через сколько CB попробует закрыться
	TripFailures   uint32        // Сколько ошибок подряд открывает CB
	RateLimit      float64       // Переводов в секунду
	Burst          int
	Attempts       uint
	AttemptTimeout time.Duration
}

func DefaultReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Name:           "transfer-connector",
		MaxRequests:    3,
		Interval:       5 * time.Second,
		Timeout:        30 * time.Second,
		TripFailures:   5,
		RateLimit:      100,
		Burst:          20,
		Attempts:       3,
		AttemptTimeout: 10 * time.Second,
	}
}

// ReliabilityWrapper ретраи, Circuit Breaker и rate limit вокруг примитива перевода.
// Ретраится только внешний вызов, не переход состояния: движок видит один итоговый результат.
type ReliabilityWrapper struct {
	next    Executor
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	cfg     ReliabilityConfig
}

func NewReliabilityWrapper(next Executor, cfg ReliabilityConfig, metrics *Metrics, logger *zap.Logger) *ReliabilityWrapper {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.TripFailures
		},
		// Отказ коннектора по существу (422) не признак падения сервиса
		IsSuccessful: func(err error) bool {
			return err == nil || connectors.IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("connector", name), zap.String("from", from.String()), zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerGauge(to))
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)

	return &ReliabilityWrapper{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		cfg:     cfg,
	}
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}

// Execute ошибка с domain.ErrExecutorUnavailable значит, что коннектор не вызывался ни разу
// и перевод можно повторить. Любая другая ошибка означает, что примитив отработал и отказал.
func (w *ReliabilityWrapper) Execute(ctx context.Context, t domain.Transfer) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", domain.ErrExecutorUnavailable, err)
	}

	// 2. Circuit Breaker
	attempts := 0
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.cfg.Attempts),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				return !connectors.IsPermanent(err)
			}),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Коннектор сам сказал, сколько ждать
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) && tErr.RetryAfter > 0 {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		return nil, r.Do(func() error {
			attempts++
			tCtx, cancel := context.WithTimeout(ctx, w.cfg.AttemptTimeout)
			defer cancel()
			return w.next.Execute(tCtx, t)
		})
	})
	if err != nil && attempts == 0 {
		// CB открыт или в half-open исчерпаны пробы, либо запрос отменен до первой попытки
		return fmt.Errorf("%w: %w", domain.ErrExecutorUnavailable, err)
	}
	return err
}

// State текущее состояние предохранителя
func (w *ReliabilityWrapper) State() gobreaker.State {
	return w.cb.State()
}
