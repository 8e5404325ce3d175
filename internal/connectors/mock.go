package connectors

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/xela07ax/aegis-vault/internal/domain"
)

// SimulatedExecutor имитация коннектора для dev-стенда и тестов: задержка,
// отказ для целей из failTargets, журнал исполненных переводов.
type SimulatedExecutor struct {
	MinLatency time.Duration
	MaxLatency time.Duration

	mu          sync.Mutex
	failTargets map[string]error
	executed    []domain.Transfer
}

func NewSimulatedExecutor(minLatency, maxLatency time.Duration) *SimulatedExecutor {
	return &SimulatedExecutor{
		MinLatency:  minLatency,
		MaxLatency:  maxLatency,
		failTargets: make(map[string]error),
	}
}

// FailFor все переводы на target будут падать с err. Hex-адреса сравниваются без учета регистра.
func (c *SimulatedExecutor) FailFor(target string, err error) {
	target = strings.ToLower(target)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failTargets, target)
		return
	}
	c.failTargets[target] = err
}

func (c *SimulatedExecutor) Execute(ctx context.Context, t domain.Transfer) error {
	if _, err := t.Capability(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferRejected, err)
	}

	latency := c.MinLatency
	if spread := c.MaxLatency - c.MinLatency; spread > 0 {
		latency += time.Duration(rand.Int64N(int64(spread)))
	}
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failTargets[strings.ToLower(t.Target)]; ok {
		return err
	}
	c.executed = append(c.executed, t)
	return nil
}

// Executed копия журнала успешных переводов
func (c *SimulatedExecutor) Executed() []domain.Transfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Transfer(nil), c.executed...)
}
