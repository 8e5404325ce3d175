package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/aegis-vault/internal/audit"
)

type memStorage struct {
	mu      sync.Mutex
	batches [][]audit.AuditEvent
	err     error
}

func (m *memStorage) WriteBatch(_ context.Context, events []audit.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]audit.AuditEvent(nil), events...)
	m.batches = append(m.batches, cp)
	return m.err
}

func (m *memStorage) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestTrail_FlushOnStop(t *testing.T) {
	store := &memStorage{}
	tr := audit.NewTrail(store, zap.NewNop(), audit.TrailConfig{BatchSize: 1000, FlushInterval: time.Hour})
	tr.Start()

	for i := 0; i < 25; i++ {
		tr.Log(audit.AuditEvent{VaultID: "v1", Op: audit.OpSubmit, Status: "EXECUTED"})
	}
	tr.Stop()

	assert.Equal(t, 25, store.total())
	for _, e := range store.batches[0] {
		assert.False(t, e.Timestamp.IsZero(), "timestamp is stamped on Log")
	}

	// после Stop события отбрасываются без паники
	tr.Log(audit.AuditEvent{VaultID: "v1"})
	tr.Stop()
	assert.Equal(t, 25, store.total())
}

func TestTrail_BatchSizeTriggersFlush(t *testing.T) {
	store := &memStorage{}
	tr := audit.NewTrail(store, zap.NewNop(), audit.TrailConfig{BatchSize: 5, FlushInterval: time.Hour})
	tr.Start()
	defer tr.Stop()

	for i := 0; i < 5; i++ {
		tr.Log(audit.AuditEvent{VaultID: "v1", Op: audit.OpDeposit})
	}
	require.Eventually(t, func() bool { return store.total() == 5 }, time.Second, 5*time.Millisecond)
}

func TestTrail_StorageErrorDoesNotStopWorker(t *testing.T) {
	store := &memStorage{err: errors.New("db down")}
	tr := audit.NewTrail(store, zap.NewNop(), audit.TrailConfig{BatchSize: 1, FlushInterval: time.Hour})
	tr.Start()

	tr.Log(audit.AuditEvent{Op: audit.OpApprove})
	tr.Log(audit.AuditEvent{Op: audit.OpReject})
	tr.Stop()

	assert.Equal(t, 2, store.total())
}
