package memory

import (
	"context"
	"sync"

	"github.com/xela07ax/aegis-vault/internal/audit"
)

// AuditLog журнал в памяти: приемник для Trail и источник для консоли
type AuditLog struct {
	mu     sync.RWMutex
	events []audit.AuditEvent
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (l *AuditLog) WriteBatch(_ context.Context, events []audit.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, events...)
	return nil
}

// FetchLogs новые события первыми
func (l *AuditLog) FetchLogs(_ context.Context, vaultID string, limit int) ([]audit.AuditEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]audit.AuditEvent, 0)
	for i := len(l.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if l.events[i].VaultID == vaultID {
			out = append(out, l.events[i])
		}
	}
	return out, nil
}
