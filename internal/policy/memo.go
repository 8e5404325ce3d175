package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/xela07ax/aegis-vault/internal/domain"
	"go.uber.org/zap"
)

type PolicyRepository interface {
	GetPolicyByVault(ctx context.Context, vaultID string) (*domain.Policy, error)
	GetAllPolicies(ctx context.Context) ([]domain.Policy, error)
}

// Cache In-memory кэш политик. Hot Path читает только RAM, промах идет в репозиторий.
// Инвалидация не нужна: операции обновления политики не существует.
type Cache struct {
	mu sync.RWMutex
	// Кэш: vault_id -> Policy
	policies map[string]domain.Policy

	repo   PolicyRepository
	logger *zap.Logger
}

func NewCache(repo PolicyRepository, logger *zap.Logger) *Cache {
	return &Cache{
		policies: make(map[string]domain.Policy),
		repo:     repo,
		logger:   logger.Named("policy-cache"),
	}
}

// PolicyForVault возвращает копию, чтобы вызывающий не мог испортить кэш
func (c *Cache) PolicyForVault(ctx context.Context, vaultID string) (*domain.Policy, error) {
	c.mu.RLock()
	p, ok := c.policies[vaultID]
	c.mu.RUnlock()
	if ok {
		return clonePolicy(p), nil
	}

	loaded, err := c.repo.GetPolicyByVault(ctx, vaultID)
	if err != nil {
		return nil, fmt.Errorf("policy: load for vault %s: %w", vaultID, err)
	}
	c.Put(*loaded)
	return clonePolicy(*loaded), nil
}

// Put кладет политику, созданную в этом же процессе (CreateVault)
func (c *Cache) Put(p domain.Policy) {
	c.mu.Lock()
	c.policies[p.VaultID] = *clonePolicy(p)
	c.mu.Unlock()
}

// Refresh «холодная загрузка» всех политик при старте.
func (c *Cache) Refresh(ctx context.Context) error {
	all, err := c.repo.GetAllPolicies(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]domain.Policy, len(all))
	for _, p := range all {
		next[p.VaultID] = *clonePolicy(p)
	}

	c.mu.Lock()
	c.policies = next
	c.mu.Unlock()

	c.logger.Info("policy cache refreshed", zap.Int("count", len(next)))
	return nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.policies)
}

func clonePolicy(p domain.Policy) *domain.Policy {
	p.AllowedTargets = append([]string(nil), p.AllowedTargets...)
	return &p
}
