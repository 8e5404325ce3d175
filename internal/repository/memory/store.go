package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/engine"
)

// Store in-memory реализация engine.Store для тестов и dev-стенда.
// Блокировка на хранилище, записи копятся в транзакции и применяются только при успехе fn.
type Store struct {
	mu       sync.RWMutex
	vaults   map[string]domain.Vault
	policies map[string]domain.Policy                   // vault_id -> policy
	actions  map[string]map[string]domain.PendingAction // vault_id -> action_id -> action

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

var _ engine.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		vaults:   make(map[string]domain.Vault),
		policies: make(map[string]domain.Policy),
		actions:  make(map[string]map[string]domain.PendingAction),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Store) CreateVault(_ context.Context, v *domain.Vault, p *domain.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vaults[v.ID]; ok {
		return domain.ErrVaultExists
	}
	s.vaults[v.ID] = *v
	s.policies[v.ID] = clonePolicy(*p)
	s.actions[v.ID] = make(map[string]domain.PendingAction)
	return nil
}

func (s *Store) GetVault(_ context.Context, vaultID string) (*domain.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vaults[vaultID]
	if !ok {
		return nil, domain.ErrVaultNotFound
	}
	return &v, nil
}

func (s *Store) GetPolicyByVault(_ context.Context, vaultID string) (*domain.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[vaultID]
	if !ok {
		return nil, domain.ErrPolicyNotFound
	}
	cp := clonePolicy(p)
	return &cp, nil
}

func (s *Store) GetAllPolicies(_ context.Context) ([]domain.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, clonePolicy(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VaultID < out[j].VaultID })
	return out, nil
}

func (s *Store) GetAction(_ context.Context, vaultID, actionID string) (*domain.PendingAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[vaultID][actionID]
	if !ok {
		return nil, domain.ErrActionNotFound
	}
	cp := cloneAction(a)
	return &cp, nil
}

func (s *Store) ListActions(_ context.Context, vaultID string, status domain.ActionStatus) ([]domain.PendingAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PendingAction, 0)
	for _, a := range s.actions[vaultID] {
		if status == "" || a.Status == status {
			out = append(out, cloneAction(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out, nil
}

func (s *Store) FrozenVaults(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, v := range s.vaults {
		if !v.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) vaultLock(vaultID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[vaultID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[vaultID] = l
	}
	return l
}

func (s *Store) WithVaultLock(ctx context.Context, vaultID string, fn func(ctx context.Context, tx engine.VaultTx) error) error {
	l := s.vaultLock(vaultID)
	l.Lock()
	defer l.Unlock()

	v, err := s.GetVault(ctx, vaultID)
	if err != nil {
		return err
	}
	tx := &vaultTx{store: s, vault: v, staged: make(map[string]domain.PendingAction)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

type vaultTx struct {
	store  *Store
	vault  *domain.Vault
	saved  *domain.Vault
	staged map[string]domain.PendingAction
	order  []string
}

func (t *vaultTx) Vault() *domain.Vault { return t.vault }

func (t *vaultTx) Action(ctx context.Context, actionID string) (*domain.PendingAction, error) {
	if a, ok := t.staged[actionID]; ok {
		cp := cloneAction(a)
		return &cp, nil
	}
	return t.store.GetAction(ctx, t.vault.ID, actionID)
}

func (t *vaultTx) SaveVault(_ context.Context, v *domain.Vault) error {
	cp := *v
	t.saved = &cp
	return nil
}

func (t *vaultTx) InsertAction(ctx context.Context, a *domain.PendingAction) error {
	if _, ok := t.staged[a.ID]; ok {
		return domain.ErrInvalidTransition
	}
	if _, err := t.store.GetAction(ctx, t.vault.ID, a.ID); err == nil {
		return domain.ErrInvalidTransition
	}
	return t.stage(a)
}

func (t *vaultTx) UpdateAction(ctx context.Context, a *domain.PendingAction) error {
	if _, ok := t.staged[a.ID]; !ok {
		if _, err := t.store.GetAction(ctx, t.vault.ID, a.ID); err != nil {
			return err
		}
	}
	return t.stage(a)
}

func (t *vaultTx) stage(a *domain.PendingAction) error {
	if a.VaultID != t.vault.ID {
		return domain.ErrActionNotFound
	}
	if !slices.Contains(t.order, a.ID) {
		t.order = append(t.order, a.ID)
	}
	t.staged[a.ID] = cloneAction(*a)
	return nil
}

func (t *vaultTx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.saved != nil {
		s.vaults[t.saved.ID] = *t.saved
	}
	for _, id := range t.order {
		s.actions[t.vault.ID][id] = t.staged[id]
	}
	return nil
}

func clonePolicy(p domain.Policy) domain.Policy {
	p.AllowedTargets = slices.Clone(p.AllowedTargets)
	return p
}

func cloneAction(a domain.PendingAction) domain.PendingAction {
	a.Payload = slices.Clone(a.Payload)
	if a.Approver != nil {
		v := *a.Approver
		a.Approver = &v
	}
	if a.ProcessedAt != nil {
		v := *a.ProcessedAt
		a.ProcessedAt = &v
	}
	if a.FailureReason != nil {
		v := *a.FailureReason
		a.FailureReason = &v
	}
	return a
}
