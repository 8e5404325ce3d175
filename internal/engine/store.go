package engine

import (
	"context"

	"github.com/xela07ax/aegis-vault/internal/domain"
)

// Store персистентность хранилищ и заявок. Каждая мутация идет через WithVaultLock:
// одна сериализованная единица работы на хранилище, все или ничего.
type Store interface {
	// CreateVault атомарно создает хранилище и его политику. ErrVaultExists, если адрес занят.
	CreateVault(ctx context.Context, v *domain.Vault, p *domain.Policy) error
	GetVault(ctx context.Context, vaultID string) (*domain.Vault, error)
	GetPolicyByVault(ctx context.Context, vaultID string) (*domain.Policy, error)
	GetAllPolicies(ctx context.Context) ([]domain.Policy, error)
	GetAction(ctx context.Context, vaultID, actionID string) (*domain.PendingAction, error)
	// ListActions пустой status означает все статусы. Сортировка по RequestedAt.
	ListActions(ctx context.Context, vaultID string, status domain.ActionStatus) ([]domain.PendingAction, error)
	// FrozenVaults id всех выключенных хранилищ, для прогрева кэша шлюза
	FrozenVaults(ctx context.Context) ([]string, error)

	// WithVaultLock держит блокировку хранилища на время fn. Ошибка fn откатывает все записи tx.
	WithVaultLock(ctx context.Context, vaultID string, fn func(ctx context.Context, tx VaultTx) error) error
}

// VaultTx единица работы под блокировкой одного хранилища
type VaultTx interface {
	// Vault рабочая копия. Изменения видны только после SaveVault и коммита.
	Vault() *domain.Vault
	// Action копия заявки этого хранилища
	Action(ctx context.Context, actionID string) (*domain.PendingAction, error)
	SaveVault(ctx context.Context, v *domain.Vault) error
	InsertAction(ctx context.Context, a *domain.PendingAction) error
	UpdateAction(ctx context.Context, a *domain.PendingAction) error
}
