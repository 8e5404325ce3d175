package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xela07ax/aegis-vault/internal/address"
	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/engine"
)

// VaultEngine то, что консоли нужно от движка. Все мутации идут через него.
type VaultEngine interface {
	CreateVault(ctx context.Context, params engine.CreateVaultParams) (*domain.Vault, *domain.Policy, error)
	GetVault(ctx context.Context, vaultID string) (*domain.Vault, error)
	GetSummary(ctx context.Context, vaultID string) (*domain.VaultSummary, error)
	GetPolicy(ctx context.Context, vaultID string) (*domain.Policy, error)
	Deposit(ctx context.Context, vaultID, caller string, amount uint64) (uint64, error)
	SetActive(ctx context.Context, vaultID, caller string, active bool) error

	GetAction(ctx context.Context, vaultID, actionID string) (*domain.PendingAction, error)
	ListActions(ctx context.Context, vaultID string, status domain.ActionStatus) ([]domain.PendingAction, error)
	Approve(ctx context.Context, vaultID, actionID, caller string) (domain.ActionStatus, error)
	Reject(ctx context.Context, vaultID, actionID, caller string) (domain.ActionStatus, error)
	Expire(ctx context.Context, vaultID, actionID, caller string) (domain.ActionStatus, error)
}

type VaultService struct {
	engine VaultEngine
	logger *zap.Logger
}

func NewVaultService(e VaultEngine, logger *zap.Logger) *VaultService {
	return &VaultService{engine: e, logger: logger.Named("vault-service")}
}

// Create владельцем становится тот, чей адрес в токене, а не тот, кто указан в теле
func (s *VaultService) Create(ctx context.Context, caller string, params engine.CreateVaultParams) (*domain.VaultSummary, error) {
	params.Owner = caller
	v, p, err := s.engine.CreateVault(ctx, params)
	if err != nil {
		return nil, err
	}
	return domain.NewVaultSummary(v, p, v.CreatedAt), nil
}

// Get сводку видят владелец и агент хранилища
func (s *VaultService) Get(ctx context.Context, vaultID, caller string) (*domain.VaultSummary, error) {
	summary, err := s.engine.GetSummary(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	if !address.Equal(caller, summary.Vault.Owner) && !address.Equal(caller, summary.Vault.Authority) {
		return nil, domain.ErrVaultOwnerMismatch
	}
	return summary, nil
}

func (s *VaultService) Policy(ctx context.Context, vaultID, caller string) (*domain.Policy, error) {
	if _, err := s.Get(ctx, vaultID, caller); err != nil {
		return nil, err
	}
	return s.engine.GetPolicy(ctx, vaultID)
}

func (s *VaultService) Deposit(ctx context.Context, vaultID, caller string, amount uint64) (uint64, error) {
	return s.engine.Deposit(ctx, vaultID, caller, amount)
}

// Freeze kill-switch: БД через движок, сигнал шлюзам через Notifier движка
func (s *VaultService) Freeze(ctx context.Context, vaultID, caller string) error {
	return s.setActive(ctx, vaultID, caller, false, "kill-switch-freeze")
}

func (s *VaultService) Unfreeze(ctx context.Context, vaultID, caller string) error {
	return s.setActive(ctx, vaultID, caller, true, "kill-switch-unfreeze")
}

func (s *VaultService) setActive(ctx context.Context, vaultID, caller string, active bool, actionName string) error {
	if err := s.engine.SetActive(ctx, vaultID, caller, active); err != nil {
		s.logger.Warn("vault state change refused",
			zap.String("vault_id", vaultID),
			zap.String("action", actionName),
			zap.Error(err))
		return fmt.Errorf("%s: %w", actionName, err)
	}
	s.logger.Info("vault state updated successfully",
		zap.String("vault_id", vaultID),
		zap.String("action", actionName))
	return nil
}

// OwnerOf проверка прав для сервисов, читающих чужие данные (аудит)
func (s *VaultService) OwnerOf(ctx context.Context, vaultID string) (string, error) {
	v, err := s.engine.GetVault(ctx, vaultID)
	if err != nil {
		return "", err
	}
	return v.Owner, nil
}
