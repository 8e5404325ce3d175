package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/aegis-vault/internal/address"
	"github.com/xela07ax/aegis-vault/internal/audit"
	"github.com/xela07ax/aegis-vault/internal/domain"
)

// AuditLogProvider контракт чтения журнала. Модель та же, что пишет Trail.
type AuditLogProvider interface {
	FetchLogs(ctx context.Context, vaultID string, limit int) ([]audit.AuditEvent, error)
}

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

type AuditService struct {
	repo   AuditLogProvider
	vaults *VaultService
}

func NewAuditService(repo AuditLogProvider, vaults *VaultService) *AuditService {
	return &AuditService{repo: repo, vaults: vaults}
}

// FetchLogs журнал хранилища доступен только владельцу
func (s *AuditService) FetchLogs(ctx context.Context, vaultID, caller string, limit int) ([]audit.AuditEvent, error) {
	owner, err := s.vaults.OwnerOf(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	if !address.Equal(caller, owner) {
		return nil, domain.ErrVaultOwnerMismatch
	}

	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	logs, err := s.repo.FetchLogs(ctx, vaultID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch logs: %w", err)
	}
	if logs == nil {
		return []audit.AuditEvent{}, nil
	}
	return logs, nil
}
