package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/aegis-vault/internal/domain"
)

// ApprovalService HITL: очередь заявок владельца и решения по ним
type ApprovalService struct {
	engine VaultEngine
	vaults *VaultService
	logger *zap.Logger
}

func NewApprovalService(e VaultEngine, vaults *VaultService, logger *zap.Logger) *ApprovalService {
	return &ApprovalService{engine: e, vaults: vaults, logger: logger.Named("approval-service")}
}

// List пустой статус означает PENDING: это то, что владельцу нужно разобрать
func (s *ApprovalService) List(ctx context.Context, vaultID, caller, status string) ([]domain.PendingAction, error) {
	if _, err := s.vaults.Get(ctx, vaultID, caller); err != nil {
		return nil, err
	}

	st := domain.ActionStatus(strings.ToUpper(status))
	switch {
	case status == "":
		st = domain.StatusPending
	case strings.EqualFold(status, "all"):
		st = ""
	}

	list, err := s.engine.ListActions(ctx, vaultID, st)
	if err != nil {
		return nil, err
	}
	// Фронтенд получит [], а не null
	if list == nil {
		return []domain.PendingAction{}, nil
	}
	return list, nil
}

func (s *ApprovalService) Get(ctx context.Context, vaultID, actionID, caller string) (*domain.PendingAction, error) {
	if _, err := s.vaults.Get(ctx, vaultID, caller); err != nil {
		return nil, err
	}
	return s.engine.GetAction(ctx, vaultID, actionID)
}

// Decide решение владельца. FAILED возвращается вместе с ErrExecutionFailed.
func (s *ApprovalService) Decide(ctx context.Context, vaultID, actionID, caller string, approved bool) (domain.ActionStatus, error) {
	var (
		status domain.ActionStatus
		err    error
	)
	if approved {
		status, err = s.engine.Approve(ctx, vaultID, actionID, caller)
	} else {
		status, err = s.engine.Reject(ctx, vaultID, actionID, caller)
	}

	if err != nil && status == "" {
		s.logger.Warn("decision refused",
			zap.String("vault_id", vaultID),
			zap.String("action_id", actionID),
			zap.Bool("approved", approved),
			zap.Error(err))
		return "", err
	}

	s.logger.Info("HITL decision processed",
		zap.String("vault_id", vaultID),
		zap.String("action_id", actionID),
		zap.String("reviewer", caller),
		zap.String("result", string(status)))
	return status, err
}

// Expire доступен любому аутентифицированному вызывающему
func (s *ApprovalService) Expire(ctx context.Context, vaultID, actionID, caller string) (domain.ActionStatus, error) {
	return s.engine.Expire(ctx, vaultID, actionID, caller)
}
