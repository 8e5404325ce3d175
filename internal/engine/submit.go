package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xela07ax/aegis-vault/internal/address"
	"github.com/xela07ax/aegis-vault/internal/audit"
	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/policy"
)

// Submit единая точка входа агента. Ровно один эффект на вызов: либо трата исполнена и учтена,
// либо создана заявка, либо ничего не изменилось. Отказ возвращает и Outcome REJECTED, и ошибку.
func (e *Engine) Submit(ctx context.Context, req domain.SubmitRequest) (out *domain.Outcome, err error) {
	ctx, done := e.begin(ctx, audit.OpSubmit, req.VaultID)
	defer func() { done(err) }()

	now := e.clock()
	// Невалидный адрес не совпадет ни с одним элементом белого списка
	if t, nErr := address.Normalize(req.Target); nErr == nil {
		req.Target = t
	}

	var created *domain.PendingAction
	err = e.store.WithVaultLock(ctx, req.VaultID, func(ctx context.Context, tx VaultTx) error {
		v := tx.Vault()
		v.ResetWindowIfStale(now)

		if !v.IsActive {
			return domain.ErrVaultNotActive
		}
		if !address.Equal(req.Caller, v.Authority) {
			return domain.ErrUnauthorizedAuthority
		}
		p, err := e.policies.PolicyForVault(ctx, v.ID)
		if err != nil {
			return err
		}

		decision, err := policy.Evaluate(p, &req, v.DailySpent)
		if err != nil {
			return err
		}
		if v.Balance < req.Amount {
			return domain.ErrInsufficientBalance
		}

		switch decision {
		case domain.DecisionAllow:
			t := domain.Transfer{VaultID: v.ID, Kind: req.Kind, Amount: req.Amount, Target: req.Target, Payload: req.Payload}
			if xErr := e.executor.Execute(ctx, t); xErr != nil {
				if errors.Is(xErr, domain.ErrExecutorUnavailable) {
					return xErr
				}
				return fmt.Errorf("%w: %v", domain.ErrExecutionFailed, xErr)
			}
			if err := v.RecordSpend(req.Amount); err != nil {
				return err
			}
			if err := v.Debit(req.Amount); err != nil {
				return err
			}
			v.UpdatedAt = now
			if err := tx.SaveVault(ctx, v); err != nil {
				return err
			}
			out = &domain.Outcome{Kind: domain.OutcomeExecuted, DailySpent: v.DailySpent, Balance: v.Balance}
			return nil

		case domain.DecisionDefer:
			if v.PendingCount >= e.maxPending {
				return domain.ErrPendingActionsExhausted
			}
			a := &domain.PendingAction{
				ID:          address.PendingActionID(v.ID, v.ActionNonce),
				VaultID:     v.ID,
				Requester:   v.Authority,
				Kind:        req.Kind,
				Amount:      req.Amount,
				Target:      req.Target,
				Description: req.Description,
				Payload:     req.Payload,
				Status:      domain.StatusPending,
				RequestedAt: now,
				ExpiresAt:   now.Add(domain.PendingActionTimeout),
			}
			v.ActionNonce++
			v.IncPending()
			v.UpdatedAt = now
			if err := tx.InsertAction(ctx, a); err != nil {
				return err
			}
			if err := tx.SaveVault(ctx, v); err != nil {
				return err
			}
			created = a
			out = &domain.Outcome{
				Kind:       domain.OutcomeDeferred,
				ActionID:   a.ID,
				Reason:     domain.ErrApprovalRequired.Error(),
				DailySpent: v.DailySpent,
				Balance:    v.Balance,
			}
			return nil

		default:
			return domain.ErrDailyLimitExceeded
		}
	})

	ev := audit.AuditEvent{
		VaultID: req.VaultID,
		Actor:   req.Caller,
		Op:      audit.OpSubmit,
		Kind:    string(req.Kind),
		Amount:  req.Amount,
		Target:  req.Target,
	}
	fields := []zap.Field{
		zap.String("vault_id", req.VaultID),
		zap.Uint64("amount", req.Amount),
		zap.String("target", req.Target),
		zap.String("kind", string(req.Kind)),
	}

	if err != nil {
		ev.Status = string(domain.OutcomeRejected)
		e.audit(ctx, ev, now, err)
		if errors.Is(err, domain.ErrDailyLimitExceeded) || errors.Is(err, domain.ErrExecutionFailed) ||
			errors.Is(err, domain.ErrExecutorUnavailable) {
			e.logger.Warn("spend rejected", append(fields, zap.Error(err))...)
		} else {
			e.logger.Debug("spend rejected", append(fields, zap.Error(err))...)
		}
		return &domain.Outcome{Kind: domain.OutcomeRejected, Reason: err.Error()}, err
	}

	ev.Status = string(out.Kind)
	ev.ActionID = out.ActionID
	e.audit(ctx, ev, now, nil)

	switch out.Kind {
	case domain.OutcomeExecuted:
		e.metrics.SpentTotal.Add(float64(req.Amount))
		e.logger.Info("spend executed", append(fields, zap.Uint64("daily_spent", out.DailySpent))...)
	case domain.OutcomeDeferred:
		e.metrics.PendingCreated.Inc()
		e.logger.Info("spend deferred for owner approval", append(fields, zap.String("action_id", out.ActionID))...)
		e.publish(ctx, created)
	}
	return out, nil
}

func (e *Engine) publish(ctx context.Context, a *domain.PendingAction) {
	ev := ActionEvent{
		VaultID:   a.VaultID,
		ActionID:  a.ID,
		Status:    a.Status,
		Amount:    a.Amount,
		Target:    a.Target,
		ExpiresAt: a.ExpiresAt,
	}
	if err := e.notifier.ActionChanged(ctx, ev); err != nil {
		e.logger.Warn("failed to publish action event",
			zap.String("action_id", a.ID), zap.String("status", string(a.Status)), zap.Error(err))
	}
}
