package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/aegis-vault/internal/address"
	"github.com/xela07ax/aegis-vault/internal/audit"
	"github.com/xela07ax/aegis-vault/internal/domain"
)

// Approve решение владельца по заявке. Лимит и баланс перепроверяются на момент подтверждения:
// окно могло смениться, а другие траты могли его исчерпать. Провал перевода фиксирует FAILED
// без движения средств и возвращает ErrExecutionFailed. Недоступный исполнитель
// (ErrExecutorUnavailable) ничего не меняет: заявка остается PENDING.
func (e *Engine) Approve(ctx context.Context, vaultID, actionID, caller string) (status domain.ActionStatus, err error) {
	ctx, done := e.begin(ctx, audit.OpApprove, vaultID)
	defer func() { done(err) }()

	now := e.clock()
	var (
		resolved *domain.PendingAction
		execErr  error
	)
	err = e.store.WithVaultLock(ctx, vaultID, func(ctx context.Context, tx VaultTx) error {
		v := tx.Vault()
		if !address.Equal(caller, v.Owner) {
			return domain.ErrVaultOwnerMismatch
		}
		a, err := tx.Action(ctx, actionID)
		if err != nil {
			return err
		}
		if a.Status != domain.StatusPending {
			return domain.ErrActionNotPending
		}
		// На самом дедлайне побеждает expire
		if a.IsExpired(now) {
			return domain.ErrActionExpired
		}
		if !v.IsActive {
			return domain.ErrVaultNotActive
		}
		p, err := e.policies.PolicyForVault(ctx, vaultID)
		if err != nil {
			return err
		}
		if now.Before(a.RequestedAt.Add(p.LargeTxCooldown)) {
			return domain.ErrCooldownNotElapsed
		}

		v.ResetWindowIfStale(now)
		if p.Check(a.Amount, v.DailySpent) == domain.DecisionReject {
			return domain.ErrDailyLimitExceeded
		}
		if v.Balance < a.Amount {
			return domain.ErrInsufficientBalance
		}

		if xErr := e.executor.Execute(ctx, domain.NewTransferFromAction(a)); xErr != nil {
			// Перевод не запускался: откат, заявка ждет повторного решения
			if errors.Is(xErr, domain.ErrExecutorUnavailable) {
				return xErr
			}
			execErr = xErr
			reason := xErr.Error()
			a.FailureReason = &reason
			if err := a.Resolve(domain.StatusFailed, v.Owner, now); err != nil {
				return err
			}
		} else {
			if err := v.RecordSpend(a.Amount); err != nil {
				return err
			}
			if err := v.Debit(a.Amount); err != nil {
				return err
			}
			if err := a.Resolve(domain.StatusApproved, v.Owner, now); err != nil {
				return err
			}
		}

		v.DecPending()
		v.UpdatedAt = now
		if err := tx.UpdateAction(ctx, a); err != nil {
			return err
		}
		if err := tx.SaveVault(ctx, v); err != nil {
			return err
		}
		resolved = a
		return nil
	})
	if err != nil {
		e.audit(ctx, audit.AuditEvent{VaultID: vaultID, ActionID: actionID, Actor: caller, Op: audit.OpApprove, Status: statusOf(err, "")}, now, err)
		return "", err
	}

	e.afterResolution(ctx, audit.OpApprove, caller, resolved, now)
	if execErr != nil {
		return domain.StatusFailed, fmt.Errorf("%w: %v", domain.ErrExecutionFailed, execErr)
	}
	return domain.StatusApproved, nil
}

// Reject отказ владельца. Леджер не трогается.
func (e *Engine) Reject(ctx context.Context, vaultID, actionID, caller string) (status domain.ActionStatus, err error) {
	ctx, done := e.begin(ctx, audit.OpReject, vaultID)
	defer func() { done(err) }()

	now := e.clock()
	resolved, err := e.settle(ctx, vaultID, actionID, func(v *domain.Vault, a *domain.PendingAction) error {
		if !address.Equal(caller, v.Owner) {
			return domain.ErrVaultOwnerMismatch
		}
		return a.Resolve(domain.StatusRejected, v.Owner, now)
	})
	if err != nil {
		e.audit(ctx, audit.AuditEvent{VaultID: vaultID, ActionID: actionID, Actor: caller, Op: audit.OpReject, Status: statusOf(err, "")}, now, err)
		return "", err
	}
	e.afterResolution(ctx, audit.OpReject, caller, resolved, now)
	return domain.StatusRejected, nil
}

// Expire permissionless: любой может закрыть заявку после дедлайна и освободить слот очереди.
func (e *Engine) Expire(ctx context.Context, vaultID, actionID, caller string) (status domain.ActionStatus, err error) {
	ctx, done := e.begin(ctx, audit.OpExpire, vaultID)
	defer func() { done(err) }()

	now := e.clock()
	resolved, err := e.settle(ctx, vaultID, actionID, func(_ *domain.Vault, a *domain.PendingAction) error {
		if a.Status != domain.StatusPending {
			return domain.ErrActionNotPending
		}
		if !a.IsExpired(now) {
			return domain.ErrActionNotExpired
		}
		return a.Resolve(domain.StatusExpired, "", now)
	})
	if err != nil {
		e.audit(ctx, audit.AuditEvent{VaultID: vaultID, ActionID: actionID, Actor: caller, Op: audit.OpExpire, Status: statusOf(err, "")}, now, err)
		return "", err
	}
	e.afterResolution(ctx, audit.OpExpire, caller, resolved, now)
	return domain.StatusExpired, nil
}

// settle общий путь reject/expire: переход без движения средств и освобождение слота
func (e *Engine) settle(ctx context.Context, vaultID, actionID string, transition func(v *domain.Vault, a *domain.PendingAction) error) (*domain.PendingAction, error) {
	var resolved *domain.PendingAction
	err := e.store.WithVaultLock(ctx, vaultID, func(ctx context.Context, tx VaultTx) error {
		v := tx.Vault()
		a, err := tx.Action(ctx, actionID)
		if err != nil {
			return err
		}
		if err := transition(v, a); err != nil {
			return err
		}
		v.DecPending()
		v.UpdatedAt = *a.ProcessedAt
		if err := tx.UpdateAction(ctx, a); err != nil {
			return err
		}
		if err := tx.SaveVault(ctx, v); err != nil {
			return err
		}
		resolved = a
		return nil
	})
	return resolved, err
}

func (e *Engine) afterResolution(ctx context.Context, op, caller string, a *domain.PendingAction, now time.Time) {
	e.metrics.PendingResolved.WithLabelValues(string(a.Status)).Inc()
	if a.Status == domain.StatusApproved {
		e.metrics.SpentTotal.Add(float64(a.Amount))
	}

	ev := audit.AuditEvent{
		VaultID:  a.VaultID,
		ActionID: a.ID,
		Actor:    caller,
		Op:       op,
		Kind:     string(a.Kind),
		Amount:   a.Amount,
		Target:   a.Target,
		Status:   string(a.Status),
	}
	if a.FailureReason != nil {
		ev.Error = *a.FailureReason
	}
	e.audit(ctx, ev, now, nil)
	e.publish(ctx, a)

	fields := []zap.Field{
		zap.String("vault_id", a.VaultID),
		zap.String("action_id", a.ID),
		zap.String("status", string(a.Status)),
		zap.Uint64("amount", a.Amount),
	}
	if a.Status == domain.StatusFailed {
		e.logger.Error("approved transfer failed", fields...)
		return
	}
	e.logger.Info("pending action resolved", fields...)
}
