package policy

import (
	"context"

	"github.com/xela07ax/aegis-vault/internal/domain"
)

// Provider отдает политику хранилища. Политика неизменяема, поэтому ее можно кэшировать без инвалидации.
type Provider interface {
	PolicyForVault(ctx context.Context, vaultID string) (*domain.Policy, error)
}

// Evaluate полная проверка заявки против политики. Порядок важен:
// цель вне белого списка имеет приоритет над остальными ошибками, лимит проверяется последним.
func Evaluate(p *domain.Policy, req *domain.SubmitRequest, dailySpent uint64) (domain.Decision, error) {
	if p == nil || !p.IsActive {
		return domain.DecisionReject, domain.ErrPolicyNotActive
	}
	if !p.IsTargetAllowed(req.Target) {
		return domain.DecisionReject, domain.ErrTargetNotAllowed
	}
	if err := req.Validate(); err != nil {
		return domain.DecisionReject, err
	}
	d := p.Check(req.Amount, dailySpent)
	if d == domain.DecisionReject {
		return d, domain.ErrDailyLimitExceeded
	}
	return d, nil
}
