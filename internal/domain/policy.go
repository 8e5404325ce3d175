package domain

import "time"

const (
	// MaxAllowedTargets размер inline-массива белого списка
	MaxAllowedTargets = 10
)

// Decision определяет, что делать с запросом на трату
type Decision string

const (
	DecisionAllow  Decision = "ALLOW"  // Исполнить сразу
	DecisionDefer  Decision = "DEFER"  // Требовать подтверждения владельца (HITL)
	DecisionReject Decision = "REJECT" // Превышен дневной лимит
)

// Policy неизменяемый набор правил одного хранилища (1:1 с Vault).
// Операции обновления нет: порог и лимит проверяются один раз при создании.
type Policy struct {
	ID               string        `json:"id"` // H("policy", vault)
	VaultID          string        `json:"vault_id"`
	DailyLimit       uint64        `json:"daily_spend_limit"`
	LargeTxThreshold uint64        `json:"large_tx_threshold"`
	AllowedTargets   []string      `json:"allowed_targets"`
	LargeTxCooldown  time.Duration `json:"large_tx_cooldown"`
	IsActive         bool          `json:"is_active"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Validate проверяет конфигурацию при создании
func (p *Policy) Validate() error {
	if p.DailyLimit == 0 {
		return ErrInvalidDailyLimit
	}
	if p.LargeTxThreshold == 0 {
		return ErrInvalidThreshold
	}
	if p.LargeTxThreshold > p.DailyLimit {
		return ErrThresholdExceedsDailyLimit
	}
	if len(p.AllowedTargets) == 0 || len(p.AllowedTargets) > MaxAllowedTargets {
		return ErrTooManyTargets
	}
	if p.LargeTxCooldown < 0 || p.LargeTxCooldown >= PendingActionTimeout {
		return ErrInvalidCooldown
	}
	return nil
}

// Check метод-интерпретатор политики. Без побочных эффектов.
// Переполнение суммы трактуется как превышение лимита (fail closed).
func (p *Policy) Check(amount, dailySpent uint64) Decision {
	if p == nil {
		return DecisionReject
	}
	total, err := checkedAdd(dailySpent, amount)
	if err != nil || total > p.DailyLimit {
		return DecisionReject
	}
	if amount > p.LargeTxThreshold {
		return DecisionDefer
	}
	return DecisionAllow
}

// IsTargetAllowed линейный поиск по ограниченному списку. Пустой список ничего не разрешает.
func (p *Policy) IsTargetAllowed(target string) bool {
	if p == nil {
		return false
	}
	for _, t := range p.AllowedTargets {
		if t == target {
			return true
		}
	}
	return false
}
