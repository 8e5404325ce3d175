package domain

import (
	"math"
	"math/bits"
	"time"
)

// DailyWindow длина окна учета расходов. Сброс ленивый: считается от LastResetAt при каждом вызове.
const DailyWindow = 24 * time.Hour

// Vault хранилище средств одного владельца. Агент (Authority) тратит в рамках Policy,
// владелец (Owner) подтверждает крупные операции.
type Vault struct {
	ID        string `json:"id"`        // Производный адрес H("vault", owner)
	Owner     string `json:"owner"`     // Неизменяем после создания
	Authority string `json:"authority"` // Агент, которому разрешено подавать заявки
	PolicyID  string `json:"policy_id"`

	Balance     uint64    `json:"balance"`
	DailySpent  uint64    `json:"daily_spent"`
	LastResetAt time.Time `json:"last_reset_at"`

	// PendingCount административный счетчик, допускает насыщение
	PendingCount uint8 `json:"pending_actions_count"`
	// ActionNonce монотонный seed для адресов заявок, никогда не переиспользуется
	ActionNonce uint64 `json:"action_nonce"`

	IsActive  bool      `json:"is_active"` // Kill-switch
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResetWindowIfStale обнуляет дневной счетчик, если окно истекло. Вызывается до любых расчетов.
func (v *Vault) ResetWindowIfStale(now time.Time) bool {
	if now.Sub(v.LastResetAt) >= DailyWindow {
		v.DailySpent = 0
		v.LastResetAt = now
		return true
	}
	return false
}

// RecordSpend увеличивает дневной расход. Денежные поля никогда не насыщаются.
func (v *Vault) RecordSpend(amount uint64) error {
	next, err := checkedAdd(v.DailySpent, amount)
	if err != nil {
		return err
	}
	v.DailySpent = next
	return nil
}

// Deposit зачисляет средства на баланс.
func (v *Vault) Deposit(amount uint64) (uint64, error) {
	if amount == 0 {
		return v.Balance, ErrInvalidAmount
	}
	next, err := checkedAdd(v.Balance, amount)
	if err != nil {
		return v.Balance, err
	}
	v.Balance = next
	return next, nil
}

// Debit списывает исполненную трату с баланса.
func (v *Vault) Debit(amount uint64) error {
	if amount > v.Balance {
		return ErrInsufficientBalance
	}
	v.Balance -= amount
	return nil
}

// IncPending насыщается на 255: недосчет очереди безопасен, просчет денег нет.
func (v *Vault) IncPending() {
	if v.PendingCount < math.MaxUint8 {
		v.PendingCount++
	}
}

// DecPending с полом в 0
func (v *Vault) DecPending() {
	if v.PendingCount > 0 {
		v.PendingCount--
	}
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}
