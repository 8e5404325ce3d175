package domain

import (
	"encoding/json"
	"fmt"
)

// Transfer запрос к внешнему примитиву перевода: либо целиком успешен, либо целиком нет.
type Transfer struct {
	VaultID  string          `json:"vault_id"`
	ActionID string          `json:"action_id,omitempty"` // Пусто для немедленного исполнения
	Kind     ActionKind      `json:"kind"`
	Amount   uint64          `json:"amount"`
	Target   string          `json:"target"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Capability маршрут коннектора для вида действия. Закрытый switch: новый вид без case не пройдет.
func (t Transfer) Capability() (string, error) {
	switch t.Kind {
	case KindSwap:
		return "vault.swap", nil
	case KindTransfer, KindLargeTransfer:
		return "vault.transfer", nil
	case KindWithdraw:
		return "vault.withdraw", nil
	case KindLendingDeposit:
		return "vault.lending.deposit", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidActionKind, t.Kind)
	}
}

// NewTransferFromAction строит перевод для подтвержденной заявки
func NewTransferFromAction(a *PendingAction) Transfer {
	return Transfer{
		VaultID:  a.VaultID,
		ActionID: a.ID,
		Kind:     a.Kind,
		Amount:   a.Amount,
		Target:   a.Target,
		Payload:  a.Payload,
	}
}
