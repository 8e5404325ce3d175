package domain

import (
	"encoding/json"
	"time"
)

const (
	// PendingActionTimeout фиксированный срок жизни заявки, не продлевается
	PendingActionTimeout = 24 * time.Hour
	MaxDescriptionLen    = 200
	MaxPayloadLen        = 1024
)

// ActionKind закрытый набор видов действий. Расширение = новый вариант + case в исполнителе.
type ActionKind string

const (
	KindSwap           ActionKind = "SWAP"
	KindTransfer       ActionKind = "TRANSFER"
	KindWithdraw       ActionKind = "WITHDRAW"
	KindLendingDeposit ActionKind = "LENDING_DEPOSIT"
	KindLargeTransfer  ActionKind = "LARGE_TRANSFER"
)

func (k ActionKind) Valid() bool {
	switch k {
	case KindSwap, KindTransfer, KindWithdraw, KindLendingDeposit, KindLargeTransfer:
		return true
	}
	return false
}

// Статусы State Machine
type ActionStatus string

const (
	StatusPending  ActionStatus = "PENDING"
	StatusApproved ActionStatus = "APPROVED"
	StatusRejected ActionStatus = "REJECTED"
	StatusExpired  ActionStatus = "EXPIRED"
	StatusFailed   ActionStatus = "FAILED"
)

func (s ActionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// IsTerminal все статусы кроме PENDING конечные
func (s ActionStatus) IsTerminal() bool {
	return s != StatusPending
}

// PendingAction отложенная заявка, превысившая порог. Ждет решения владельца или истечения срока.
type PendingAction struct {
	ID          string          `json:"id"` // H("pending_action", vault, nonce)
	VaultID     string          `json:"vault_id"`
	Requester   string          `json:"requester"`
	Kind        ActionKind      `json:"kind"`
	Amount      uint64          `json:"amount"`
	Target      string          `json:"target"`
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload,omitempty"` // Данные для downstream вызова
	Status      ActionStatus    `json:"status"`

	RequestedAt time.Time `json:"requested_at"`
	ExpiresAt   time.Time `json:"expires_at"`

	Approver      *string    `json:"approver,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
}

// CanTransitionTo проверяет правила конечного автомата
func (a *PendingAction) CanTransitionTo(next ActionStatus) error {
	if a.Status != StatusPending {
		return ErrActionNotPending
	}
	if next == StatusPending || !next.Valid() {
		return ErrInvalidTransition
	}
	return nil
}

// IsExpired на самом дедлайне заявка уже истекла: EXPIRED побеждает APPROVED.
func (a *PendingAction) IsExpired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// Resolve фиксирует конечный статус. approver пустой для permissionless expire.
func (a *PendingAction) Resolve(next ActionStatus, approver string, now time.Time) error {
	if err := a.CanTransitionTo(next); err != nil {
		return err
	}
	a.Status = next
	if approver != "" {
		a.Approver = &approver
	}
	a.ProcessedAt = &now
	return nil
}
