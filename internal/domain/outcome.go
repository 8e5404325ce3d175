package domain

import "encoding/json"

// OutcomeKind результат диспетчеризации заявки агента
type OutcomeKind string

const (
	OutcomeExecuted OutcomeKind = "EXECUTED"
	OutcomeDeferred OutcomeKind = "DEFERRED"
	OutcomeRejected OutcomeKind = "REJECTED"
)

type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	ActionID   string      `json:"action_id,omitempty"` // Только для DEFERRED
	Reason     string      `json:"reason,omitempty"`
	DailySpent uint64      `json:"daily_spent"`
	Balance    uint64      `json:"balance"`
}

// SubmitRequest заявка агента на трату
type SubmitRequest struct {
	VaultID     string          `json:"vault_id"`
	Caller      string          `json:"-"` // Из токена, не из тела
	Amount      uint64          `json:"amount"`
	Target      string          `json:"target"`
	Kind        ActionKind      `json:"kind"`
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Validate статические проверки, не зависящие от состояния хранилища
func (r *SubmitRequest) Validate() error {
	if r.Amount == 0 {
		return ErrInvalidAmount
	}
	if !r.Kind.Valid() {
		return ErrInvalidActionKind
	}
	if len(r.Description) > MaxDescriptionLen {
		return ErrDescriptionTooLong
	}
	if len(r.Payload) > MaxPayloadLen {
		return ErrPayloadTooLarge
	}
	return nil
}
