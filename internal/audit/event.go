package audit

import "time"

// Операции, попадающие в журнал
const (
	OpCreateVault = "CREATE_VAULT"
	OpDeposit     = "DEPOSIT"
	OpSubmit      = "SUBMIT"
	OpApprove     = "APPROVE"
	OpReject      = "REJECT"
	OpExpire      = "EXPIRE"
	OpFreeze      = "FREEZE"
	OpUnfreeze    = "UNFREEZE"
)

type AuditEvent struct {
	ID       string `json:"id"`       // UUID события
	TraceID  string `json:"trace_id"` // Сквозной ID запроса
	VaultID  string `json:"vault_id"`
	ActionID string `json:"action_id,omitempty"`
	Actor    string `json:"actor"`     // Кто делал (owner, агент, любой для expire)
	Op       string `json:"operation"` // Что хотел сделать

	Kind   string `json:"kind,omitempty"`
	Amount uint64 `json:"amount,omitempty"`
	Target string `json:"target,omitempty"`

	// Результат
	Status     string    `json:"status"` // EXECUTED, DEFERRED, REJECTED, APPROVED, FAILED ...
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
}
