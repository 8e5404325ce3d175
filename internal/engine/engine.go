package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xela07ax/aegis-vault/internal/address"
	"github.com/xela07ax/aegis-vault/internal/audit"
	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/policy"
)

// DefaultMaxPending сколько заявок может одновременно ждать решения в одном хранилище
const DefaultMaxPending = 32

// Engine ApprovalEngine: диспетчеризация трат, конечный автомат заявок, учет дневного лимита.
// Каждая операция читает часы один раз и выполняется под блокировкой своего хранилища.
type Engine struct {
	store      Store
	policies   policy.Provider
	executor   Executor
	notifier   Notifier
	auditor    audit.Auditor
	metrics    *Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
	clock      func() time.Time
	maxPending uint8
}

func NewEngine(store Store, policies policy.Provider, exec Executor, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:      store,
		policies:   policies,
		executor:   exec,
		notifier:   NopNotifier{},
		auditor:    audit.NopAuditor{},
		metrics:    NewMetrics(nil),
		logger:     logger.Named("engine"),
		tracer:     otel.Tracer("github.com/xela07ax/aegis-vault/internal/engine"),
		clock:      time.Now,
		maxPending: DefaultMaxPending,
	}
}

// WithClock подменяет часы (тесты, реплей)
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

func (e *Engine) WithAuditor(a audit.Auditor) *Engine {
	e.auditor = a
	return e
}

func (e *Engine) WithMetrics(m *Metrics) *Engine {
	e.metrics = m
	return e
}

// WithMaxPending 0 оставляет значение по умолчанию
func (e *Engine) WithMaxPending(n uint8) *Engine {
	if n > 0 {
		e.maxPending = n
	}
	return e
}

// CreateVaultParams вход для создания хранилища и его политики
type CreateVaultParams struct {
	Owner            string        `json:"owner"`
	Authority        string        `json:"authority"`
	DailyLimit       uint64        `json:"daily_spend_limit"`
	LargeTxThreshold uint64        `json:"large_tx_threshold"`
	AllowedTargets   []string      `json:"allowed_targets"`
	LargeTxCooldown  time.Duration `json:"large_tx_cooldown"`
}

// CreateVault создает хранилище с адресом H("vault", owner) и неизменяемую политику.
// Одно хранилище на владельца.
func (e *Engine) CreateVault(ctx context.Context, params CreateVaultParams) (v *domain.Vault, p *domain.Policy, err error) {
	ctx, done := e.begin(ctx, audit.OpCreateVault, "")
	defer func() { done(err) }()

	owner, err := address.Normalize(params.Owner)
	if err != nil {
		return nil, nil, fmt.Errorf("owner: %w", err)
	}
	authority, err := address.Normalize(params.Authority)
	if err != nil {
		return nil, nil, fmt.Errorf("authority: %w", err)
	}
	if len(params.AllowedTargets) > domain.MaxAllowedTargets {
		return nil, nil, domain.ErrTooManyTargets
	}
	targets, err := address.NormalizeAll(params.AllowedTargets)
	if err != nil {
		return nil, nil, fmt.Errorf("allowed targets: %w", err)
	}

	now := e.clock()
	vaultID := address.VaultID(owner)
	p = &domain.Policy{
		ID:               address.PolicyID(vaultID),
		VaultID:          vaultID,
		DailyLimit:       params.DailyLimit,
		LargeTxThreshold: params.LargeTxThreshold,
		AllowedTargets:   targets,
		LargeTxCooldown:  params.LargeTxCooldown,
		IsActive:         true,
		CreatedAt:        now,
	}
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}

	v = &domain.Vault{
		ID:          vaultID,
		Owner:       owner,
		Authority:   authority,
		PolicyID:    p.ID,
		LastResetAt: now,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.CreateVault(ctx, v, p); err != nil {
		return nil, nil, err
	}
	if c, ok := e.policies.(interface{ Put(domain.Policy) }); ok {
		c.Put(*p)
	}

	e.logger.Info("vault created",
		zap.String("vault_id", v.ID), zap.String("owner", owner), zap.String("authority", authority),
		zap.Uint64("daily_limit", p.DailyLimit), zap.Uint64("threshold", p.LargeTxThreshold))
	e.audit(ctx, audit.AuditEvent{VaultID: v.ID, Actor: owner, Op: audit.OpCreateVault, Status: "CREATED"}, now, nil)
	return v, p, nil
}

// Deposit пополнение баланса. Только владелец, только активное хранилище.
func (e *Engine) Deposit(ctx context.Context, vaultID, caller string, amount uint64) (balance uint64, err error) {
	ctx, done := e.begin(ctx, audit.OpDeposit, vaultID)
	defer func() { done(err) }()

	now := e.clock()
	err = e.store.WithVaultLock(ctx, vaultID, func(ctx context.Context, tx VaultTx) error {
		v := tx.Vault()
		if !address.Equal(caller, v.Owner) {
			return domain.ErrVaultOwnerMismatch
		}
		if !v.IsActive {
			return domain.ErrVaultNotActive
		}
		next, err := v.Deposit(amount)
		if err != nil {
			return err
		}
		v.UpdatedAt = now
		balance = next
		return tx.SaveVault(ctx, v)
	})

	e.audit(ctx, audit.AuditEvent{VaultID: vaultID, Actor: caller, Op: audit.OpDeposit, Amount: amount, Status: statusOf(err, "DEPOSITED")}, now, err)
	if err != nil {
		return 0, err
	}
	e.logger.Info("deposit", zap.String("vault_id", vaultID), zap.Uint64("amount", amount), zap.Uint64("balance", balance))
	return balance, nil
}

// SetActive kill-switch владельца. Выключенное хранилище не принимает заявки, депозиты и подтверждения;
// отклонить или истечь заявку можно всегда, чтобы очередь не зависала.
func (e *Engine) SetActive(ctx context.Context, vaultID, caller string, active bool) (err error) {
	op := audit.OpUnfreeze
	if !active {
		op = audit.OpFreeze
	}
	ctx, done := e.begin(ctx, op, vaultID)
	defer func() { done(err) }()

	now := e.clock()
	err = e.store.WithVaultLock(ctx, vaultID, func(ctx context.Context, tx VaultTx) error {
		v := tx.Vault()
		if !address.Equal(caller, v.Owner) {
			return domain.ErrVaultOwnerMismatch
		}
		v.IsActive = active
		v.UpdatedAt = now
		return tx.SaveVault(ctx, v)
	})

	e.audit(ctx, audit.AuditEvent{VaultID: vaultID, Actor: caller, Op: op, Status: statusOf(err, "OK")}, now, err)
	if err != nil {
		return err
	}

	if nErr := e.notifier.VaultFrozen(ctx, vaultID, !active); nErr != nil {
		// Состояние в БД уже изменено, шлюзы догонят при следующем прогреве
		e.logger.Warn("failed to broadcast freeze signal", zap.String("vault_id", vaultID), zap.Error(nErr))
	}
	e.logger.Warn("vault activity changed", zap.String("vault_id", vaultID), zap.Bool("active", active))
	return nil
}

// GetVault состояние хранилища. Окно расходов отражается с учетом истечения.
func (e *Engine) GetVault(ctx context.Context, vaultID string) (*domain.Vault, error) {
	v, err := e.store.GetVault(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	v.ResetWindowIfStale(e.clock())
	return v, nil
}

// GetSummary хранилище, политика и остаток дневного лимита
func (e *Engine) GetSummary(ctx context.Context, vaultID string) (*domain.VaultSummary, error) {
	v, err := e.store.GetVault(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	p, err := e.policies.PolicyForVault(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	return domain.NewVaultSummary(v, p, e.clock()), nil
}

func (e *Engine) GetPolicy(ctx context.Context, vaultID string) (*domain.Policy, error) {
	return e.policies.PolicyForVault(ctx, vaultID)
}

func (e *Engine) GetAction(ctx context.Context, vaultID, actionID string) (*domain.PendingAction, error) {
	return e.store.GetAction(ctx, vaultID, actionID)
}

func (e *Engine) ListActions(ctx context.Context, vaultID string, status domain.ActionStatus) ([]domain.PendingAction, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	if _, err := e.store.GetVault(ctx, vaultID); err != nil {
		return nil, err
	}
	return e.store.ListActions(ctx, vaultID, status)
}

// begin открывает span и возвращает завершение, которое пишет метрики по результату
func (e *Engine) begin(ctx context.Context, op, vaultID string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine."+op, trace.WithAttributes(
		attribute.String("vault.id", vaultID),
		attribute.String("op", op),
	))
	return ctx, func(err error) {
		result := "ok"
		if err != nil {
			class := domain.Classify(err)
			result = string(class)
			e.metrics.ErrorTotal.WithLabelValues(string(class)).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		e.metrics.OpTotal.WithLabelValues(op, result).Inc()
		e.metrics.OpDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
		span.End()
	}
}

func (e *Engine) audit(ctx context.Context, ev audit.AuditEvent, now time.Time, err error) {
	ev.ID = uuid.New().String()
	ev.TraceID = TraceIDFromContext(ctx)
	ev.Timestamp = now
	if err != nil {
		ev.Error = err.Error()
	}
	e.auditor.Log(ev)
	if b, ok := e.auditor.(interface{ Len() int }); ok {
		e.metrics.AuditBufferFill.Set(float64(b.Len()))
	}
}

func statusOf(err error, ok string) string {
	if err == nil {
		return ok
	}
	return "DENIED:" + string(domain.Classify(err))
}
