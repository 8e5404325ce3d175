package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/engine"
)

const (
	vaultColumns  = `id, owner, authority, policy_id, balance, daily_spent, last_reset_at, pending_count, action_nonce, is_active, created_at, updated_at`
	policyColumns = `id, vault_id, daily_limit, large_tx_threshold, allowed_targets, large_tx_cooldown_ms, is_active, created_at`
	actionColumns = `id, vault_id, requester, kind, amount, target, description, payload, status, requested_at, expires_at, approver, processed_at, failure_reason`
)

// VaultRepo реализация engine.Store. Блокировка хранилища = SELECT ... FOR UPDATE в транзакции.
type VaultRepo struct {
	db *sql.DB
}

var _ engine.Store = (*VaultRepo)(nil)

func NewVaultRepo(db *sql.DB) *VaultRepo {
	return &VaultRepo{db: db}
}

func (r *VaultRepo) CreateVault(ctx context.Context, v *domain.Vault, p *domain.Policy) error {
	targets, err := json.Marshal(p.AllowedTargets)
	if err != nil {
		return fmt.Errorf("postgres: encode targets: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback() // После Commit это no-op

	_, err = tx.ExecContext(ctx, `INSERT INTO vaults (`+vaultColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		v.ID, v.Owner, v.Authority, v.PolicyID, numeric(v.Balance), numeric(v.DailySpent), v.LastResetAt,
		int64(v.PendingCount), numeric(v.ActionNonce), v.IsActive, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVaultExists
		}
		return fmt.Errorf("postgres: insert vault: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO policies (`+policyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.VaultID, numeric(p.DailyLimit), numeric(p.LargeTxThreshold), targets,
		p.LargeTxCooldown.Milliseconds(), p.IsActive, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVaultExists
		}
		return fmt.Errorf("postgres: insert policy: %w", err)
	}
	return tx.Commit()
}

func (r *VaultRepo) GetVault(ctx context.Context, vaultID string) (*domain.Vault, error) {
	v, err := scanVault(r.db.QueryRowContext(ctx, `SELECT `+vaultColumns+` FROM vaults WHERE id = $1`, vaultID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrVaultNotFound
	}
	return v, err
}

func (r *VaultRepo) GetPolicyByVault(ctx context.Context, vaultID string) (*domain.Policy, error) {
	p, err := scanPolicy(r.db.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM policies WHERE vault_id = $1`, vaultID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPolicyNotFound
	}
	return p, err
}

// GetAllPolicies холодная загрузка кэша политик при старте
func (r *VaultRepo) GetAllPolicies(ctx context.Context) ([]domain.Policy, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+policyColumns+` FROM policies`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list policies: %w", err)
	}
	defer rows.Close()

	var results []domain.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *p)
	}
	return results, rows.Err()
}

func (r *VaultRepo) GetAction(ctx context.Context, vaultID, actionID string) (*domain.PendingAction, error) {
	return getAction(ctx, r.db, vaultID, actionID)
}

func (r *VaultRepo) ListActions(ctx context.Context, vaultID string, status domain.ActionStatus) ([]domain.PendingAction, error) {
	query := `SELECT ` + actionColumns + ` FROM pending_actions WHERE vault_id = $1`
	args := []any{vaultID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY requested_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list actions: %w", err)
	}
	defer rows.Close()

	var results []domain.PendingAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *a)
	}
	return results, rows.Err()
}

func (r *VaultRepo) FrozenVaults(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM vaults WHERE is_active = FALSE`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list frozen vaults: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WithVaultLock строка хранилища блокируется до конца транзакции, параллельные вызовы ждут
func (r *VaultRepo) WithVaultLock(ctx context.Context, vaultID string, fn func(ctx context.Context, tx engine.VaultTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback() // После Commit это no-op

	v, err := scanVault(tx.QueryRowContext(ctx, `SELECT `+vaultColumns+` FROM vaults WHERE id = $1 FOR UPDATE`, vaultID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrVaultNotFound
		}
		return err
	}

	if err := fn(ctx, &vaultTx{tx: tx, vault: v}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

type vaultTx struct {
	tx    *sql.Tx
	vault *domain.Vault
}

func (t *vaultTx) Vault() *domain.Vault { return t.vault }

func (t *vaultTx) Action(ctx context.Context, actionID string) (*domain.PendingAction, error) {
	return getAction(ctx, t.tx, t.vault.ID, actionID)
}

func (t *vaultTx) SaveVault(ctx context.Context, v *domain.Vault) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE vaults SET
		balance = $2, daily_spent = $3, last_reset_at = $4, pending_count = $5,
		action_nonce = $6, is_active = $7, updated_at = $8
		WHERE id = $1`,
		v.ID, numeric(v.Balance), numeric(v.DailySpent), v.LastResetAt, int64(v.PendingCount),
		numeric(v.ActionNonce), v.IsActive, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save vault: %w", err)
	}
	return nil
}

func (t *vaultTx) InsertAction(ctx context.Context, a *domain.PendingAction) error {
	if a.VaultID != t.vault.ID {
		return domain.ErrActionNotFound
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO pending_actions (`+actionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.VaultID, a.Requester, string(a.Kind), numeric(a.Amount), a.Target, a.Description,
		nullBytes(a.Payload), string(a.Status), a.RequestedAt, a.ExpiresAt,
		nullString(a.Approver), nullTime(a.ProcessedAt), nullString(a.FailureReason))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrInvalidTransition
		}
		return fmt.Errorf("postgres: insert action: %w", err)
	}
	return nil
}

// UpdateAction меняются только поля резолва, условия заявки неизменны
func (t *vaultTx) UpdateAction(ctx context.Context, a *domain.PendingAction) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE pending_actions SET
		status = $3, approver = $4, processed_at = $5, failure_reason = $6
		WHERE vault_id = $1 AND id = $2`,
		t.vault.ID, a.ID, string(a.Status), nullString(a.Approver), nullTime(a.ProcessedAt), nullString(a.FailureReason))
	if err != nil {
		return fmt.Errorf("postgres: update action: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrActionNotFound
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getAction(ctx context.Context, q querier, vaultID, actionID string) (*domain.PendingAction, error) {
	a, err := scanAction(q.QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM pending_actions WHERE vault_id = $1 AND id = $2`, vaultID, actionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrActionNotFound
	}
	return a, err
}

func scanVault(row rowScanner) (*domain.Vault, error) {
	var (
		v                     domain.Vault
		balance, spent, nonce u64
		pending               int64
	)
	err := row.Scan(&v.ID, &v.Owner, &v.Authority, &v.PolicyID, &balance, &spent, &v.LastResetAt,
		&pending, &nonce, &v.IsActive, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if pending < 0 || pending > 255 {
		return nil, fmt.Errorf("postgres: pending_count %d out of range", pending)
	}
	v.Balance, v.DailySpent, v.ActionNonce = uint64(balance), uint64(spent), uint64(nonce)
	v.PendingCount = uint8(pending)
	return &v, nil
}

func scanPolicy(row rowScanner) (*domain.Policy, error) {
	var (
		p                domain.Policy
		limit, threshold u64
		targets          []byte
		cooldownMs       int64
	)
	err := row.Scan(&p.ID, &p.VaultID, &limit, &threshold, &targets, &cooldownMs, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(targets, &p.AllowedTargets); err != nil {
		return nil, fmt.Errorf("postgres: decode targets: %w", err)
	}
	p.DailyLimit, p.LargeTxThreshold = uint64(limit), uint64(threshold)
	p.LargeTxCooldown = time.Duration(cooldownMs) * time.Millisecond
	return &p, nil
}

func scanAction(row rowScanner) (*domain.PendingAction, error) {
	var (
		a                       domain.PendingAction
		kind, status            string
		amount                  u64
		payload                 []byte
		approver, failureReason sql.NullString
		processedAt             sql.NullTime
	)
	err := row.Scan(&a.ID, &a.VaultID, &a.Requester, &kind, &amount, &a.Target, &a.Description,
		&payload, &status, &a.RequestedAt, &a.ExpiresAt, &approver, &processedAt, &failureReason)
	if err != nil {
		return nil, err
	}
	a.Kind, a.Status, a.Amount = domain.ActionKind(kind), domain.ActionStatus(status), uint64(amount)
	if len(payload) > 0 {
		a.Payload = json.RawMessage(payload)
	}
	if approver.Valid {
		a.Approver = &approver.String
	}
	if processedAt.Valid {
		a.ProcessedAt = &processedAt.Time
	}
	if failureReason.Valid {
		a.FailureReason = &failureReason.String
	}
	return &a, nil
}
