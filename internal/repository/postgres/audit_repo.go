package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/xela07ax/aegis-vault/internal/audit"
)

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Количество колонок в таблице audit_logs
const auditFields = 13

func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	var sb strings.Builder
	vals := make([]any, 0, len(events)*auditFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('(')
		for j := 1; j <= auditFields; j++ {
			if j > 1 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "$%d", i*auditFields+j)
		}
		sb.WriteByte(')')

		vals = append(vals,
			e.ID, e.TraceID, e.VaultID, e.ActionID, e.Actor, e.Op,
			e.Kind, numeric(e.Amount), e.Target, e.Status, e.Error, e.DurationMs, e.Timestamp,
		)
	}

	query := "INSERT INTO audit_logs (id, trace_id, vault_id, action_id, actor, operation, kind, amount, target, status, error, duration_ms, timestamp) VALUES " +
		sb.String()

	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write audit batch: %w", err)
	}
	return nil
}

// FetchLogs новые события первыми
func (r *AuditRepo) FetchLogs(ctx context.Context, vaultID string, limit int) ([]audit.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, trace_id, vault_id, action_id, actor, operation, kind, amount, target, status, error, duration_ms, timestamp
		FROM audit_logs WHERE vault_id = $1 ORDER BY timestamp DESC LIMIT $2`, vaultID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch audit logs: %w", err)
	}
	defer rows.Close()

	out := make([]audit.AuditEvent, 0)
	for rows.Next() {
		var (
			e      audit.AuditEvent
			amount u64
		)
		if err := rows.Scan(&e.ID, &e.TraceID, &e.VaultID, &e.ActionID, &e.Actor, &e.Op,
			&e.Kind, &amount, &e.Target, &e.Status, &e.Error, &e.DurationMs, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Amount = uint64(amount)
		out = append(out, e)
	}
	return out, rows.Err()
}
