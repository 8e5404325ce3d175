package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/engine"
)

const (
	vaultID = "0xAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaa"
	owner   = "0x1111111111111111111111111111111111111111"
	agent   = "0x2222222222222222222222222222222222222222"
	target  = "0x3333333333333333333333333333333333333333"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*VaultRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewVaultRepo(db), mock
}

func vaultRows(balance string, active bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner", "authority", "policy_id", "balance", "daily_spent",
		"last_reset_at", "pending_count", "action_nonce", "is_active", "created_at", "updated_at"}).
		AddRow(vaultID, owner, agent, "0xpolicy", balance, "300", t0, int64(2), "7", active, t0, t0)
}

func TestVaultRepo_GetVault(t *testing.T) {
	repo, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner, authority")).
		WithArgs(vaultID).
		WillReturnRows(vaultRows("18446744073709551615", true))

	v, err := repo.GetVault(ctx, vaultID)
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), v.Balance, "full uint64 range survives NUMERIC")
	assert.EqualValues(t, 300, v.DailySpent)
	assert.EqualValues(t, 2, v.PendingCount)
	assert.EqualValues(t, 7, v.ActionNonce)
	assert.True(t, v.IsActive)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner, authority")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.GetVault(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrVaultNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVaultRepo_CreateVault(t *testing.T) {
	repo, mock := newMock(t)
	ctx := context.Background()
	v := &domain.Vault{ID: vaultID, Owner: owner, Authority: agent, PolicyID: "0xpolicy", IsActive: true,
		LastResetAt: t0, CreatedAt: t0, UpdatedAt: t0}
	p := &domain.Policy{ID: "0xpolicy", VaultID: vaultID, DailyLimit: 1000, LargeTxThreshold: 500,
		AllowedTargets: []string{target}, LargeTxCooldown: time.Minute, IsActive: true, CreatedAt: t0}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vaults")).
		WithArgs(vaultID, owner, agent, "0xpolicy", "0", "0", t0, int64(0), "0", true, t0, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO policies")).
		WithArgs("0xpolicy", vaultID, "1000", "500", []byte(`["`+target+`"]`), int64(60000), true, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, repo.CreateVault(ctx, v, p))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vaults")).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()
	assert.ErrorIs(t, repo.CreateVault(ctx, v, p), domain.ErrVaultExists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVaultRepo_GetPolicyByVault(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM policies WHERE vault_id = $1")).
		WithArgs(vaultID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "vault_id", "daily_limit", "large_tx_threshold",
			"allowed_targets", "large_tx_cooldown_ms", "is_active", "created_at"}).
			AddRow("0xpolicy", vaultID, "1000", "500", []byte(`["`+target+`"]`), int64(90000), true, t0))

	p, err := repo.GetPolicyByVault(context.Background(), vaultID)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, p.DailyLimit)
	assert.EqualValues(t, 500, p.LargeTxThreshold)
	assert.Equal(t, []string{target}, p.AllowedTargets)
	assert.Equal(t, 90*time.Second, p.LargeTxCooldown)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVaultRepo_WithVaultLock(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FROM vaults WHERE id = $1 FOR UPDATE")).
			WithArgs(vaultID).
			WillReturnRows(vaultRows("1000", true))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE vaults SET")).
			WithArgs(vaultID, "1500", "300", t0, int64(2), "7", true, t0).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.WithVaultLock(ctx, vaultID, func(ctx context.Context, tx engine.VaultTx) error {
			v := tx.Vault()
			v.Balance += 500
			return tx.SaveVault(ctx, v)
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on error", func(t *testing.T) {
		repo, mock := newMock(t)
		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WithArgs(vaultID).
			WillReturnRows(vaultRows("1000", true))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE vaults SET")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		err := repo.WithVaultLock(ctx, vaultID, func(ctx context.Context, tx engine.VaultTx) error {
			require.NoError(t, tx.SaveVault(ctx, tx.Vault()))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing vault", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		err := repo.WithVaultLock(ctx, "missing", func(context.Context, engine.VaultTx) error {
			t.Fatal("fn must not run")
			return nil
		})
		assert.ErrorIs(t, err, domain.ErrVaultNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestVaultTx_Actions(t *testing.T) {
	repo, mock := newMock(t)
	ctx := context.Background()
	a := &domain.PendingAction{
		ID: "0xaction", VaultID: vaultID, Requester: agent, Kind: domain.KindTransfer, Amount: 600,
		Target: target, Status: domain.StatusPending, RequestedAt: t0, ExpiresAt: t0.Add(domain.PendingActionTimeout),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs(vaultID).WillReturnRows(vaultRows("1000", true))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pending_actions")).
		WithArgs("0xaction", vaultID, agent, "TRANSFER", "600", target, "", nil, "PENDING",
			t0, t0.Add(domain.PendingActionTimeout), nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pending_actions")).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectExec(regexp.QuoteMeta("UPDATE pending_actions SET")).
		WithArgs(vaultID, "0xghost", "REJECTED", nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.WithVaultLock(ctx, vaultID, func(ctx context.Context, tx engine.VaultTx) error {
		require.NoError(t, tx.InsertAction(ctx, a))
		assert.ErrorIs(t, tx.InsertAction(ctx, a), domain.ErrInvalidTransition, "duplicate id")

		foreign := *a
		foreign.VaultID = "0xother"
		assert.ErrorIs(t, tx.InsertAction(ctx, &foreign), domain.ErrActionNotFound)

		ghost := domain.PendingAction{ID: "0xghost", VaultID: vaultID, Status: domain.StatusRejected}
		return tx.UpdateAction(ctx, &ghost)
	})
	assert.ErrorIs(t, err, domain.ErrActionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVaultRepo_ListActions(t *testing.T) {
	repo, mock := newMock(t)
	cols := []string{"id", "vault_id", "requester", "kind", "amount", "target", "description", "payload",
		"status", "requested_at", "expires_at", "approver", "processed_at", "failure_reason"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM pending_actions WHERE vault_id = $1 AND status = $2 ORDER BY requested_at")).
		WithArgs(vaultID, "FAILED").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("0xaction", vaultID, agent, "SWAP", "600", target, "rebalance", []byte(`{"pool":1}`),
				"FAILED", t0, t0.Add(time.Hour), owner, t0.Add(time.Minute), "connector down"))

	list, err := repo.ListActions(context.Background(), vaultID, domain.StatusFailed)
	require.NoError(t, err)
	require.Len(t, list, 1)
	a := list[0]
	assert.Equal(t, domain.KindSwap, a.Kind)
	assert.EqualValues(t, 600, a.Amount)
	assert.JSONEq(t, `{"pool":1}`, string(a.Payload))
	require.NotNil(t, a.Approver)
	assert.Equal(t, owner, *a.Approver)
	require.NotNil(t, a.ProcessedAt)
	assert.Equal(t, t0.Add(time.Minute), *a.ProcessedAt)
	require.NotNil(t, a.FailureReason)

	mock.ExpectQuery(regexp.QuoteMeta("FROM pending_actions WHERE vault_id = $1 ORDER BY requested_at")).
		WithArgs(vaultID).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("0xaction", vaultID, agent, "TRANSFER", "600", target, "", nil,
				"PENDING", t0, t0.Add(time.Hour), nil, nil, nil))

	list, err = repo.ListActions(context.Background(), vaultID, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Approver)
	assert.Nil(t, list[0].ProcessedAt)
	assert.Nil(t, list[0].Payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVaultRepo_FrozenVaults(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM vaults WHERE is_active = FALSE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("v1").AddRow("v2"))

	ids, err := repo.FrozenVaults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, ids)
}

func TestU64_Scan(t *testing.T) {
	var u u64
	require.NoError(t, u.Scan("42"))
	assert.EqualValues(t, 42, u)
	require.NoError(t, u.Scan([]byte("18446744073709551615")))
	assert.EqualValues(t, uint64(18446744073709551615), u)
	require.NoError(t, u.Scan(int64(5)))
	assert.EqualValues(t, 5, u)
	require.NoError(t, u.Scan(nil))
	assert.EqualValues(t, 0, u)

	assert.Error(t, u.Scan(int64(-1)))
	assert.Error(t, u.Scan("1.5"))
	assert.Error(t, u.Scan(3.14))
}
