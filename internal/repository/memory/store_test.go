package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/aegis-vault/internal/audit"
	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/engine"
	"github.com/xela07ax/aegis-vault/internal/repository/memory"
)

func seed(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.NewStore()
	require.NoError(t, s.CreateVault(context.Background(),
		&domain.Vault{ID: "v1", Owner: "0xO", Authority: "0xA", IsActive: true},
		&domain.Policy{VaultID: "v1", DailyLimit: 100, LargeTxThreshold: 50, AllowedTargets: []string{"0xT"}, IsActive: true},
	))
	return s
}

func TestStore_CreateVaultTwice(t *testing.T) {
	s := seed(t)
	err := s.CreateVault(context.Background(), &domain.Vault{ID: "v1"}, &domain.Policy{VaultID: "v1"})
	assert.ErrorIs(t, err, domain.ErrVaultExists)
}

func TestStore_NotFound(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	_, err := s.GetVault(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrVaultNotFound)
	_, err = s.GetAction(ctx, "v1", "nope")
	assert.ErrorIs(t, err, domain.ErrActionNotFound)
	err = s.WithVaultLock(ctx, "nope", func(context.Context, engine.VaultTx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrVaultNotFound)
}

func TestStore_RollbackOnError(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithVaultLock(ctx, "v1", func(ctx context.Context, tx engine.VaultTx) error {
		v := tx.Vault()
		v.Balance = 999
		require.NoError(t, tx.SaveVault(ctx, v))
		require.NoError(t, tx.InsertAction(ctx, &domain.PendingAction{ID: "a1", VaultID: "v1", Status: domain.StatusPending}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	v, err := s.GetVault(ctx, "v1")
	require.NoError(t, err)
	assert.Zero(t, v.Balance)
	_, err = s.GetAction(ctx, "v1", "a1")
	assert.ErrorIs(t, err, domain.ErrActionNotFound)
}

func TestStore_StagedReadsAndCommit(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	now := time.Now()

	err := s.WithVaultLock(ctx, "v1", func(ctx context.Context, tx engine.VaultTx) error {
		require.NoError(t, tx.InsertAction(ctx, &domain.PendingAction{ID: "a1", VaultID: "v1", Status: domain.StatusPending, RequestedAt: now}))
		a, err := tx.Action(ctx, "a1")
		require.NoError(t, err)
		require.NoError(t, a.Resolve(domain.StatusRejected, "0xO", now))
		require.NoError(t, tx.UpdateAction(ctx, a))
		assert.ErrorIs(t, tx.InsertAction(ctx, a), domain.ErrInvalidTransition, "duplicate id")
		return nil
	})
	require.NoError(t, err)

	a, err := s.GetAction(ctx, "v1", "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, a.Status)
	require.NotNil(t, a.Approver)

	// копия не должна протекать в хранилище
	*a.Approver = "0xEvil"
	again, _ := s.GetAction(ctx, "v1", "a1")
	assert.Equal(t, "0xO", *again.Approver)
}

func TestStore_ListActionsFilterAndOrder(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.WithVaultLock(ctx, "v1", func(ctx context.Context, tx engine.VaultTx) error {
		for i, st := range []domain.ActionStatus{domain.StatusPending, domain.StatusExpired, domain.StatusPending} {
			id := string(rune('c' - i))
			if err := tx.InsertAction(ctx, &domain.PendingAction{ID: id, VaultID: "v1", Status: st, RequestedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
				return err
			}
		}
		return nil
	}))

	all, err := s.ListActions(ctx, "v1", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	pending, err := s.ListActions(ctx, "v1", domain.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestStore_SerializesPerVault(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithVaultLock(ctx, "v1", func(ctx context.Context, tx engine.VaultTx) error {
				v := tx.Vault()
				v.Balance++
				return tx.SaveVault(ctx, v)
			})
		}()
	}
	wg.Wait()

	v, err := s.GetVault(ctx, "v1")
	require.NoError(t, err)
	assert.EqualValues(t, 50, v.Balance, "no lost updates")
}

func TestStore_FrozenVaults(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	require.NoError(t, s.WithVaultLock(ctx, "v1", func(ctx context.Context, tx engine.VaultTx) error {
		v := tx.Vault()
		v.IsActive = false
		return tx.SaveVault(ctx, v)
	}))
	ids, err := s.FrozenVaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, ids)
}

func TestAuditLog_FetchNewestFirst(t *testing.T) {
	l := memory.NewAuditLog()
	require.NoError(t, l.WriteBatch(context.Background(), []audit.AuditEvent{
		{ID: "1", VaultID: "v1"},
		{ID: "2", VaultID: "v2"},
		{ID: "3", VaultID: "v1"},
		{ID: "4", VaultID: "v1"},
	}))

	got, err := l.FetchLogs(context.Background(), "v1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "4", got[0].ID)
	assert.Equal(t, "3", got[1].ID)

	none, err := l.FetchLogs(context.Background(), "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
