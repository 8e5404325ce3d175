package domain_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/aegis-vault/internal/domain"
)

func TestVault_ResetWindowIfStale(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0).UTC()

	tests := []struct {
		name      string
		now       time.Time
		wantReset bool
		wantSpent uint64
	}{
		{"inside window", t0.Add(domain.DailyWindow - time.Second), false, 900},
		{"exactly at window end", t0.Add(domain.DailyWindow), true, 0},
		{"long after", t0.Add(72 * time.Hour), true, 0},
		{"clock behind watermark", t0.Add(-time.Hour), false, 900},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &domain.Vault{DailySpent: 900, LastResetAt: t0}
			assert.Equal(t, tt.wantReset, v.ResetWindowIfStale(tt.now))
			assert.Equal(t, tt.wantSpent, v.DailySpent)
			if tt.wantReset {
				assert.Equal(t, tt.now, v.LastResetAt)
			} else {
				assert.Equal(t, t0, v.LastResetAt)
			}
		})
	}
}

func TestVault_RecordSpendOverflow(t *testing.T) {
	v := &domain.Vault{DailySpent: math.MaxUint64 - 5}

	err := v.RecordSpend(6)
	assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)
	assert.Equal(t, uint64(math.MaxUint64-5), v.DailySpent, "spent must not wrap or change")

	require.NoError(t, v.RecordSpend(5))
	assert.Equal(t, uint64(math.MaxUint64), v.DailySpent)
}

func TestVault_Deposit(t *testing.T) {
	v := &domain.Vault{Balance: 100}

	_, err := v.Deposit(0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	bal, err := v.Deposit(50)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), bal)

	v.Balance = math.MaxUint64
	_, err = v.Deposit(1)
	assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)
	assert.Equal(t, uint64(math.MaxUint64), v.Balance)
}

func TestVault_Debit(t *testing.T) {
	v := &domain.Vault{Balance: 100}
	assert.ErrorIs(t, v.Debit(101), domain.ErrInsufficientBalance)
	assert.Equal(t, uint64(100), v.Balance)

	require.NoError(t, v.Debit(100))
	assert.Zero(t, v.Balance)
}

func TestVault_PendingCounterSaturates(t *testing.T) {
	v := &domain.Vault{}
	v.DecPending()
	assert.Zero(t, v.PendingCount)

	v.PendingCount = math.MaxUint8
	v.IncPending()
	assert.Equal(t, uint8(math.MaxUint8), v.PendingCount)
}

func TestNewVaultSummary_DoesNotMutate(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0).UTC()
	v := &domain.Vault{DailySpent: 900, LastResetAt: t0}
	p := &domain.Policy{DailyLimit: 1000}

	s := domain.NewVaultSummary(v, p, t0.Add(time.Hour))
	assert.Equal(t, uint64(100), s.RemainingDaily)

	s = domain.NewVaultSummary(v, p, t0.Add(domain.DailyWindow))
	assert.Equal(t, uint64(1000), s.RemainingDaily)
	assert.Equal(t, uint64(900), v.DailySpent)
}
