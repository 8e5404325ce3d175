package domain_test

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xela07ax/aegis-vault/internal/domain"
)

func TestPolicy_Check(t *testing.T) {
	p := &domain.Policy{DailyLimit: 1000, LargeTxThreshold: 500}

	tests := []struct {
		name   string
		amount uint64
		spent  uint64
		want   domain.Decision
	}{
		{"small within limit", 300, 0, domain.DecisionAllow},
		{"exactly threshold executes", 500, 0, domain.DecisionAllow},
		{"above threshold defers", 501, 0, domain.DecisionDefer},
		{"exactly daily limit", 400, 600, domain.DecisionAllow},
		{"over daily limit", 300, 800, domain.DecisionReject},
		{"large and over limit rejects", 700, 400, domain.DecisionReject},
		{"overflow rejects", 10, math.MaxUint64, domain.DecisionReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Check(tt.amount, tt.spent))
		})
	}

	var nilPolicy *domain.Policy
	assert.Equal(t, domain.DecisionReject, nilPolicy.Check(1, 0))
}

func TestPolicy_IsTargetAllowed(t *testing.T) {
	p := &domain.Policy{AllowedTargets: []string{"0xAAA", "0xBBB"}}
	assert.True(t, p.IsTargetAllowed("0xBBB"))
	assert.False(t, p.IsTargetAllowed("0xCCC"))

	empty := &domain.Policy{}
	assert.False(t, empty.IsTargetAllowed("0xAAA"))
}

func TestPolicy_Validate(t *testing.T) {
	targets := []string{"0xAAA"}
	tooMany := make([]string, domain.MaxAllowedTargets+1)

	tests := []struct {
		name string
		p    domain.Policy
		err  error
	}{
		{"valid", domain.Policy{DailyLimit: 1000, LargeTxThreshold: 500, AllowedTargets: targets}, nil},
		{"threshold equals limit", domain.Policy{DailyLimit: 1000, LargeTxThreshold: 1000, AllowedTargets: targets}, nil},
		{"zero limit", domain.Policy{DailyLimit: 0, LargeTxThreshold: 1, AllowedTargets: targets}, domain.ErrInvalidDailyLimit},
		{"zero threshold", domain.Policy{DailyLimit: 10, AllowedTargets: targets}, domain.ErrInvalidThreshold},
		{"threshold above limit", domain.Policy{DailyLimit: 10, LargeTxThreshold: 11, AllowedTargets: targets}, domain.ErrThresholdExceedsDailyLimit},
		{"no targets", domain.Policy{DailyLimit: 10, LargeTxThreshold: 5}, domain.ErrTooManyTargets},
		{"too many targets", domain.Policy{DailyLimit: 10, LargeTxThreshold: 5, AllowedTargets: tooMany}, domain.ErrTooManyTargets},
		{"cooldown not shorter than timeout", domain.Policy{DailyLimit: 10, LargeTxThreshold: 5, AllowedTargets: targets, LargeTxCooldown: domain.PendingActionTimeout}, domain.ErrInvalidCooldown},
		{"negative cooldown", domain.Policy{DailyLimit: 10, LargeTxThreshold: 5, AllowedTargets: targets, LargeTxCooldown: -time.Second}, domain.ErrInvalidCooldown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want domain.ErrorClass
	}{
		{nil, domain.ClassNone},
		{domain.ErrTargetNotAllowed, domain.ClassValidation},
		{fmt.Errorf("engine: submit: %w", domain.ErrDailyLimitExceeded), domain.ClassPolicy},
		{domain.ErrActionNotPending, domain.ClassTemporal},
		{domain.ErrVaultOwnerMismatch, domain.ClassAuth},
		{domain.ErrActionNotFound, domain.ClassNotFound},
		{domain.ErrPendingActionsExhausted, domain.ClassState},
		{domain.ErrArithmeticOverflow, domain.ClassArithmetic},
		{fmt.Errorf("%w: timeout", domain.ErrExecutionFailed), domain.ClassExecution},
		{fmt.Errorf("%w: breaker open", domain.ErrExecutorUnavailable), domain.ClassUnavailable},
		{errors.New("connection reset"), domain.ClassInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, domain.Classify(tc.err), "%v", tc.err)
	}
}
