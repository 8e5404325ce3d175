package domain

import "errors"

// Ошибки валидации входных данных
var (
	ErrInvalidAmount              = errors.New("amount must be greater than zero")
	ErrInvalidDailyLimit          = errors.New("daily spend limit must be greater than zero")
	ErrInvalidThreshold           = errors.New("large transaction threshold must be greater than zero")
	ErrThresholdExceedsDailyLimit = errors.New("large transaction threshold cannot exceed daily limit")
	ErrTooManyTargets             = errors.New("allowed targets list must contain 1..10 entries")
	ErrDescriptionTooLong         = errors.New("description too long")
	ErrPayloadTooLarge            = errors.New("action payload too large")
	ErrInvalidActionKind          = errors.New("unknown action kind")
	ErrInvalidAddress             = errors.New("invalid address")
	ErrInvalidCooldown            = errors.New("large transaction cooldown must be shorter than pending action timeout")
	ErrTargetNotAllowed           = errors.New("target is not in the allowed targets list")
	ErrInvalidStatus              = errors.New("unknown action status")
)

// Нарушения политики
var (
	ErrDailyLimitExceeded = errors.New("daily spending limit exceeded")
	ErrApprovalRequired   = errors.New("amount exceeds large transaction threshold: owner approval required")
)

// Временные нарушения (State Machine)
var (
	ErrActionNotPending   = errors.New("action is not in pending status")
	ErrActionExpired      = errors.New("action has expired")
	ErrActionNotExpired   = errors.New("action is not yet expired")
	ErrCooldownNotElapsed = errors.New("cooldown for large transaction has not elapsed")
	ErrInvalidTransition  = errors.New("invalid action status transition")
)

// Права и состояние хранилища
var (
	ErrVaultOwnerMismatch      = errors.New("caller is not the vault owner")
	ErrUnauthorizedAuthority   = errors.New("caller is not the vault authority")
	ErrVaultNotActive          = errors.New("vault is not active")
	ErrPolicyNotActive         = errors.New("policy is not active")
	ErrPendingActionsExhausted = errors.New("exceeded maximum pending actions")
	ErrInsufficientBalance     = errors.New("insufficient balance in vault")
	ErrVaultExists             = errors.New("vault already exists for owner")
	ErrVaultNotFound           = errors.New("vault not found")
	ErrPolicyNotFound          = errors.New("policy not found")
	ErrActionNotFound          = errors.New("pending action not found")
)

var (
	ErrArithmeticOverflow = errors.New("arithmetic overflow occurred")
	ErrExecutionFailed    = errors.New("transfer execution failed")
	// ErrExecutorUnavailable коннектор не вызывался ни разу. Заявка остается PENDING.
	ErrExecutorUnavailable = errors.New("transfer executor unavailable")
)
