package domain

import "errors"

// ErrorClass группа ошибки: транспорт выбирает код ответа, метрики считают отказы по типам
type ErrorClass string

const (
	ClassNone        ErrorClass = ""
	ClassValidation  ErrorClass = "validation"
	ClassPolicy      ErrorClass = "policy"
	ClassTemporal    ErrorClass = "temporal"
	ClassAuth        ErrorClass = "authorization"
	ClassNotFound    ErrorClass = "not_found"
	ClassState       ErrorClass = "state"
	ClassArithmetic  ErrorClass = "arithmetic"
	ClassExecution   ErrorClass = "execution"
	ClassUnavailable ErrorClass = "unavailable"
	ClassInternal    ErrorClass = "internal"
)

var errorClasses = []struct {
	class ErrorClass
	errs  []error
}{
	{ClassValidation, []error{
		ErrInvalidAmount, ErrInvalidDailyLimit, ErrInvalidThreshold, ErrThresholdExceedsDailyLimit,
		ErrTooManyTargets, ErrDescriptionTooLong, ErrPayloadTooLarge, ErrInvalidActionKind,
		ErrInvalidAddress, ErrInvalidCooldown, ErrTargetNotAllowed, ErrInvalidStatus,
	}},
	{ClassPolicy, []error{ErrDailyLimitExceeded, ErrApprovalRequired}},
	{ClassTemporal, []error{
		ErrActionNotPending, ErrActionExpired, ErrActionNotExpired, ErrCooldownNotElapsed, ErrInvalidTransition,
	}},
	{ClassAuth, []error{ErrVaultOwnerMismatch, ErrUnauthorizedAuthority}},
	{ClassNotFound, []error{ErrVaultNotFound, ErrPolicyNotFound, ErrActionNotFound}},
	{ClassState, []error{
		ErrVaultNotActive, ErrPolicyNotActive, ErrPendingActionsExhausted, ErrInsufficientBalance, ErrVaultExists,
	}},
	{ClassArithmetic, []error{ErrArithmeticOverflow}},
	{ClassExecution, []error{ErrExecutionFailed}},
	{ClassUnavailable, []error{ErrExecutorUnavailable}},
}

// Classify сопоставляет ошибку (в том числе обернутую) с ее классом
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	for _, group := range errorClasses {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.class
			}
		}
	}
	return ClassInternal
}
