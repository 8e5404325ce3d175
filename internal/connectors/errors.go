package connectors

import (
	"errors"
	"fmt"
	"time"
)

// ThrottleError коннектор просит подождать (Retry-After). Обертка ретраев берет паузу отсюда.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// ErrTransferRejected коннектор окончательно отказал (неверная цель, нет ликвидности). Повтор бессмысленен.
var ErrTransferRejected = errors.New("transfer rejected by connector")

// IsPermanent ошибки, которые не нужно ретраить
func IsPermanent(err error) bool {
	return errors.Is(err, ErrTransferRejected)
}
