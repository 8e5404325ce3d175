package engine

import (
	"context"

	"github.com/xela07ax/aegis-vault/internal/domain"
)

// Executor внешний примитив перевода: либо целиком успешен, либо целиком нет
type Executor interface {
	Execute(ctx context.Context, t domain.Transfer) error
}

// ExecutorFunc адаптер для функций
type ExecutorFunc func(ctx context.Context, t domain.Transfer) error

func (f ExecutorFunc) Execute(ctx context.Context, t domain.Transfer) error {
	return f(ctx, t)
}
