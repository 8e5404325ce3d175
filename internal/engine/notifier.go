package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/infra"
)

// ActionEvent уведомление для владельца и внешних подписчиков (UI, боты)
type ActionEvent struct {
	VaultID   string              `json:"vault_id"`
	ActionID  string              `json:"action_id"`
	Status    domain.ActionStatus `json:"status"`
	Amount    uint64              `json:"amount"`
	Target    string              `json:"target"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// Notifier доставка сигналов после коммита. Ошибки доставки не откатывают операцию.
type Notifier interface {
	ActionChanged(ctx context.Context, e ActionEvent) error
	VaultFrozen(ctx context.Context, vaultID string, frozen bool) error
}

type NopNotifier struct{}

func (NopNotifier) ActionChanged(context.Context, ActionEvent) error { return nil }
func (NopNotifier) VaultFrozen(context.Context, string, bool) error  { return nil }

// RedisNotifier публикует события в Pub/Sub и ведет Set выключенных хранилищ (L2 для шлюзов)
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func (n *RedisNotifier) ActionChanged(ctx context.Context, e ActionEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, infra.RedisChanActionEvents, data).Err()
}

// VaultFrozen атомарно (MULTI) обновляет Set и рассылает сигнал слушателям
func (n *RedisNotifier) VaultFrozen(ctx context.Context, vaultID string, frozen bool) error {
	pipe := n.rdb.TxPipeline()
	if frozen {
		pipe.SAdd(ctx, infra.RedisKeyFrozenVaults, vaultID)
	} else {
		pipe.SRem(ctx, infra.RedisKeyFrozenVaults, vaultID)
	}
	pipe.Publish(ctx, infra.RedisChanFreeze, fmt.Sprintf("%s:%t", vaultID, frozen))
	_, err := pipe.Exec(ctx)
	return err
}
