package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WarmupState прогрев L1 (RAM) и L2 (Redis Set) из списка, прочитанного из БД.
// Redis заливает только один инстанс: тот, кто взял SetNX-блокировку.
func WarmupState(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	ids []string,
	setKey string,
	lockKey string,
	updateL1 func([]string),
) error {
	updateL1(ids)

	ok, err := rdb.SetNX(ctx, lockKey, "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой уже греет кэш
	}

	count, err := rdb.SCard(ctx, setKey).Result()
	if err != nil {
		count = 0
		logger.Warn("could not check Redis set size, proceeding with warm-up",
			zap.String("key", setKey), zap.Error(err))
	}
	if count > 0 || len(ids) == 0 {
		return nil
	}

	logger.Info("redis set is empty, performing warm-up from DB",
		zap.String("key", setKey), zap.Int("count", len(ids)))

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	return rdb.SAdd(ctx, setKey, members...).Err()
}
