package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "aegis"
)

// Ключи для Sets (состояние)
const (
	RedisKeyFrozenVaults = RedisNamespace + ":vaults:frozen_set"
	RedisKeyLockFrozen   = RedisNamespace + ":lock:warmup:frozen"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanActionEvents жизненный цикл заявок: создание и решение владельца
	RedisChanActionEvents = RedisNamespace + ":actions:events"
	// RedisChanFreeze формат "vault_id:true|false", true означает выключенное хранилище
	RedisChanFreeze = RedisNamespace + ":vaults:freeze-signal"
)

// GetWarmupLockKey Генератор ключей для блокировок (если нужны динамические)
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
