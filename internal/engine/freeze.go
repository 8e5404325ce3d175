package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/aegis-vault/internal/infra"
)

// FreezeManager L1 кэш выключенных хранилищ на шлюзе. Заявки к ним отсекаются до похода в БД.
// Источник правды остается в Store: движок сам проверяет IsActive под блокировкой.
type FreezeManager struct {
	mu     sync.RWMutex
	frozen map[string]struct{}
	rdb    *redis.Client
	logger *zap.Logger
}

func NewFreezeManager(rdb *redis.Client, logger *zap.Logger) *FreezeManager {
	return &FreezeManager{
		frozen: make(map[string]struct{}),
		rdb:    rdb,
		logger: logger.Named("freeze"),
	}
}

// Init загружает текущее состояние из Redis Set (L2). Вызывается при старте и на каждом переподключении.
func (m *FreezeManager) Init(ctx context.Context) error {
	ids, err := m.rdb.SMembers(ctx, infra.RedisKeyFrozenVaults).Result()
	if err != nil {
		return err
	}
	m.Replace(ids)
	return nil
}

// Warmup прогрев L1 и L2 из БД при холодном старте кластера
func (m *FreezeManager) Warmup(ctx context.Context, store Store) error {
	ids, err := store.FrozenVaults(ctx)
	if err != nil {
		return err
	}
	return WarmupState(ctx, m.rdb, m.logger, ids, infra.RedisKeyFrozenVaults, infra.RedisKeyLockFrozen, m.Replace)
}

// Run живучая подписка на сигналы консоли. Блокирует до отмены ctx.
func (m *FreezeManager) Run(ctx context.Context) {
	m.logger.Info("freeze listener started")
	ListenStateResilient(ctx, m.rdb, m.logger, infra.RedisChanFreeze,
		func() error { return m.Init(ctx) },
		m.Apply,
	)
	m.logger.Info("freeze listener stopped")
}

// Replace полностью заменяет L1
func (m *FreezeManager) Replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	m.mu.Lock()
	m.frozen = next
	m.mu.Unlock()
}

// Apply точечное обновление по сигналу
func (m *FreezeManager) Apply(vaultID string, frozen bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if frozen {
		m.frozen[vaultID] = struct{}{}
	} else {
		delete(m.frozen, vaultID)
	}
	m.logger.Info("freeze signal applied", zap.String("vault_id", vaultID), zap.Bool("frozen", frozen))
}

func (m *FreezeManager) IsFrozen(vaultID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.frozen[vaultID]
	return ok
}

// Middleware отсекает заявки к выключенному хранилищу. Ставится на маршрут с {id}.
func (m *FreezeManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vaultID := chi.URLParam(r, "id")
		if vaultID != "" && m.IsFrozen(vaultID) {
			m.logger.Warn("intercepted request to frozen vault",
				zap.String("vault_id", vaultID), zap.String("trace_id", TraceIDFromContext(r.Context())))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "vault_frozen", "reason": "owner_kill_switch"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
