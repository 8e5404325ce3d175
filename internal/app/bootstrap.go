// Package app сборка общих зависимостей шлюза и консоли из конфигурации.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xela07ax/aegis-vault/internal/audit"
	"github.com/xela07ax/aegis-vault/internal/connectors"
	"github.com/xela07ax/aegis-vault/internal/engine"
	"github.com/xela07ax/aegis-vault/internal/infra"
	"github.com/xela07ax/aegis-vault/internal/infra/auth"
	"github.com/xela07ax/aegis-vault/internal/policy"
	"github.com/xela07ax/aegis-vault/internal/repository/memory"
	"github.com/xela07ax/aegis-vault/internal/repository/postgres"
)

// AuditStore журнал: пишет Trail, читает консоль
type AuditStore interface {
	audit.StorageInterface
	FetchLogs(ctx context.Context, vaultID string, limit int) ([]audit.AuditEvent, error)
}

// Runtime собранное ядро. Close освобождает ресурсы в обратном порядке.
type Runtime struct {
	Config    *infra.Config
	Logger    *zap.Logger
	Store     engine.Store
	AuditLog  AuditStore
	Trail     *audit.Trail
	Policies  *policy.Cache
	Redis     *redis.Client // nil, если Redis не настроен
	Registry  *prometheus.Registry
	Metrics   *engine.Metrics
	Executor  *engine.ReliabilityWrapper
	Engine    *engine.Engine
	Validator auth.TokenValidator

	closers []func()
}

// Bootstrap порядок как в шлюзе: ресурсы -> журнал -> исполнитель -> ядро
func Bootstrap(ctx context.Context, cfg *infra.Config, logger *zap.Logger) (_ *Runtime, err error) {
	rt := &Runtime{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("auth public key: %w", err)
	}
	rt.Validator = auth.NewBaseValidator(pubKey)

	// 1. Хранилище
	if err := rt.openStore(ctx); err != nil {
		return nil, err
	}

	// 2. Redis (Pub/Sub событий и freeze-кэш)
	if cfg.Redis.Addr != "" {
		rt.Redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		rt.closers = append(rt.closers, func() { _ = rt.Redis.Close() })
		if err := rt.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
	}

	// 3. Журнал аудита пачками
	rt.Metrics = engine.NewMetrics(rt.Registry)
	rt.Trail = audit.NewTrail(rt.AuditLog, logger, audit.TrailConfig{
		BufferSize:    cfg.Engine.AuditBufferSize,
		BatchSize:     cfg.Engine.AuditBatchSize,
		FlushInterval: cfg.Engine.AuditFlushInterval,
	})
	rt.Trail.Start()
	rt.closers = append(rt.closers, rt.Trail.Stop)

	// 4. Исполнитель + надежность (Retries, Circuit Breaker, Rate Limit)
	next, err := rt.openExecutor()
	if err != nil {
		return nil, err
	}
	rt.Executor = engine.NewReliabilityWrapper(next, reliabilityConfig(cfg.Connector), rt.Metrics, logger)

	// 5. Ядро
	rt.Policies = policy.NewCache(rt.Store, logger)
	if err := rt.Policies.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("policy cache warmup: %w", err)
	}

	var notifier engine.Notifier = engine.NopNotifier{}
	if rt.Redis != nil {
		notifier = engine.NewRedisNotifier(rt.Redis)
	}
	rt.Engine = engine.NewEngine(rt.Store, rt.Policies, rt.Executor, logger).
		WithNotifier(notifier).
		WithAuditor(rt.Trail).
		WithMetrics(rt.Metrics).
		WithMaxPending(cfg.Engine.MaxPending)

	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context) error {
	if rt.Config.Database.URL == "" {
		rt.Logger.Warn("database.url is empty, using in-memory store (state is lost on restart)")
		rt.Store = memory.NewStore()
		rt.AuditLog = memory.NewAuditLog()
		return nil
	}

	db, err := postgres.Open(ctx, rt.Config.Database.URL)
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, func() { _ = db.Close() })

	if rt.Config.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
	}
	rt.Store = postgres.NewVaultRepo(db)
	rt.AuditLog = postgres.NewAuditRepo(db)
	return nil
}

func (rt *Runtime) openExecutor() (engine.Executor, error) {
	c := rt.Config.Connector
	if c.GRPCAddr == "" {
		rt.Logger.Warn("connector.grpc_addr is empty, transfers go to the simulator")
		return connectors.NewSimulatedExecutor(c.SimMinLatency, c.SimMaxLatency), nil
	}

	conn, err := grpc.NewClient(c.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to transfer connector: %w", err)
	}
	rt.closers = append(rt.closers, func() { _ = conn.Close() })
	return connectors.NewGRPCAdapter(conn, c.Timeout), nil
}

func reliabilityConfig(c infra.ConnectorConfig) engine.ReliabilityConfig {
	rc := engine.DefaultReliabilityConfig()
	if c.CBMaxRequests > 0 {
		rc.MaxRequests = c.CBMaxRequests
	}
	if c.CBInterval > 0 {
		rc.Interval = c.CBInterval
	}
	if c.CBTimeout > 0 {
		rc.Timeout = c.CBTimeout
	}
	if c.CBTripFailures > 0 {
		rc.TripFailures = c.CBTripFailures
	}
	if c.RateLimit > 0 {
		rc.RateLimit = c.RateLimit
	}
	if c.RateBurst > 0 {
		rc.Burst = c.RateBurst
	}
	if c.Attempts > 0 {
		rc.Attempts = c.Attempts
	}
	if c.Timeout > 0 {
		rc.AttemptTimeout = c.Timeout
	}
	return rc
}

// Close идемпотентен
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// ErrNoSigningKey выпуск dev-токенов без приватного ключа невозможен
var ErrNoSigningKey = errors.New("auth private key is not configured")

// Signer dev-выпуск токенов. В проде токены выпускает внешний identity-слой.
func Signer(cfg infra.AuthConfig) (*auth.Signer, error) {
	if len(cfg.PrivateKey) == 0 {
		return nil, ErrNoSigningKey
	}
	key, err := auth.ParseRSAPrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	return auth.NewSigner(key, cfg.TokenTTL), nil
}

var _ AuditStore = (*postgres.AuditRepo)(nil)
var _ AuditStore = (*memory.AuditLog)(nil)
