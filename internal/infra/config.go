package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config корневая структура конфигурации шлюза и консоли
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Connector ConnectorConfig `mapstructure:"connector"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig HTTP-сервер консоли владельца
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GatewayConfig порты шлюза агентов
type GatewayConfig struct {
	Host        string `mapstructure:"host"`
	HTTPPort    int    `mapstructure:"http_port"`
	GRPCPort    int    `mapstructure:"grpc_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

func (c GatewayConfig) HTTPAddr() string    { return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort) }
func (c GatewayConfig) GRPCAddr() string    { return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort) }
func (c GatewayConfig) MetricsAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort) }

// DatabaseConfig подключение к PostgreSQL. Пустой URL = in-memory хранилище (dev).
type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

// RedisConfig Pub/Sub событий и кэш замороженных хранилищ. Пустой Addr отключает Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig пути к RSA ключам. Приватный ключ нужен только для выпуска dev-токенов.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	PublicKey      []byte
	PrivateKey     []byte
}

// EngineConfig настройки движка подтверждений и журнала
type EngineConfig struct {
	MaxPending         uint8         `mapstructure:"max_pending"`
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditBatchSize     int           `mapstructure:"audit_batch_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`
}

// ConnectorConfig исполнитель переводов. Пустой GRPCAddr = симулятор.
type ConnectorConfig struct {
	GRPCAddr string        `mapstructure:"grpc_addr"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// Circuit Breaker
	CBMaxRequests  uint32        `mapstructure:"cb_max_requests"`
	CBInterval     time.Duration `mapstructure:"cb_interval"`
	CBTimeout      time.Duration `mapstructure:"cb_timeout"`
	CBTripFailures uint32        `mapstructure:"cb_trip_failures"`

	RateLimit float64 `mapstructure:"rate_limit"` // Запросов в секунду
	RateBurst int     `mapstructure:"rate_burst"`
	Attempts  uint    `mapstructure:"attempts"`

	// Задержка симулятора
	SimMinLatency time.Duration `mapstructure:"sim_min_latency"`
	SimMaxLatency time.Duration `mapstructure:"sim_max_latency"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	OutputFile  string `mapstructure:"output_file"` // Пусто = stdout
}

// LoadConfig объединяет значения из файла, ENV и дефолтов
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: GATEWAY_HTTP_PORT=9000 перекроет gateway.http_port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Файла нет: работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. PEM-ключ берется из ENV (Docker/K8s) или из файла по пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ловит конфигурации, с которыми движок нарушил бы свои инварианты
func (c *Config) Validate() error {
	if c.Engine.MaxPending == 0 {
		return errors.New("config: engine.max_pending must be positive")
	}
	if c.Engine.AuditBufferSize <= 0 || c.Engine.AuditBatchSize <= 0 {
		return errors.New("config: audit buffer and batch sizes must be positive")
	}
	if c.Connector.SimMaxLatency < c.Connector.SimMinLatency {
		return errors.New("config: connector.sim_max_latency is below sim_min_latency")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("gateway.http_port", 8080)
	v.SetDefault("gateway.grpc_port", 9090)
	v.SetDefault("gateway.metrics_port", 2112)

	v.SetDefault("database.migrate", true)
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("engine.max_pending", 32)
	v.SetDefault("engine.audit_buffer_size", 1000)
	v.SetDefault("engine.audit_batch_size", 100)
	v.SetDefault("engine.audit_flush_interval", 1*time.Second)

	v.SetDefault("connector.timeout", 5*time.Second)
	v.SetDefault("connector.cb_max_requests", 1)
	v.SetDefault("connector.cb_interval", time.Minute)
	v.SetDefault("connector.cb_timeout", 30*time.Second)
	v.SetDefault("connector.cb_trip_failures", 5)
	v.SetDefault("connector.rate_limit", 50.0)
	v.SetDefault("connector.rate_burst", 10)
	v.SetDefault("connector.attempts", 3)
	v.SetDefault("connector.sim_min_latency", 5*time.Millisecond)
	v.SetDefault("connector.sim_max_latency", 50*time.Millisecond)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("tracing.service_name", "aegis-vault")
}

// loadKeyResource ключ из ENV имеет приоритет над файлом
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
