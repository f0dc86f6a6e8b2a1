package domain

import "time"

// Environment is the deployment token the Config Resolver selects between;
// it picks the persistence driver, cache backend, and logging verbosity.
type Environment string

const (
	EnvDev  Environment = "dev"
	EnvUAT  Environment = "uat"
	EnvProd Environment = "prod"
)

// Tier gates optional subsystems: community runs SQLite + in-process
// cache/bus only, pro/enterprise add Redis and NATS.
type Tier string

const (
	TierCommunity  Tier = "community"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// DataSourceBackend selects how the Data Loader reads instrument tables.
type DataSourceBackend string

const (
	DataSourceCSV DataSourceBackend = "csv"
	DataSourceDB  DataSourceBackend = "db"
)

// Config is the fully-resolved configuration the rest of the service
// depends on, produced by internal/config's Resolver from layered
// file/env/flag sources.
type Config struct {
	Environment Environment
	Tier        Tier

	RulesDir    string
	DataSource  DataSourceBackend
	DataDir     string              // CSV backend root
	ExchangeMap map[string][]string // productType -> []exchangeCode
	DB          DBLoaderConfig      // only consulted when DataSource == DataSourceDB

	Repository RepositoryConfig
	Cache      CacheConfig
	EventBus   EventBusConfig

	Server  ServerConfig
	Logging LoggingConfig
	Tracing TracingConfig
	Batch   BatchConfig
}

// DBLoaderConfig configures the Data Loader's relational-DB backend: a
// fixed-size connection pool plus one query template per product type,
// each containing a ":exchange" bind parameter.
type DBLoaderConfig struct {
	Driver         string
	DSN            string
	QueryTemplates map[string]string // productType -> "SELECT ... WHERE exchange = :exchange"
	PoolSize       int
	Overflow       int
	RecycleSeconds int
	PrePing        bool
}

// ServerConfig configures the HTTP API binary.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
}

// LoggingConfig holds logging settings (level and file-rotation limits).
// The Config Resolver fills it in, but neither binary reads it.
type LoggingConfig struct {
	Level      string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// TracingConfig holds otel tracing settings. The Config Resolver fills it
// in, but the HTTP tracing middleware does not read it and always starts
// spans through the global otel tracer.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
}

// BatchConfig configures the batch orchestrator CLI sweep behavior.
type BatchConfig struct {
	MaxWorkersPerRegion int
	AttemptTimeout      time.Duration
	MaxRetries          int
	BaseBackoff         time.Duration
	MaxBackoff          time.Duration
	APIBaseURL          string
}

// DefaultConfig returns community-tier, dev-environment defaults, the
// baseline the Config Resolver layers file/env/flag overrides onto.
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDev,
		Tier:        TierCommunity,
		RulesDir:    "./rules",
		DataSource:  DataSourceCSV,
		DataDir:     "./data",
		Repository: RepositoryConfig{
			Driver:          "sqlite",
			DSN:             "./validate.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 3600,
		},
		Cache: CacheConfig{
			L1TTL:      5 * time.Minute,
			L2TTL:      15 * time.Minute,
			L1Capacity: 256,
		},
		EventBus: EventBusConfig{Backend: "channel"},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitRPS:    20,
			RateLimitBurst:  40,
		},
		Logging: LoggingConfig{Level: "info"},
		Tracing: TracingConfig{Enabled: false, ServiceName: "validate-service"},
		Batch: BatchConfig{
			MaxWorkersPerRegion: 4,
			AttemptTimeout:      120 * time.Second,
			MaxRetries:          3,
			BaseBackoff:         1 * time.Second,
			MaxBackoff:          4 * time.Second,
			APIBaseURL:          "http://localhost:8080",
		},
	}
}

// ProConfig returns pro-tier defaults: Redis L2 cache and NATS event bus
// enabled, Postgres persistence.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Environment = EnvUAT
	cfg.Repository.Driver = "postgres"
	cfg.Cache.RedisAddr = "localhost:6379"
	cfg.EventBus.Backend = "nats"
	cfg.EventBus.NatsURL = "nats://localhost:4222"
	cfg.Tracing.Enabled = true
	return cfg
}
