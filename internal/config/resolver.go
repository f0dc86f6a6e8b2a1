// Package config implements the Config Resolver (spec.md C1): a
// process-scoped configuration snapshot selected by an environment token
// (dev|uat|prod), layered from a YAML file, environment variables, and an
// explicit override, grounded on ipiton-alert-history-service's
// viper-based LoadConfig/setDefaults shape.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/refdata/validate-service/internal/domain"
	"github.com/spf13/viper"
)

// envVar is the environment variable consulted when no explicit
// environment token is passed to Resolve.
const envVar = "VALIDATE_ENV"

// Resolve selects an environment token (explicit arg -> VALIDATE_ENV ->
// "dev"), layers a config file at <configDir>/<env>.yaml (if present) and
// environment variables on top of the tier-appropriate defaults, and
// returns the fully-resolved snapshot. An unrecognized token fails fast.
func Resolve(explicitEnv, configDir string) (*domain.Config, error) {
	env := resolveToken(explicitEnv)

	var cfg *domain.Config
	switch domain.Environment(env) {
	case domain.EnvDev:
		cfg = domain.DefaultConfig()
	case domain.EnvUAT, domain.EnvProd:
		cfg = domain.ProConfig()
		cfg.Environment = domain.Environment(env)
	default:
		return nil, fmt.Errorf("invalid environment %q: must be one of dev, uat, prod", env)
	}

	v := viper.New()
	v.SetConfigName(env)
	v.SetConfigType("yaml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	v.SetEnvPrefix("VALIDATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config file for environment %q: %w", env, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config for environment %q: %w", env, err)
	}

	return cfg, nil
}

// resolveToken picks the environment token: explicit argument (typically
// a CLI flag) first, then VALIDATE_ENV, then "dev".
func resolveToken(explicit string) string {
	if explicit != "" {
		return strings.ToLower(explicit)
	}
	if fromEnv := os.Getenv(envVar); fromEnv != "" {
		return strings.ToLower(fromEnv)
	}
	return string(domain.EnvDev)
}

// applyDefaults seeds viper with the tier-appropriate Config's values so
// that a missing file or missing env var never zeroes out a field the
// defaults already populated.
func applyDefaults(v *viper.Viper, cfg *domain.Config) {
	v.SetDefault("environment", string(cfg.Environment))
	v.SetDefault("tier", string(cfg.Tier))
	v.SetDefault("rulesdir", cfg.RulesDir)
	v.SetDefault("datasource", string(cfg.DataSource))
	v.SetDefault("datadir", cfg.DataDir)

	v.SetDefault("repository.driver", cfg.Repository.Driver)
	v.SetDefault("repository.dsn", cfg.Repository.DSN)
	v.SetDefault("repository.maxopenconns", cfg.Repository.MaxOpenConns)
	v.SetDefault("repository.maxidleconns", cfg.Repository.MaxIdleConns)
	v.SetDefault("repository.connmaxlifetime", cfg.Repository.ConnMaxLifetime)

	v.SetDefault("cache.l1ttl", cfg.Cache.L1TTL)
	v.SetDefault("cache.l2ttl", cfg.Cache.L2TTL)
	v.SetDefault("cache.l1capacity", cfg.Cache.L1Capacity)
	v.SetDefault("cache.redisaddr", cfg.Cache.RedisAddr)

	v.SetDefault("eventbus.backend", cfg.EventBus.Backend)
	v.SetDefault("eventbus.natsurl", cfg.EventBus.NatsURL)

	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.readtimeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.writetimeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdowntimeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.ratelimitrps", cfg.Server.RateLimitRPS)
	v.SetDefault("server.ratelimitburst", cfg.Server.RateLimitBurst)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.filepath", cfg.Logging.FilePath)
	v.SetDefault("logging.maxsizemb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.maxbackups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.maxagedays", cfg.Logging.MaxAgeDays)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.servicename", cfg.Tracing.ServiceName)

	v.SetDefault("batch.maxworkersperregion", cfg.Batch.MaxWorkersPerRegion)
	v.SetDefault("batch.attempttimeout", cfg.Batch.AttemptTimeout)
	v.SetDefault("batch.maxretries", cfg.Batch.MaxRetries)
	v.SetDefault("batch.basebackoff", cfg.Batch.BaseBackoff)
	v.SetDefault("batch.maxbackoff", cfg.Batch.MaxBackoff)
	v.SetDefault("batch.apibaseurl", cfg.Batch.APIBaseURL)
}
