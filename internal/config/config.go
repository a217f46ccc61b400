// Package config содержит логику чтения конфигурации сервиса бонусов.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mmeshcher/bonus-payroll/internal/cache"
	"github.com/mmeshcher/bonus-payroll/internal/model"
	"github.com/mmeshcher/bonus-payroll/internal/service"
)

// Config содержит параметры конфигурации сервиса бонусов.
type Config struct {
	RunAddress           string `env:"RUN_ADDRESS"`
	DatabaseURI          string `env:"DATABASE_URI"`
	PayrollSystemAddress string `env:"PAYROLL_SYSTEM_ADDRESS"`
	RedisAddress         string `env:"REDIS_ADDRESS"`
	AMQPURL              string `env:"AMQP_URL"`
	BatchMode            string `env:"BATCH_MODE"`
	GenerationSchedule   string `env:"GENERATION_SCHEDULE"`
	ActorSecret          string `env:"ACTOR_SECRET"`

	RequireActor     bool     `env:"REQUIRE_ACTOR" envDefault:"false"`
	SchedulerEnabled bool     `env:"SCHEDULER_ENABLED" envDefault:"true"`
	Timezone         string   `env:"TIMEZONE" envDefault:"UTC"`
	CORSOrigins      []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	CachePrefix    string        `env:"CACHE_PREFIX" envDefault:"bonusd:cache"`
	CacheTTL       time.Duration `env:"CACHE_TTL" envDefault:"1h"`
	EventsExchange string        `env:"EVENTS_EXCHANGE" envDefault:"bonus_events"`

	BonusStaleTime      time.Duration `env:"CACHE_BONUS_STALE_TIME" envDefault:"30s"`
	PayrollStaleTime    time.Duration `env:"CACHE_PAYROLL_STALE_TIME" envDefault:"5m"`
	ComparisonStaleTime time.Duration `env:"CACHE_COMPARISON_STALE_TIME" envDefault:"1m"`
	SimulationStaleTime time.Duration `env:"CACHE_SIMULATION_STALE_TIME" envDefault:"30s"`

	location *time.Location
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// .env необязателен; уже заданные переменные окружения он не перезаписывает.
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPayrollAddress := cfg.PayrollSystemAddress
	envRedisAddress := cfg.RedisAddress
	envAMQPURL := cfg.AMQPURL
	envBatchMode := cfg.BatchMode
	envSchedule := cfg.GenerationSchedule
	envActorSecret := cfg.ActorSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PayrollSystemAddress, "r", "", "payroll system address")
	flag.StringVar(&cfg.RedisAddress, "c", "", "redis address for the shared query cache")
	flag.StringVar(&cfg.AMQPURL, "q", "", "AMQP URL for bonus lifecycle events")
	flag.StringVar(&cfg.BatchMode, "b", string(model.BatchModeAtomic), "batch mode: atomic or partial")
	flag.StringVar(&cfg.GenerationSchedule, "s", service.DefaultGenerationSchedule, "cron schedule of period generation")
	flag.StringVar(&cfg.ActorSecret, "k", "", "secret for signing actor tokens")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPayrollAddress != "" {
		cfg.PayrollSystemAddress = envPayrollAddress
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envAMQPURL != "" {
		cfg.AMQPURL = envAMQPURL
	}
	if envBatchMode != "" {
		cfg.BatchMode = envBatchMode
	}
	if envSchedule != "" {
		cfg.GenerationSchedule = envSchedule
	}
	if envActorSecret != "" {
		cfg.ActorSecret = envActorSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.BatchMode == "" {
		cfg.BatchMode = string(model.BatchModeAtomic)
	}
	if cfg.GenerationSchedule == "" {
		cfg.GenerationSchedule = service.DefaultGenerationSchedule
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if !model.BatchMode(c.BatchMode).Valid() {
		errs = append(errs, fmt.Errorf("unknown batch mode %q", c.BatchMode))
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("load timezone %q: %w", c.Timezone, err))
	}
	c.location = loc

	return errors.Join(errs...)
}

// Location возвращает часовой пояс расчётных периодов.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// StaleTimes возвращает время свежести кэша по сущностям. Нулевое значение отключает кэширование сущности.
func (c *Config) StaleTimes() map[cache.Entity]time.Duration {
	return map[cache.Entity]time.Duration{
		cache.EntityBonus:      c.BonusStaleTime,
		cache.EntityPayroll:    c.PayrollStaleTime,
		cache.EntityComparison: c.ComparisonStaleTime,
		cache.EntitySimulation: c.SimulationStaleTime,
	}
}
