package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"
)

type Config struct {
	DbDriver        string        `default:"postgres" split_words:"true"`
	DbConnectionUri string        `required:"true" split_words:"true"`
	Interval        time.Duration `default:"5m"`
	PageSize        int           `default:"500" split_words:"true"`
	BatchSize       int           `default:"500" split_words:"true"`
	QueueHostPorts  []string      `split_words:"true"`
	EventsTopic     string        `default:"work-items.escalated" split_words:"true"`
	RedisAddr       string        `split_words:"true"`
	LockKey         string        `default:"escalator:cycle" split_words:"true"`
	LockTtl         time.Duration `default:"4m" split_words:"true"`
	ListenAddr      string        `default:":8080" split_words:"true"`
	LogLevel        string        `default:"info" split_words:"true"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.DbDriver {
	case DriverPostgres, DriverSqlite:
	default:
		return fmt.Errorf("unsupported db driver %q", c.DbDriver)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.PageSize <= 0 || c.BatchSize <= 0 {
		return fmt.Errorf("page size and batch size must be positive, got %d and %d", c.PageSize, c.BatchSize)
	}
	if c.RedisAddr != "" && c.LockTtl <= 0 {
		return fmt.Errorf("lock ttl must be positive, got %s", c.LockTtl)
	}
	return nil
}
