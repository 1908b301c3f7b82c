package types

import (
	"time"
)

type ServiceConfig struct {
	Name           string                `yaml:"name" json:"name" validate:"required"`
	Version        string                `yaml:"version" json:"version" validate:"required"`
	Logger         *LoggerConfig         `yaml:"logger" json:"logger" validate:"required"`
	Cache          *CacheConfig          `yaml:"cache" json:"cache" validate:"required"`
	Retry          *RetryConfig          `yaml:"retry" json:"retry" validate:"required"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
	Client         *ClientConfig         `yaml:"client" json:"client" validate:"required"`
	Aggregator     *AggregatorConfig     `yaml:"aggregator" json:"aggregator" validate:"required"`
	Engine         *EngineConfig         `yaml:"engine" json:"engine" validate:"required"`
	Metrics        *MetricsConfig        `yaml:"metrics" json:"metrics"`
	Cron           *CronConfig           `yaml:"cron" json:"cron"`
	Providers      []ProviderConfig      `yaml:"providers" json:"providers" validate:"required,min=1,dive"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn warning error fatal"`
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=console json"`
	Output string `yaml:"output" json:"output" validate:"omitempty,oneof=stdout stderr file"`
	File   string `yaml:"file" json:"file" validate:"required_if=Output file"`
}

type CacheConfig struct {
	Type       string       `yaml:"type" json:"type" validate:"oneof=memory redis"`
	MaxEntries int          `yaml:"max_entries" json:"max_entries" validate:"min=1"`
	TTL        TTLConfig    `yaml:"ttl" json:"ttl"`
	Redis      *RedisConfig `yaml:"redis" json:"redis" validate:"required_if=Type redis"`
}

type TTLConfig struct {
	Short  time.Duration `yaml:"short" json:"short" validate:"gt=0"`
	Medium time.Duration `yaml:"medium" json:"medium" validate:"gt=0"`
	Long   time.Duration `yaml:"long" json:"long" validate:"gt=0"`
}

func (c TTLConfig) For(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return c.Short
	case TTLLong:
		return c.Long
	default:
		return c.Medium
	}
}

type RedisConfig struct {
	Addr              string        `yaml:"addr" json:"addr" validate:"required"`
	Password          string        `yaml:"password" json:"password"`
	DB                int           `yaml:"db" json:"db" validate:"min=0"`
	PoolSize          int           `yaml:"pool_size" json:"pool_size" validate:"min=0"`
	DialTimeout       time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" json:"write_timeout"`
	KeyPrefix         string        `yaml:"key_prefix" json:"key_prefix"`
	CompressThreshold int           `yaml:"compress_threshold" json:"compress_threshold" validate:"min=0"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts" validate:"min=1"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay" validate:"min=0"`
}

type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	MaxFailures uint32        `yaml:"max_failures" json:"max_failures"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	Interval    time.Duration `yaml:"interval" json:"interval"`
}

type ClientConfig struct {
	Timeout         time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host" json:"max_conns_per_host" validate:"min=1"`
	MaxBodySize     int           `yaml:"max_body_size" json:"max_body_size" validate:"min=0"`
	UserAgent       string        `yaml:"user_agent" json:"user_agent"`
}

type AggregatorConfig struct {
	PageSize          int          `yaml:"page_size" json:"page_size" validate:"min=1"`
	TargetResults     int          `yaml:"target_results" json:"target_results" validate:"min=0"`
	BackfillProviders int          `yaml:"backfill_providers" json:"backfill_providers" validate:"min=0"`
	BackfillBudget    int          `yaml:"backfill_budget" json:"backfill_budget" validate:"min=0"`
	Jitter            JitterConfig `yaml:"jitter" json:"jitter"`
}

type JitterConfig struct {
	Enabled    bool       `yaml:"enabled" json:"enabled"`
	Categories []Category `yaml:"categories" json:"categories"`
	Amplitude  float64    `yaml:"amplitude" json:"amplitude" validate:"min=0,max=1"`
	Seed       int64      `yaml:"seed" json:"seed"`
}

type EngineConfig struct {
	Coalesce   bool                  `yaml:"coalesce" json:"coalesce"`
	Categories map[Category]TTLClass `yaml:"categories" json:"categories" validate:"dive,oneof=short medium long"`
}

type MetricsConfig struct {
	Enabled   bool              `yaml:"enabled" json:"enabled"`
	Type      string            `yaml:"type" json:"type" validate:"omitempty,oneof=prometheus memory"`
	Namespace string            `yaml:"namespace" json:"namespace"`
	Subsystem string            `yaml:"subsystem" json:"subsystem"`
	Labels    map[string]string `yaml:"labels" json:"labels"`
	GoMetrics bool              `yaml:"go_metrics" json:"go_metrics"`
	HTTP      MetricsHTTPConfig `yaml:"http" json:"http"`
}

type MetricsHTTPConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port" validate:"omitempty,min=1,max=65535"`
	Path    string `yaml:"path" json:"path"`
}

type CronConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Timezone  string `yaml:"timezone" json:"timezone"`
	StatsSpec string `yaml:"stats_spec" json:"stats_spec" validate:"required_if=Enabled true"`
}

type ProviderConfig struct {
	Name     string            `yaml:"name" json:"name" validate:"required"`
	Type     string            `yaml:"type" json:"type" validate:"oneof=json html rss"`
	Category Category          `yaml:"category" json:"category" validate:"required,oneof=web images videos news weather"`
	Weight   float64           `yaml:"weight" json:"weight" validate:"gt=0"`
	BaseURL  string            `yaml:"base_url" json:"base_url" validate:"required"`
	Params   map[string]string `yaml:"params" json:"params"`
	Headers  map[string]string `yaml:"headers" json:"headers"`
	// Selectors configure the html adapter: result, title, link, snippet.
	Selectors map[string]string `yaml:"selectors" json:"selectors"`
	Disabled  bool              `yaml:"disabled" json:"disabled"`
}
