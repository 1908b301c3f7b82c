package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-aggregator/types"
)

// EnvConfigPath names the config file when no path is given explicitly.
const EnvConfigPath = "SAI_AGGREGATOR_CONFIG"

const readTimeout = 30 * time.Second

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ResolvePath prefers the explicit path and falls back to $SAI_AGGREGATOR_CONFIG.
func ResolvePath(path string) string {
	if path = strings.TrimSpace(path); path != "" {
		return path
	}
	return strings.TrimSpace(os.Getenv(EnvConfigPath))
}

func (l *Loader) LoadFromFile(configPath string) (config *types.ServiceConfig, err error) {
	configPath = ResolvePath(configPath)
	if configPath == "" {
		return nil, types.Errorf(types.ErrConfigNotFound, "no path given and %s is empty", EnvConfigPath)
	}

	if _, err = os.Stat(configPath); os.IsNotExist(err) {
		return nil, types.Errorf(types.ErrConfigNotFound, "file not found: %s", configPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	return l.Load(data)
}

// Load decodes YAML onto Defaults and validates the result.
func (l *Loader) Load(data []byte) (*types.ServiceConfig, error) {
	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	return config, nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "sai-aggregator",
		Version: "1.0.0",
		Logger: &types.LoggerConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Cache: &types.CacheConfig{
			Type:       "memory",
			MaxEntries: 1000,
			TTL: types.TTLConfig{
				Short:  5 * time.Minute,
				Medium: 30 * time.Minute,
				Long:   6 * time.Hour,
			},
		},
		Retry: &types.RetryConfig{
			MaxAttempts: 5,
			Timeout:     20 * time.Second,
			BaseDelay:   time.Second,
		},
		CircuitBreaker: &types.CircuitBreakerConfig{
			Enabled:     false,
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    time.Minute,
		},
		Client: &types.ClientConfig{
			Timeout:         10 * time.Second,
			MaxConnsPerHost: 16,
			UserAgent:       "sai-aggregator/1.0",
		},
		Aggregator: &types.AggregatorConfig{
			PageSize:          10,
			TargetResults:     100,
			BackfillProviders: 2,
			BackfillBudget:    4,
			Jitter: types.JitterConfig{
				Amplitude: 0.1,
			},
		},
		Engine: &types.EngineConfig{
			Categories: map[types.Category]types.TTLClass{
				types.CategoryWeather: types.TTLShort,
				types.CategoryNews:    types.TTLShort,
				types.CategoryWeb:     types.TTLMedium,
				types.CategoryVideos:  types.TTLMedium,
				types.CategoryImages:  types.TTLLong,
			},
		},
		Metrics: &types.MetricsConfig{
			Enabled:   false,
			Type:      "prometheus",
			Namespace: "sai_aggregator",
			HTTP: types.MetricsHTTPConfig{
				Host: "0.0.0.0",
				Port: 9090,
				Path: "/metrics",
			},
		},
		Cron: &types.CronConfig{
			Enabled:   false,
			Timezone:  "UTC",
			StatsSpec: "*/30 * * * * *",
		},
	}
}
