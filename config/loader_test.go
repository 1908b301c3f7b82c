package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-aggregator/types"
)

const sampleConfig = `
name: test-aggregator
version: 0.1.0
logger:
  level: debug
cache:
  max_entries: 50
  ttl:
    short: 1m
retry:
  max_attempts: 3
  base_delay: 10ms
engine:
  coalesce: true
providers:
  - name: searx
    type: json
    category: web
    weight: 1.5
    base_url: http://localhost:8888/search
  - name: feeds
    type: rss
    category: news
    weight: 1
    base_url: http://localhost/rss?q={query}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	config, err := NewLoader().LoadFromFile(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "test-aggregator", config.Name)
	assert.Equal(t, "debug", config.Logger.Level)
	assert.Equal(t, "console", config.Logger.Format)

	assert.Equal(t, "memory", config.Cache.Type)
	assert.Equal(t, 50, config.Cache.MaxEntries)
	assert.Equal(t, time.Minute, config.Cache.TTL.Short)
	assert.Equal(t, 30*time.Minute, config.Cache.TTL.Medium)
	assert.Equal(t, 6*time.Hour, config.Cache.TTL.Long)

	assert.Equal(t, 3, config.Retry.MaxAttempts)
	assert.Equal(t, 20*time.Second, config.Retry.Timeout)
	assert.Equal(t, 10*time.Millisecond, config.Retry.BaseDelay)

	assert.True(t, config.Engine.Coalesce)
	assert.Equal(t, types.TTLLong, config.Engine.Categories[types.CategoryImages])

	require.Len(t, config.Providers, 2)
	assert.Equal(t, types.CategoryNews, config.Providers[1].Category)
	assert.Equal(t, 1.5, config.Providers[0].Weight)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := NewLoader().LoadFromFile(filepath.Join(t.TempDir(), "absent.yml"))
	assert.ErrorIs(t, err, types.ErrConfigNotFound)
}

func TestLoadFromEnvPath(t *testing.T) {
	t.Setenv(EnvConfigPath, writeConfig(t, sampleConfig))

	config, err := NewLoader().LoadFromFile("")
	require.NoError(t, err)
	assert.Equal(t, "test-aggregator", config.Name)
}

func TestLoadWithoutPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	_, err := NewLoader().LoadFromFile("")
	assert.ErrorIs(t, err, types.ErrConfigNotFound)
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/env.yml")

	assert.Equal(t, "/tmp/flag.yml", ResolvePath(" /tmp/flag.yml "))
	assert.Equal(t, "/etc/env.yml", ResolvePath(""))
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := NewLoader().Load([]byte("providers: [unterminated"))
	assert.ErrorIs(t, err, types.ErrConfigParseFailed)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "no providers",
			content: "name: x\n",
		},
		{
			name: "non-positive weight",
			content: `
providers:
  - name: a
    type: json
    category: web
    weight: 0
    base_url: http://localhost
`,
		},
		{
			name: "unknown adapter type",
			content: `
providers:
  - name: a
    type: grpc
    category: web
    weight: 1
    base_url: http://localhost
`,
		},
		{
			name: "unknown category",
			content: `
providers:
  - name: a
    type: json
    category: music
    weight: 1
    base_url: http://localhost
`,
		},
		{
			name: "redis without address",
			content: `
cache:
  type: redis
providers:
  - name: a
    type: json
    category: web
    weight: 1
    base_url: http://localhost
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().Load([]byte(tt.content))
			assert.ErrorIs(t, err, types.ErrConfigValidateFailed)
		})
	}
}
