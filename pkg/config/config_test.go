package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Recommend.ContentWeight)
	assert.Equal(t, 0.3, cfg.Recommend.CategoryWeight)
	assert.Equal(t, 0.2, cfg.Recommend.PopularityWeight)
	assert.Equal(t, 100.0, cfg.Recommend.PopularityCap)
	assert.Equal(t, 5, cfg.Recommend.Limit)
	assert.Equal(t, 20, cfg.Search.MaxResults)
	assert.Equal(t, 50, cfg.Search.HistoryLimit)
	assert.Equal(t, 14.0, cfg.Search.RecencyDecayDays)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
store:
  driver: memory
recommend:
  limit: 3
  deadline: 500ms
search:
  maxResults: 10
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("DG_SERVER_PORT", "9999")
	t.Setenv("DG_KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("DG_RECOMMEND_STEMMING", "true")
	t.Setenv("DG_CORS_ORIGINS", "https://docs.example.com,https://admin.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Recommend.Limit)
	assert.Equal(t, 500*time.Millisecond, cfg.Recommend.Deadline)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Recommend.Stemming)
	assert.Equal(t, []string{"https://docs.example.com", "https://admin.example.com"}, cfg.Server.CORSOrigins)
	// untouched keys keep their defaults
	assert.Equal(t, 0.5, cfg.Recommend.ContentWeight)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Store.Driver = "mongo" }},
		{"negative weight", func(c *Config) { c.Recommend.CategoryWeight = -0.1 }},
		{"zero cap", func(c *Config) { c.Recommend.PopularityCap = 0 }},
		{"zero limit", func(c *Config) { c.Recommend.Limit = 0 }},
		{"history too large", func(c *Config) { c.Search.HistoryLimit = 101 }},
		{"zero decay", func(c *Config) { c.Search.RecencyDecayDays = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", p.DSN())
}
