package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubstitutesEnv(t *testing.T) {
	t.Setenv("CARY_TEST_DSN", "postgres://u:p@db:5432/cary")
	cfg, err := Parse([]byte(`{
		"providers": [{"id": "gemini", "type": "gemini", "api_key": "${CARY_TEST_KEY:fallback-key}"}],
		"llm": {"model": "gemini-2.0-flash"},
		"database": {"postgres": {"dsn": "${CARY_TEST_DSN}"}},
		"logsink": {"write_timeout": "2s"},
		"agent": {"timeout": 30}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/cary", cfg.Database.Postgres.DSN)
	assert.Equal(t, "fallback-key", cfg.Providers[0].APIKey)
	assert.Equal(t, "gemini", cfg.LLM.DefaultProvider)
	assert.Equal(t, "gemini-2.0-flash", cfg.Agent.Model)
	assert.Equal(t, 2*time.Second, cfg.LogSink.WriteTimeout.Std())
	assert.Equal(t, 30*time.Second, cfg.Agent.Timeout.Std())
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	require.NoError(t, err)

	def := Defaults()
	assert.Equal(t, def.Server.Port, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "api_logs", cfg.Database.Collection)
	assert.True(t, cfg.Database.MigrateEnabled())
	assert.Equal(t, "direct", cfg.LogSink.Mode)
	assert.Equal(t, 12, cfg.Agent.MaxToolCalls)
	assert.Equal(t, 60*time.Second, cfg.Agent.Timeout.Std())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"driver":           `{"database": {"driver": "mongo"}}`,
		"sink mode":        `{"logsink": {"mode": "kafka"}}`,
		"provider type":    `{"providers": [{"id": "x", "type": "cohere"}]}`,
		"duplicate id":     `{"providers": [{"id": "x", "type": "openai"}, {"id": "x", "type": "gemini"}]}`,
		"unknown default":  `{"providers": [{"id": "x", "type": "openai"}], "llm": {"default_provider": "y"}}`,
		"unknown fallback": `{"providers": [{"id": "x", "type": "openai"}], "llm": {"fallbacks": ["y"]}}`,
		"bad duration":     `{"agent": {"timeout": "soon"}}`,
		"missing id":       `{"providers": [{"type": "openai"}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cary.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server": {"port": 9090}, "database": {"driver": "memory", "migrate": false}}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.False(t, cfg.Database.MigrateEnabled())

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
