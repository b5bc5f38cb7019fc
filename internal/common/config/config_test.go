package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithPath_Defaults(t *testing.T) {
	t.Setenv("KUBERNETES_SERVICE_HOST", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "./librechat.yaml", cfg.Agents.CustomConfigPath)
	assert.Equal(t, 60, cfg.Agents.FetchCacheTTL)
	assert.Equal(t, int64(10000), cfg.Agents.MemoMaxEntries)
	assert.False(t, cfg.MCP.Enabled)
	assert.Equal(t, "agentperms", cfg.NATS.SubjectPrefix)
	assert.Empty(t, cfg.Tracing.Endpoint)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
}

func TestLoadWithPath_TracingFromOTelEnv(t *testing.T) {
	t.Setenv("AGENTPERMS_TRACING_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")

	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "http://collector:4318", cfg.Tracing.Endpoint)
}

func TestLoadWithPath_File(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
server:
  port: 9191
agents:
  customConfigPath: /srv/librechat.yaml
  fetchCacheTTL: 5
logging:
  level: debug
  format: json
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "/srv/librechat.yaml", cfg.Agents.CustomConfigPath)
	assert.Equal(t, 5, cfg.Agents.FetchCacheTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadWithPath_EnvOverrides(t *testing.T) {
	t.Setenv("AGENTPERMS_SERVER_PORT", "7070")
	t.Setenv("CONFIG_PATH", "/etc/app/librechat.yaml")

	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/etc/app/librechat.yaml", cfg.Agents.CustomConfigPath)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Driver: "sqlite", Path: "x.db"},
			Logging:  LoggingConfig{Level: "info", Format: "json"},
			Agents:   AgentsConfig{FetchCacheTTL: 10, MemoMaxEntries: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "database.driver"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: "database.dsn"},
		{name: "sample ratio above one", mutate: func(c *Config) { c.Tracing.SampleRatio = 1.5 }, wantErr: "tracing.sampleRatio"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: "logging.level"},
		{name: "zero ttl", mutate: func(c *Config) { c.Agents.FetchCacheTTL = 0 }, wantErr: "agents.fetchCacheTTL"},
		{name: "mcp port", mutate: func(c *Config) { c.MCP.Enabled = true }, wantErr: "mcp.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := validate(&cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
