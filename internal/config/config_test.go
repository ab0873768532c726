package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openprotect-lab/internal/domain/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Name)
	assert.Equal(t, 8090, cfg.Server.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.Simulation.Interval)
	assert.Equal(t, 1, cfg.Engine.CorrelationThreshold)
	assert.Equal(t, []string{"username"}, cfg.Engine.Sanitizer.UsernameKeys)

	cc := cfg.Engine.CoordinatorConfig()
	assert.Equal(t, 10.0, cc.InitialServerKnowledge)
	assert.Equal(t, 0.8, cc.Scoring.SeverityGains[models.SeverityCritical])
	assert.Equal(t, 2.0, cc.Scoring.TitleMultipliers["In-Memory Threat Detected"])
}

func TestLoad_FileOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
engine:
  initial_server_knowledge: 40
  correlation_threshold: 2
  scoring:
    critical: 1.5
simulation:
  interval: 250ms
  seed: 42
`))
	require.NoError(t, err)

	assert.Equal(t, 40.0, cfg.Engine.InitialServerKnowledge)
	assert.Equal(t, 2, cfg.Engine.EngineOptions().CorrelationThreshold)
	assert.Equal(t, 1.5, cfg.Engine.CoordinatorConfig().Scoring.SeverityGains[models.SeverityCritical])
	assert.Equal(t, 0.5, cfg.Engine.CoordinatorConfig().Scoring.SeverityGains[models.SeverityHigh])
	assert.Equal(t, 250*time.Millisecond, cfg.Simulation.Interval)
	assert.Equal(t, int64(42), cfg.Simulation.Seed)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OPENPROTECT_REDIS_HOST", "cache.internal")
	t.Setenv("OPENPROTECT_LOGGER_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "redis:\n  port: 6380\n"))
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", cfg.Redis.Addr())
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		key  string
	}{
		{"knowledge above range", "engine:\n  initial_agent_knowledge: 150\n", "engine.initial_agent_knowledge"},
		{"zero threshold", "engine:\n  correlation_threshold: 0\n", "engine.correlation_threshold"},
		{"bad probability", "simulation:\n  alert_chance: 1.5\n", "simulation.alert_chance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			var cfgErr *models.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_RepositoryConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "config/playbooks.yaml", cfg.Playbooks.SeedFile)
	assert.Contains(t, cfg.Engine.Sanitizer.UsernameKeys, "account")
}
