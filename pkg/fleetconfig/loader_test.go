package fleetconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_DecodesYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  model: llama3.1:8b
fleet_api:
  base_url: https://fleet.example.com
  auth_mode: bearer
  max_retries: 5
logging:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llama3.1:8b", cfg.LLM.Model)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.BaseURL, "unset fields keep their default")
	assert.Equal(t, "https://fleet.example.com", cfg.FleetAPI.BaseURL)
	assert.Equal(t, "bearer", cfg.FleetAPI.AuthMode)
	assert.Equal(t, 5, cfg.FleetAPI.MaxRetries)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("FLEET_BASE_URL", "https://from-env.example.com")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
fleet_api:
  base_url: ${FLEET_BASE_URL}
  auth_mode: bearer
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://from-env.example.com", cfg.FleetAPI.BaseURL)
}

func TestApplyEnvOverrides_SetsDotPath(t *testing.T) {
	t.Setenv("FLEETNLPCORE_LLM_MODEL", "mistral:7b")
	cfg := Defaults()
	ApplyEnvOverrides(&cfg, EnvPrefix)
	assert.Equal(t, "mistral:7b", cfg.LLM.Model)
}

func TestValidate_RejectsUnknownAuthMode(t *testing.T) {
	cfg := Defaults()
	cfg.FleetAPI.AuthMode = "carrier-pigeon"
	assert.Error(t, Validate(cfg))
}

func TestValidate_RequiresBaseURLWhenAuthModeSet(t *testing.T) {
	cfg := Defaults()
	cfg.FleetAPI.AuthMode = "bearer"
	cfg.FleetAPI.BaseURL = ""
	assert.Error(t, Validate(cfg))
}
