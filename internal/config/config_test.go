package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
)

var envKeys = []string{
	"INCIDENT_ADDR", "INCIDENT_ALLOWED_ORIGINS", "INCIDENT_BACKEND_MODE", "PAGERDUTY_USER_API_KEY",
	"PAGERDUTY_API_HOST", "INCIDENT_REQUESTER_ID", "INCIDENT_REQUEST_TIMEOUT", "INCIDENT_FIXTURE_LATENCY",
	"INCIDENT_REASONING_MODE", "OPENAI_API_KEY", "OPENAI_API_BASE", "OPENAI_MODEL", "OLLAMA_HOST",
	"INCIDENT_MAX_ITERATIONS", "INCIDENT_FAILURE_THRESHOLD", "INCIDENT_CONTEXT_WINDOW",
	"INCIDENT_DUCKDB_PATH", "INCIDENT_TEAM_ID", "INCIDENT_TEAM_NAME",
}

// cleanEnv blanks every variable Load reads so the host environment cannot leak in.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsToFixtureWithoutKeys(t *testing.T) {
	cleanEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, domain.BackendFixture, cfg.Backend.Mode)
	assert.Equal(t, domain.ReasoningNone, cfg.Reasoning.Mode)
	assert.Equal(t, 3, cfg.Dispatcher.FailureThreshold)
	assert.Equal(t, 10, cfg.Dispatcher.ContextWindow)
	assert.Len(t, cfg.Scope.Services, 2)
}

func TestLoad_CredentialsSelectModes(t *testing.T) {
	cleanEnv(t)
	t.Setenv("PAGERDUTY_USER_API_KEY", "u+abcdef123")
	t.Setenv("OPENAI_API_KEY", "sk-secret-9876")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, domain.BackendLive, cfg.Backend.Mode)
	assert.Equal(t, domain.ReasoningRemote, cfg.Reasoning.Mode)
	assert.Equal(t, defaultOpenAIBase, cfg.Reasoning.RemoteURL)
	assert.Equal(t, "gpt-4o-mini", cfg.Reasoning.Model)

	masked := Masked(cfg)
	assert.Equal(t, "****f123", masked.Backend.APIKey)
	assert.Equal(t, "****9876", masked.Reasoning.APIKey)
	assert.Equal(t, "u+abcdef123", cfg.Backend.APIKey)
}

func TestLoad_OllamaHostSelectsLocal(t *testing.T) {
	cleanEnv(t)
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, domain.ReasoningLocal, cfg.Reasoning.Mode)
	assert.Equal(t, "http://gpu-box:11434", cfg.Reasoning.LocalURL)
	assert.Empty(t, cfg.Reasoning.Model, "local mode must not inherit a hosted model name")
}

func TestLoad_FileThenEnv(t *testing.T) {
	cleanEnv(t)
	path := filepath.Join(t.TempDir(), "incident.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
backend:
  mode: fixture
  fixture_latency: 5ms
dispatcher:
  failure_threshold: 5
  context_window: 4
scope:
  team_id: PTEAM01
  team_name: Platform
  services:
    - id: PSVC001
      name: API Gateway
`), 0o600))
	t.Setenv("INCIDENT_FAILURE_THRESHOLD", "7")
	t.Setenv("INCIDENT_ALLOWED_ORIGINS", "http://a.example, http://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Millisecond, cfg.Backend.FixtureLatency)
	assert.Equal(t, 7, cfg.Dispatcher.FailureThreshold)
	assert.Equal(t, 4, cfg.Dispatcher.ContextWindow)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, []domain.Service{{ID: "PSVC001", Name: "API Gateway"}}, cfg.Scope.Services)
}

func TestLoad_Rejections(t *testing.T) {
	cleanEnv(t)

	t.Setenv("INCIDENT_BACKEND_MODE", "live")
	_, err := Load("")
	assert.ErrorContains(t, err, "APIKey")

	cleanEnv(t)
	t.Setenv("INCIDENT_FAILURE_THRESHOLD", "zero")
	_, err = Load("")
	assert.ErrorContains(t, err, "INCIDENT_FAILURE_THRESHOLD")

	cleanEnv(t)
	t.Setenv("INCIDENT_FAILURE_THRESHOLD", "0")
	_, err = Load("")
	assert.ErrorContains(t, err, "FailureThreshold")

	cleanEnv(t)
	t.Setenv("INCIDENT_FIXTURE_LATENCY", "0s")
	_, err = Load("")
	assert.ErrorContains(t, err, "FixtureLatency")

	cleanEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  modee: live\n"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****5678", MaskSecret("12345678"))
}
