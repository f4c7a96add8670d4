package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Memory.Limit)
	assert.Equal(t, "defer", cfg.Orchestrator.AutoExecPolicy)
	assert.Equal(t, 30*time.Second, cfg.Sandbox.ExecTimeout.Duration)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Profile("summarization").Model)
}

func TestLoadConfig_YAMLOverridesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
memory:
  limit: 3
sandbox:
  exec_timeout: 5s
  compile_timeout: 45
models:
  planning:
    model: gpt-4o
    temperature: 0
    json_mode: true
providers:
  openai:
    api_key: sk-test
    model: gpt-4o
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Memory.Limit)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.ExecTimeout.Duration)
	assert.Equal(t, 45*time.Second, cfg.Sandbox.CompileTimeout.Duration)
	assert.Equal(t, "gpt-4o", cfg.Profile("planning").Model)
	// untouched profiles survive the merge
	assert.Equal(t, "gpt-4o-mini", cfg.Profile("code_gen").Model)

	name, p, err := cfg.GetDefaultProvider()
	require.NoError(t, err)
	assert.Equal(t, "openai", name)
	assert.Equal(t, "sk-test", p.APIKey)
}

func TestLoadConfig_JSON(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"orchestrator": {"auto_exec_policy": "always"}, "search": {"fetch_timeout": "3s"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "always", cfg.Orchestrator.AutoExecPolicy)
	assert.Equal(t, 3*time.Second, cfg.Search.FetchTimeout.Duration)
}

func TestLoadConfig_RejectsBadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"orchestrator": {"auto_exec_policy": "sometimes"}}`), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestApplyEnv_AddsOpenAIProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("CODEMATE_MODEL", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	name, p, err := cfg.GetDefaultProvider()
	require.NoError(t, err)
	assert.Equal(t, "openai", name)
	assert.Equal(t, "sk-env", p.APIKey)
	assert.Equal(t, "gpt-4o-mini", p.Model)
}

func TestGetDefaultProvider_None(t *testing.T) {
	cfg := Default()
	_, _, err := cfg.GetDefaultProvider()
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestProfile_FallsBackToDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, cfg.Models["default"], cfg.Profile("unknown"))
}

func TestLoadConfig_EmptySections(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("CODEMATE_MODEL", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers:\n  # openai: disabled\nmodels:\ngateways:\nmemory:\n  limit: 5\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Memory.Limit)
	assert.Equal(t, "sk-test", cfg.Providers["openai"].APIKey)
	assert.Equal(t, Default().Models, cfg.Models)
	_, ok := cfg.GetGatewayConfig("telegram")
	assert.False(t, ok)
}
