package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.GetConfigPath())
}

func TestLoaderLoad(t *testing.T) {
	t.Run("should load defaults when the file does not exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		cfg, err := NewLoader(filepath.Join(tmpDir, "nonexistent.json")).Load()

		require.NoError(t, err)
		assert.Equal(t, 100, cfg.Agent.MaxIterations)
		assert.Equal(t, tmpDir, cfg.DataDir)
	})

	t.Run("should load values from the file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		testConfig := `{
			"peer": {"url": "ws://localhost:9000/ws", "shared_secret": "abc"},
			"llm": {"provider": "openai", "model": "gpt-4o"},
			"agent": {"recency_window": 5},
			"tools": {"policy": {"allow": ["category:pointer"], "deny": ["click"]}}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)

		assert.Equal(t, "ws://localhost:9000/ws", cfg.Peer.URL)
		assert.Equal(t, "openai", cfg.LLM.Provider)
		assert.Equal(t, "gpt-4o", cfg.LLM.Model)
		assert.Equal(t, 5, cfg.Agent.RecencyWindow)
		assert.Equal(t, 100, cfg.Agent.MaxIterations)
		assert.Equal(t, 30000, cfg.Peer.RequestTimeoutMs)
		assert.Equal(t, []string{"category:pointer"}, cfg.Tools.Policy.Allow)
		assert.Equal(t, []string{"click"}, cfg.Tools.Policy.Deny)
	})

	t.Run("should set default paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{}`), 0644))

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tmpDir, "transcript.db"), cfg.Transcript.Path)
		assert.Equal(t, filepath.Join(tmpDir, "deskpilot.log"), cfg.Logging.File)
	})

	t.Run("should apply environment overrides", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("DESKPILOT_LLM_API_KEY", "sk-ant-from-env")
		t.Setenv("DESKPILOT_AGENT_MAX_ITERATIONS", "7")

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json")).Load()
		require.NoError(t, err)
		assert.Equal(t, "sk-ant-from-env", cfg.LLM.APIKey)
		assert.Equal(t, 7, cfg.Agent.MaxIterations)
	})

	t.Run("should fail on malformed json", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"peer":`), 0644))

		_, err := NewLoader(configPath).Load()
		assert.ErrorContains(t, err, "failed to read config file")
	})
}

func TestLoaderSave(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "deskpilot.json")
	cfg := validConfig()
	cfg.Agent.RecencyWindow = 2

	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(cfg))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg.Peer.URL, loaded.Peer.URL)
	assert.Equal(t, 2, loaded.Agent.RecencyWindow)
}
