package cli

import (
	"testing"

	"github.com/harun/deskpilot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureCommand(t *testing.T) {
	path := tempConfig(t)

	out, err := execute(t, "configure", "--config", path,
		"--peer-url", "ws://localhost:7000/ws",
		"--shared-secret", "abc",
		"--provider", "openai",
		"--model", "gpt-4o")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration saved to: "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:7000/ws", cfg.Peer.URL)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 100, cfg.Agent.MaxIterations)

	t.Run("should refuse to overwrite without force", func(t *testing.T) {
		_, err := execute(t, "configure", "--config", path)
		assert.ErrorContains(t, err, "already exists")

		_, err = execute(t, "configure", "--config", path, "--force", "--model", "gpt-4.1")
		require.NoError(t, err)
		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "gpt-4.1", cfg.LLM.Model)
	})

	t.Run("should reject invalid values", func(t *testing.T) {
		_, err := execute(t, "configure", "--config", tempConfig(t), "--peer-url", "http://nope")
		assert.ErrorContains(t, err, "invalid configuration")
	})
}
