package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		out, err := execute(t, "stop", "--help")
		require.NoError(t, err)

		assert.Contains(t, out, "Stop the active deskpilot run")
		assert.Contains(t, out, "timeout")
	})

	t.Run("should fail without an active run", func(t *testing.T) {
		_, err := execute(t, "stop", "--config", tempConfig(t))
		assert.ErrorContains(t, err, "no active run")
	})
}
