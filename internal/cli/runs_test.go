package cli

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/harun/deskpilot/pkg/agent"
	"github.com/harun/deskpilot/pkg/llm"
	"github.com/harun/deskpilot/pkg/transcript"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunsCommand(t *testing.T) {
	path := tempConfig(t)

	t.Run("should report an empty journal", func(t *testing.T) {
		out, err := execute(t, "runs", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, "No runs recorded")
	})

	store, err := transcript.Open(transcript.Config{
		DBPath: filepath.Join(filepath.Dir(path), "transcript.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	ctx := context.Background()
	runID, err := store.StartRun(ctx, "open the calculator", "sess-1")
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, runID, agent.Result{
		Kind:      agent.ResultToolCall,
		Iteration: 1,
		ToolCall:  &llm.ToolCall{ID: "c1", Name: "click", Arguments: []byte(`{"x":1,"y":2}`)},
	}))
	require.NoError(t, store.FinishRun(ctx, runID, errors.New("model stream failed")))
	require.NoError(t, store.Close())

	t.Run("should list runs", func(t *testing.T) {
		out, err := execute(t, "runs", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, runID)
		assert.Contains(t, out, "open the calculator")
		assert.Contains(t, out, "failed")
	})

	t.Run("should show one run", func(t *testing.T) {
		out, err := execute(t, "runs", "--config", path, runID)
		require.NoError(t, err)
		assert.Contains(t, out, "Error: model stream failed")
		assert.Contains(t, out, `click {"x":1,"y":2}`)
	})

	t.Run("should report unknown runs", func(t *testing.T) {
		_, err := execute(t, "runs", "--config", path, "missing")
		assert.ErrorContains(t, err, "not found")
	})
}
