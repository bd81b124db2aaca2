package command

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("should register every capability group", func(t *testing.T) {
		groups := map[string]int{}
		for _, k := range Kinds() {
			groups[k.Capability()]++
		}
		assert.Equal(t, 11, groups["pointer"])
		assert.Equal(t, 5, groups["keyboard"])
		assert.Equal(t, 2, groups["screen"])
		assert.Equal(t, 9, groups["clipboard"])
		assert.Equal(t, 10, groups["files"])
		assert.Equal(t, 8, groups["windows"])
	})

	t.Run("should reject unknown kinds", func(t *testing.T) {
		_, err := New(Kind("shell.run"), nil)
		assert.Error(t, err)
		_, err = DecodePayload(Kind("nope"), nil)
		assert.Error(t, err)
	})

	t.Run("should decode empty payload to zero value", func(t *testing.T) {
		payload, err := DecodePayload(ScreenGetSize, nil)
		require.NoError(t, err)
		assert.IsType(t, &Empty{}, payload)
	})

	t.Run("should report invalid payloads", func(t *testing.T) {
		_, err := DecodePayload(KeyboardHotkey, json.RawMessage(`{"keys":"ctrl"}`))
		assert.Error(t, err)
	})
}

func TestEnvelope(t *testing.T) {
	t.Run("should carry header fields and typed payload", func(t *testing.T) {
		cmd, err := New(PointerLeftClick, At(100, 200))
		require.NoError(t, err)

		now := time.UnixMilli(1700000000000)
		env, err := Seal(cmd, "sess-1", "corr-1", now)
		require.NoError(t, err)

		data, err := json.Marshal(env)
		require.NoError(t, err)
		assert.JSONEq(t, `{"sessionId":"sess-1","correlationId":"corr-1","timestamp":1700000000000,"kind":"pointer.leftClick","payload":{"x":100,"y":200}}`, string(data))

		var decoded Envelope
		require.NoError(t, json.Unmarshal(data, &decoded))
		opened, err := decoded.Open()
		require.NoError(t, err)

		click, ok := opened.Payload.(*Click)
		require.True(t, ok)
		assert.Equal(t, 100, *click.X)
		assert.Equal(t, 200, *click.Y)
	})

	t.Run("should treat capture kinds as long running", func(t *testing.T) {
		assert.True(t, ScreenScreenshot.LongRunning())
		assert.False(t, PointerMove.LongRunning())
	})
}
