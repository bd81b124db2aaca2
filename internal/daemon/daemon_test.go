package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"path/filepath"
	"sync"
	"testing"

	"github.com/harun/deskpilot/internal/config"
	"github.com/harun/deskpilot/internal/peertest"
	"github.com/harun/deskpilot/pkg/agent"
	"github.com/harun/deskpilot/pkg/command"
	"github.com/harun/deskpilot/pkg/llm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	mu    sync.Mutex
	turns [][]llm.Event
	calls int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(ctx context.Context, req llm.Request) (<-chan llm.Event, error) {
	p.mu.Lock()
	events := []llm.Event{{Kind: llm.EventFinal, Text: "Done"}}
	if p.calls < len(p.turns) {
		events = p.turns[p.calls]
	}
	p.calls++
	p.mu.Unlock()

	out := make(chan llm.Event, len(events))
	for _, ev := range events {
		out <- ev
	}
	close(out)
	return out, nil
}

func pngScreen(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 48))))
	return buf.Bytes()
}

// createTestDaemon creates a daemon wired to a loopback peer and a scripted model.
func createTestDaemon(t *testing.T, provider llm.Provider, opts ...Option) (*Daemon, *peertest.Peer) {
	shot := pngScreen(t)
	peer := peertest.New(t, peertest.WithHandler(func(env command.Envelope) (interface{}, error) {
		if env.Kind == command.ScreenScreenshot {
			return map[string]interface{}{"image": shot, "format": "png"}, nil
		}
		if env.Kind == command.PointerGetPosition {
			return map[string]int{"x": 1, "y": 2}, nil
		}
		return nil, nil
	}))

	prev := newProvider
	newProvider = func(llm.ProviderConfig) (llm.Provider, error) { return provider, nil }
	t.Cleanup(func() { newProvider = prev })

	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.Peer.URL = peer.URL()
	cfg.Peer.SharedSecret = peer.Secret()
	cfg.LLM.APIKey = "sk-ant-test"
	cfg.Transcript.Path = filepath.Join(tmpDir, "transcript.db")

	d, err := New(cfg, zerolog.Nop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })
	return d, peer
}

func TestNew(t *testing.T) {
	d, _ := createTestDaemon(t, &scriptedProvider{})

	assert.NotNil(t, d.provider)
	assert.NotNil(t, d.transcript)
	assert.NotNil(t, d.lifecycle)
	assert.Nil(t, d.detector)
	assert.False(t, d.Status().Running)
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := createTestDaemon(t, &scriptedProvider{}, WithPIDFile())
	ctx := context.Background()

	require.NoError(t, d.Start(ctx))
	status := d.Status()
	assert.True(t, status.Running)
	assert.NotEmpty(t, status.SessionID)
	assert.Equal(t, "ready", status.SessionState)
	assert.FileExists(t, PIDFilePath(d.config.DataDir))

	assert.Error(t, d.Start(ctx))

	require.NoError(t, d.Shutdown(ctx))
	assert.False(t, d.Status().Running)
	assert.NoFileExists(t, PIDFilePath(d.config.DataDir))
}

func TestDaemonRunGoal(t *testing.T) {
	provider := &scriptedProvider{turns: [][]llm.Event{
		{
			{Kind: llm.EventToolCall, ToolCall: &llm.ToolCall{ID: "call_1", Name: "click", Arguments: json.RawMessage(`{"x":10,"y":20}`)}},
			{Kind: llm.EventFinal},
		},
		{{Kind: llm.EventFinal, Text: "All done"}},
	}}
	d, peer := createTestDaemon(t, provider)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))

	var results []agent.Result
	err := d.RunGoal(ctx, "open the settings", func(r agent.Result) { results = append(results, r) })
	require.NoError(t, err)

	t.Run("should drive the desktop through the channel", func(t *testing.T) {
		var kinds []command.Kind
		for _, env := range peer.Received() {
			kinds = append(kinds, env.Kind)
		}
		assert.Equal(t, []command.Kind{command.ScreenScreenshot, command.PointerLeftClick, command.ScreenScreenshot}, kinds)
	})

	t.Run("should emit results in order", func(t *testing.T) {
		var kinds []agent.ResultKind
		for _, r := range results {
			kinds = append(kinds, r.Kind)
		}
		assert.Equal(t, []agent.ResultKind{agent.ResultScreenshot, agent.ResultToolCall, agent.ResultScreenshot, agent.ResultMessage}, kinds)
		assert.Equal(t, "All done", results[len(results)-1].Text)
	})

	t.Run("should journal the run", func(t *testing.T) {
		runs, err := d.Transcript().Runs(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "open the settings", runs[0].Goal)
		assert.Equal(t, "succeeded", runs[0].Status)

		entries, err := d.Transcript().Results(ctx, runs[0].ID)
		require.NoError(t, err)
		assert.Len(t, entries, len(results))
	})
}

func TestDaemonExec(t *testing.T) {
	d, peer := createTestDaemon(t, &scriptedProvider{})
	ctx := context.Background()

	_, err := d.Exec(ctx, command.PointerGetPosition, nil, true)
	assert.ErrorContains(t, err, "not running")

	require.NoError(t, d.Start(ctx))
	assert.NoFileExists(t, PIDFilePath(d.config.DataDir))

	t.Run("should send a decoded payload", func(t *testing.T) {
		_, err := d.Exec(ctx, command.PointerLeftClick, json.RawMessage(`{"x":5,"y":6}`), false)
		require.NoError(t, err)
		received := peer.Received()
		assert.JSONEq(t, `{"x":5,"y":6}`, string(received[len(received)-1].Payload))
	})

	t.Run("should return query results", func(t *testing.T) {
		out, err := d.Exec(ctx, command.PointerGetPosition, nil, true)
		require.NoError(t, err)
		assert.JSONEq(t, `{"x":1,"y":2}`, string(out))
	})

	t.Run("should reject unknown kinds and bad payloads", func(t *testing.T) {
		_, err := d.Exec(ctx, "pointer.teleport", nil, false)
		assert.ErrorContains(t, err, "unknown command kind")

		_, err = d.Exec(ctx, command.PointerLeftClick, json.RawMessage(`{"x":"left"}`), false)
		assert.ErrorContains(t, err, "invalid payload")
	})
}
