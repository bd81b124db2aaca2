package desktop_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/harun/deskpilot/internal/peertest"
	"github.com/harun/deskpilot/pkg/channel"
	"github.com/harun/deskpilot/pkg/command"
	"github.com/harun/deskpilot/pkg/desktop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	kind          command.Kind
	payload       any
	expectsResult bool
}

type recorder struct {
	calls  []call
	result json.RawMessage
	err    error
}

func (r *recorder) Dispatch(ctx context.Context, kind command.Kind, payload any, expectsResult bool) (json.RawMessage, error) {
	r.calls = append(r.calls, call{kind, payload, expectsResult})
	return r.result, r.err
}

func TestFacades(t *testing.T) {
	ctx := context.Background()

	t.Run("should map pointer actions to kinds and payloads", func(t *testing.T) {
		rec := &recorder{}
		d := desktop.New(rec)

		require.NoError(t, d.Pointer.LeftClick(ctx, 1, 2))
		require.NoError(t, d.Pointer.Move(ctx, 3, 4, 250*time.Millisecond))
		require.NoError(t, d.Pointer.Drag(ctx, command.Point{X: 1, Y: 1}, command.Point{X: 9, Y: 9}))

		require.Len(t, rec.calls, 3)
		assert.Equal(t, command.PointerLeftClick, rec.calls[0].kind)
		assert.Equal(t, command.At(1, 2), rec.calls[0].payload)
		assert.False(t, rec.calls[0].expectsResult)
		assert.Equal(t, command.Move{X: 3, Y: 4, DurationMs: 250}, rec.calls[1].payload)
		assert.Equal(t, command.PointerDrag, rec.calls[2].kind)
	})

	t.Run("should decode query results", func(t *testing.T) {
		rec := &recorder{result: json.RawMessage(`{"x":7,"y":8}`)}
		pos, err := desktop.New(rec).Pointer.Position(ctx)
		require.NoError(t, err)
		assert.Equal(t, desktop.Position{X: 7, Y: 8}, pos)
		assert.True(t, rec.calls[0].expectsResult)

		rec.result = json.RawMessage(`{"windows":[{"windowId":"w1","title":"Editor"}]}`)
		wins, err := desktop.New(rec).Windows.List(ctx)
		require.NoError(t, err)
		require.Len(t, wins, 1)
		assert.Equal(t, "Editor", wins[0].Title)

		rec.result = json.RawMessage(`{"exists":true}`)
		ok, err := desktop.New(rec).Files.Exists(ctx, "/tmp/a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, command.Path{Path: "/tmp/a"}, rec.calls[len(rec.calls)-1].payload)
	})

	t.Run("should reject missing results", func(t *testing.T) {
		_, err := desktop.New(&recorder{}).Screen.Size(ctx)
		assert.ErrorContains(t, err, "returned no result")
	})

	t.Run("should propagate dispatch errors", func(t *testing.T) {
		failure := errors.New("boom")
		err := desktop.New(&recorder{err: failure}).Keyboard.Press(ctx, "Enter")
		assert.ErrorIs(t, err, failure)
	})

	t.Run("should require hotkey keys", func(t *testing.T) {
		rec := &recorder{}
		assert.Error(t, desktop.New(rec).Keyboard.Hotkey(ctx))
		assert.Empty(t, rec.calls)
	})

	t.Run("should read screenshot dimensions from the image", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 32, 16))
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))
		raw, _ := json.Marshal(desktop.ScreenshotResult{Image: buf.Bytes()})

		shot, err := desktop.New(&recorder{result: raw}).Screen.Screenshot(ctx, command.Screenshot{})
		require.NoError(t, err)
		assert.Equal(t, 32, shot.Width)
		assert.Equal(t, 16, shot.Height)
		assert.Equal(t, "png", shot.Format)
	})
}

type fakeSender struct {
	opts int
	cmd  command.Command
}

func (f *fakeSender) Send(ctx context.Context, cmd command.Command, expectsResult bool, opts ...channel.SendOption) (json.RawMessage, error) {
	f.cmd = cmd
	f.opts = len(opts)
	return nil, nil
}

func TestChannelDispatcher(t *testing.T) {
	t.Run("should extend the timeout for long-running kinds", func(t *testing.T) {
		s := &fakeSender{}
		d := desktop.NewChannelDispatcher(s)

		_, err := d.Dispatch(context.Background(), command.ScreenScreenshot, command.Screenshot{}, true)
		require.NoError(t, err)
		assert.Equal(t, 1, s.opts)

		_, err = d.Dispatch(context.Background(), command.PointerLeftClick, command.At(1, 1), false)
		require.NoError(t, err)
		assert.Equal(t, 0, s.opts)
	})

	t.Run("should reject unknown kinds", func(t *testing.T) {
		_, err := desktop.NewChannelDispatcher(&fakeSender{}).Dispatch(context.Background(), "pointer.teleport", nil, false)
		assert.Error(t, err)
	})

	t.Run("should drive a live session", func(t *testing.T) {
		peer := peertest.New(t, peertest.WithHandler(func(env command.Envelope) (interface{}, error) {
			if env.Kind == command.PointerGetPosition {
				return map[string]int{"x": 100, "y": 200}, nil
			}
			return nil, nil
		}))
		ch, err := channel.Connect(context.Background(), channel.Options{
			URL:          peer.URL(),
			SharedSecret: peer.Secret(),
			Logger:       zerolog.Nop(),
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = ch.Close(context.Background()) })
		require.NoError(t, ch.WaitUntilReady(context.Background(), 5*time.Second))

		d := desktop.New(desktop.NewChannelDispatcher(ch))
		require.NoError(t, d.Pointer.LeftClick(context.Background(), 100, 200))
		pos, err := d.Pointer.Position(context.Background())
		require.NoError(t, err)
		assert.Equal(t, desktop.Position{X: 100, Y: 200}, pos)

		received := peer.Received()
		require.Len(t, received, 2)
		assert.JSONEq(t, `{"x":100,"y":200}`, string(received[0].Payload))
	})
}

func TestMediaType(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"png", "image/png"},
		{"JPEG", "image/jpeg"},
		{"jpg", "image/jpeg"},
		{"webp", "image/webp"},
		{"", "image/png"},
	}
	for _, tt := range tests {
		t.Run("should map "+tt.format, func(t *testing.T) {
			assert.Equal(t, tt.want, desktop.ScreenshotResult{Format: tt.format}.MediaType())
		})
	}
}
