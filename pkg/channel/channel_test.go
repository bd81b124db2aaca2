package channel_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harun/deskpilot/internal/peertest"
	"github.com/harun/deskpilot/pkg/channel"
	"github.com/harun/deskpilot/pkg/command"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, peer *peertest.Peer) *channel.Channel {
	t.Helper()

	ch, err := channel.Connect(context.Background(), channel.Options{
		URL:                      peer.URL(),
		SharedSecret:             peer.Secret(),
		Spec:                     map[string]interface{}{"os": "linux"},
		RetryDelay:               10 * time.Millisecond,
		ReconnectInitialInterval: 10 * time.Millisecond,
		ReconnectMaxInterval:     50 * time.Millisecond,
		Logger:                   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close(context.Background()) })

	require.NoError(t, ch.WaitUntilReady(context.Background(), 5*time.Second))
	return ch
}

func leftClick(t *testing.T) command.Command {
	t.Helper()
	cmd, err := command.New(command.PointerLeftClick, command.At(100, 200))
	require.NoError(t, err)
	return cmd
}

func TestConnect(t *testing.T) {
	t.Run("should create a session and become ready", func(t *testing.T) {
		peer := peertest.New(t)
		ch := connect(t, peer)

		session := ch.Session()
		assert.NotEmpty(t, session.ID)
		assert.Equal(t, channel.StateReady, session.State)
		assert.False(t, session.CreatedAt.IsZero())
	})

	t.Run("should accept a session reported ready on creation", func(t *testing.T) {
		peer := peertest.New(t, peertest.WithReadyOnCreate())
		ch := connect(t, peer)
		assert.Equal(t, channel.StateReady, ch.State())
	})

	t.Run("should reject invalid options", func(t *testing.T) {
		_, err := channel.Connect(context.Background(), channel.Options{URL: "http://example.com", SharedSecret: "s"})
		var connErr *channel.ConnectionError
		assert.ErrorAs(t, err, &connErr)

		_, err = channel.Connect(context.Background(), channel.Options{SharedSecret: "s"})
		assert.ErrorAs(t, err, &connErr)
	})

	t.Run("should fail on wrong shared secret", func(t *testing.T) {
		peer := peertest.New(t)
		_, err := channel.Connect(context.Background(), channel.Options{
			URL:          peer.URL(),
			SharedSecret: "wrong",
			Logger:       zerolog.Nop(),
		})
		var connErr *channel.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Contains(t, err.Error(), "authentication failed")
	})

	t.Run("should fail when the peer is unreachable", func(t *testing.T) {
		peer := peertest.New(t)
		url := peer.URL()
		peer.Close()

		_, err := channel.Connect(context.Background(), channel.Options{URL: url, SharedSecret: "s", Logger: zerolog.Nop()})
		var connErr *channel.ConnectionError
		assert.ErrorAs(t, err, &connErr)
	})
}

func TestSend(t *testing.T) {
	t.Run("should complete a left click acknowledged by the peer", func(t *testing.T) {
		peer := peertest.New(t)
		ch := connect(t, peer)

		result, err := ch.Send(context.Background(), leftClick(t), false)
		require.NoError(t, err)
		assert.Nil(t, result)

		received := peer.Received()
		require.Len(t, received, 1)
		assert.Equal(t, command.PointerLeftClick, received[0].Kind)
		assert.Equal(t, ch.Session().ID, received[0].SessionID)
		assert.NotEmpty(t, received[0].CorrelationID)
		assert.JSONEq(t, `{"x":100,"y":200}`, string(received[0].Payload))
	})

	t.Run("should return the result payload only when expected", func(t *testing.T) {
		peer := peertest.New(t, peertest.WithHandler(func(env command.Envelope) (interface{}, error) {
			return map[string]int{"x": 5, "y": 6}, nil
		}))
		ch := connect(t, peer)
		cmd, err := command.New(command.PointerGetPosition, nil)
		require.NoError(t, err)

		result, err := ch.Send(context.Background(), cmd, true)
		require.NoError(t, err)
		assert.JSONEq(t, `{"x":5,"y":6}`, string(result))

		result, err = ch.Send(context.Background(), cmd, false)
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("should surface peer failures without retrying", func(t *testing.T) {
		peer := peertest.New(t, peertest.WithHandler(func(env command.Envelope) (interface{}, error) {
			return nil, errors.New("window not found")
		}))
		ch := connect(t, peer)

		_, err := ch.Send(context.Background(), leftClick(t), false)
		var protoErr *channel.ProtocolError
		require.ErrorAs(t, err, &protoErr)
		assert.Equal(t, "window not found", protoErr.Message)
		assert.Len(t, peer.Received(), 1)
	})

	t.Run("should not retry a peer failure that mentions a closed resource", func(t *testing.T) {
		peer := peertest.New(t, peertest.WithHandler(func(env command.Envelope) (interface{}, error) {
			return nil, errors.New("window 42 is already closed")
		}))
		ch := connect(t, peer)
		cmd, err := command.New(command.WindowsClose, command.Window{WindowID: "42"})
		require.NoError(t, err)

		_, err = ch.Send(context.Background(), cmd, false)
		var protoErr *channel.ProtocolError
		require.ErrorAs(t, err, &protoErr)
		assert.Equal(t, "command_failed", protoErr.Code)
		assert.Len(t, peer.Received(), 1)
		assert.Len(t, peer.Executed(), 1)
	})

	t.Run("should give up after three attempts on a closed connection", func(t *testing.T) {
		peer := peertest.New(t)
		ch := connect(t, peer)
		peer.DropNextCommands(3)

		_, err := ch.Send(context.Background(), leftClick(t), false)
		var connErr *channel.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.ErrorIs(t, err, channel.ErrConnectionClosed)
		assert.Len(t, peer.Received(), 3)
		assert.Empty(t, peer.Executed())
	})

	t.Run("should deliver at least once when the response is lost after execution", func(t *testing.T) {
		peer := peertest.New(t)
		ch := connect(t, peer)
		peer.LoseNextResponses(1)

		_, err := ch.Send(context.Background(), leftClick(t), false)
		require.NoError(t, err)

		executed := peer.Executed()
		require.Len(t, executed, 2, "a lost response re-executes the command")
		assert.NotEqual(t, executed[0].CorrelationID, executed[1].CorrelationID)
		assert.JSONEq(t, string(executed[0].Payload), string(executed[1].Payload))
		assert.Equal(t, 1, peer.Resumes())
		assert.Equal(t, channel.StateReady, ch.State())
	})

	t.Run("should reconnect, resume and retry after the transport drops mid-request", func(t *testing.T) {
		peer := peertest.New(t)
		ch := connect(t, peer)
		sessionID := ch.Session().ID
		peer.DropNextCommands(1)

		_, err := ch.Send(context.Background(), leftClick(t), false)
		require.NoError(t, err)

		assert.Len(t, peer.Executed(), 1, "the peer must execute the click exactly once")
		assert.Len(t, peer.Received(), 2)
		assert.Equal(t, 1, peer.Resumes())
		assert.Equal(t, 2, peer.Connections())
		assert.Equal(t, sessionID, ch.Session().ID)
		assert.Equal(t, channel.StateReady, ch.State())
	})

	t.Run("should apply duplicate responses at most once", func(t *testing.T) {
		peer := peertest.New(t)
		peer.DuplicateResponses(true)
		ch := connect(t, peer)

		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := ch.Send(context.Background(), leftClick(t), false)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}
		assert.Len(t, peer.Executed(), 10)
	})

	t.Run("should time out when the peer never answers", func(t *testing.T) {
		peer := peertest.New(t, peertest.WithHandler(func(env command.Envelope) (interface{}, error) {
			return nil, peertest.ErrNoResponse
		}))
		ch := connect(t, peer)

		_, err := ch.Send(context.Background(), leftClick(t), false, channel.WithTimeout(100*time.Millisecond))
		var timeoutErr *channel.TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		assert.Equal(t, 100*time.Millisecond, timeoutErr.Timeout)
		assert.Len(t, peer.Received(), 1)
	})

	t.Run("should abort locally when the context is cancelled", func(t *testing.T) {
		peer := peertest.New(t, peertest.WithHandler(func(env command.Envelope) (interface{}, error) {
			return nil, peertest.ErrNoResponse
		}))
		ch := connect(t, peer)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := ch.Send(ctx, leftClick(t), false)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, channel.StateReady, ch.State())
	})
}

func TestReconnectFailure(t *testing.T) {
	t.Run("should enter error when the session cannot be resumed", func(t *testing.T) {
		peer := peertest.New(t)
		ch := connect(t, peer)
		peer.RejectResume(true)
		peer.DropConnections()

		require.Eventually(t, func() bool {
			return ch.State() == channel.StateError
		}, 5*time.Second, 10*time.Millisecond)

		_, err := ch.Send(context.Background(), leftClick(t), false)
		var protoErr *channel.ProtocolError
		require.ErrorAs(t, err, &protoErr)
		assert.Contains(t, protoErr.Message, "cannot be resumed")

		err = ch.WaitUntilReady(context.Background(), time.Second)
		assert.ErrorAs(t, err, &protoErr)
	})
}

func TestPeerEvents(t *testing.T) {
	t.Run("should fail the session on a peer error event", func(t *testing.T) {
		peer := peertest.New(t)
		ch := connect(t, peer)

		peer.Push(channel.EventError, channel.ErrorEvent{
			SessionID: ch.Session().ID,
			Code:      "vm_crashed",
			Message:   "virtual machine crashed",
		})

		require.Eventually(t, func() bool {
			return ch.State() == channel.StateError
		}, 5*time.Second, 10*time.Millisecond)

		_, err := ch.Send(context.Background(), leftClick(t), false)
		var protoErr *channel.ProtocolError
		require.ErrorAs(t, err, &protoErr)
		assert.Equal(t, "vm_crashed", protoErr.Code)
	})

	t.Run("should ignore events for other sessions", func(t *testing.T) {
		peer := peertest.New(t)
		ch := connect(t, peer)

		peer.Push(channel.EventError, channel.ErrorEvent{SessionID: "other", Code: "x", Message: "y"})
		_, err := ch.Send(context.Background(), leftClick(t), false)
		require.NoError(t, err)
		assert.Equal(t, channel.StateReady, ch.State())
	})

	t.Run("should deliver captured assets", func(t *testing.T) {
		peer := peertest.New(t)
		ch := connect(t, peer)

		assets := make(chan channel.Asset, 1)
		ch.OnAsset(func(a channel.Asset) { assets <- a })

		peer.Push(channel.EventAssetCaptured, channel.Asset{
			SessionID:     ch.Session().ID,
			CorrelationID: "corr-1",
			Info:          json.RawMessage(`{"name":"recording.mp4"}`),
		})

		select {
		case a := <-assets:
			assert.Equal(t, "corr-1", a.CorrelationID)
			assert.JSONEq(t, `{"name":"recording.mp4"}`, string(a.Info))
		case <-time.After(5 * time.Second):
			t.Fatal("asset event not delivered")
		}
	})
}

func TestAccessCredentials(t *testing.T) {
	peer := peertest.New(t)
	ch := connect(t, peer)

	creds, err := ch.AccessCredentials(context.Background(), time.Hour)
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(creds, &parsed))
	assert.Equal(t, "access-token", parsed["token"])
}

func TestClose(t *testing.T) {
	t.Run("should notify the peer and stop", func(t *testing.T) {
		peer := peertest.New(t)
		ch := connect(t, peer)

		require.NoError(t, ch.Close(context.Background()))
		assert.Equal(t, 1, peer.EndSessions())
		assert.Equal(t, channel.StateStopped, ch.State())

		_, err := ch.Send(context.Background(), leftClick(t), false)
		assert.ErrorIs(t, err, channel.ErrShutdown)
		assert.False(t, channel.IsRetryable(err))
	})

	t.Run("should succeed even when the peer is gone", func(t *testing.T) {
		peer := peertest.New(t)
		ch := connect(t, peer)
		peer.Close()

		assert.NoError(t, ch.Close(context.Background()))
		assert.NoError(t, ch.Close(context.Background()))
	})

	t.Run("should fail pending requests", func(t *testing.T) {
		peer := peertest.New(t, peertest.WithHandler(func(env command.Envelope) (interface{}, error) {
			return nil, peertest.ErrNoResponse
		}))
		ch := connect(t, peer)

		done := make(chan error, 1)
		go func() {
			_, err := ch.Send(context.Background(), leftClick(t), false)
			done <- err
		}()

		require.Eventually(t, func() bool { return len(peer.Received()) == 1 }, 5*time.Second, 10*time.Millisecond)
		require.NoError(t, ch.Close(context.Background()))

		select {
		case err := <-done:
			assert.ErrorIs(t, err, channel.ErrShutdown)
		case <-time.After(5 * time.Second):
			t.Fatal("pending send not released")
		}
	})
}
