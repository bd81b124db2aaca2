package desktop

import (
	"context"
	"encoding/json"

	"github.com/harun/deskpilot/pkg/channel"
	"github.com/harun/deskpilot/pkg/command"
)

// Dispatcher sends one command to the remote desktop. The result payload is
// returned only when expectsResult is set.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind command.Kind, payload any, expectsResult bool) (json.RawMessage, error)
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, kind command.Kind, payload any, expectsResult bool) (json.RawMessage, error)

// Dispatch calls f.
func (f DispatchFunc) Dispatch(ctx context.Context, kind command.Kind, payload any, expectsResult bool) (json.RawMessage, error) {
	return f(ctx, kind, payload, expectsResult)
}

// Sender is the part of *channel.Channel used for dispatch.
type Sender interface {
	Send(ctx context.Context, cmd command.Command, expectsResult bool, opts ...channel.SendOption) (json.RawMessage, error)
}

// ChannelDispatcher dispatches commands over a command channel.
type ChannelDispatcher struct {
	sender Sender
}

// NewChannelDispatcher wraps sender.
func NewChannelDispatcher(sender Sender) *ChannelDispatcher {
	return &ChannelDispatcher{sender: sender}
}

// Dispatch builds the command and sends it. Long-running kinds get the
// maximum request timeout.
func (d *ChannelDispatcher) Dispatch(ctx context.Context, kind command.Kind, payload any, expectsResult bool) (json.RawMessage, error) {
	cmd, err := command.New(kind, payload)
	if err != nil {
		return nil, err
	}

	var opts []channel.SendOption
	if kind.LongRunning() {
		opts = append(opts, channel.WithTimeout(channel.MaxRequestTimeout))
	}
	return d.sender.Send(ctx, cmd, expectsResult, opts...)
}
