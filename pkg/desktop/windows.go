package desktop

import (
	"context"

	"github.com/harun/deskpilot/pkg/command"
)

// Windows manages top-level windows.
type Windows struct {
	d Dispatcher
}

// ActiveID returns the id of the focused window.
func (w *Windows) ActiveID(ctx context.Context) (string, error) {
	res, err := query[windowIDResult](ctx, w.d, command.WindowsGetActiveID, command.Empty{})
	return res.WindowID, err
}

func (w *Windows) Info(ctx context.Context, id string) (WindowInfo, error) {
	return query[WindowInfo](ctx, w.d, command.WindowsGetInfo, command.Window{WindowID: id})
}

func (w *Windows) Activate(ctx context.Context, id string) error {
	return do(ctx, w.d, command.WindowsActivate, command.Window{WindowID: id})
}

func (w *Windows) Close(ctx context.Context, id string) error {
	return do(ctx, w.d, command.WindowsClose, command.Window{WindowID: id})
}

func (w *Windows) Maximize(ctx context.Context, id string) error {
	return do(ctx, w.d, command.WindowsMaximize, command.Window{WindowID: id})
}

func (w *Windows) Minimize(ctx context.Context, id string) error {
	return do(ctx, w.d, command.WindowsMinimize, command.Window{WindowID: id})
}

func (w *Windows) Restore(ctx context.Context, id string) error {
	return do(ctx, w.d, command.WindowsRestore, command.Window{WindowID: id})
}

func (w *Windows) List(ctx context.Context) ([]WindowInfo, error) {
	res, err := query[windowsResult](ctx, w.d, command.WindowsList, command.Empty{})
	return res.Windows, err
}
