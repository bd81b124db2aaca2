// Package desktop exposes the capabilities of a remote desktop session as
// thin façades over a single dispatch function.
package desktop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harun/deskpilot/pkg/command"
)

// Desktop groups the capability façades of one session.
type Desktop struct {
	Pointer   *Pointer
	Keyboard  *Keyboard
	Screen    *Screen
	Clipboard *Clipboard
	Files     *Files
	Windows   *Windows
}

// New returns the façades over d.
func New(d Dispatcher) *Desktop {
	return &Desktop{
		Pointer:   &Pointer{d: d},
		Keyboard:  &Keyboard{d: d},
		Screen:    &Screen{d: d},
		Clipboard: &Clipboard{d: d},
		Files:     &Files{d: d},
		Windows:   &Windows{d: d},
	}
}

func do(ctx context.Context, d Dispatcher, kind command.Kind, payload any) error {
	_, err := d.Dispatch(ctx, kind, payload, false)
	return err
}

func query[T any](ctx context.Context, d Dispatcher, kind command.Kind, payload any) (T, error) {
	var out T
	raw, err := d.Dispatch(ctx, kind, payload, true)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return out, fmt.Errorf("%s returned no result", kind)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("invalid %s result: %w", kind, err)
	}
	return out, nil
}
