package desktop

import (
	"context"
	"fmt"

	"github.com/harun/deskpilot/pkg/command"
)

// Keyboard drives the keyboard.
type Keyboard struct {
	d Dispatcher
}

// Type types text.
func (k *Keyboard) Type(ctx context.Context, text string) error {
	return do(ctx, k.d, command.KeyboardType, command.TypeText{Text: text})
}

// Press presses and releases key.
func (k *Keyboard) Press(ctx context.Context, key string) error {
	return do(ctx, k.d, command.KeyboardPress, command.Key{Key: key})
}

// Hotkey presses keys together, e.g. "ctrl", "c".
func (k *Keyboard) Hotkey(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return fmt.Errorf("hotkey requires at least one key")
	}
	return do(ctx, k.d, command.KeyboardHotkey, command.Hotkey{Keys: keys})
}

// Down holds key.
func (k *Keyboard) Down(ctx context.Context, key string) error {
	return do(ctx, k.d, command.KeyboardDown, command.Key{Key: key})
}

// Up releases key.
func (k *Keyboard) Up(ctx context.Context, key string) error {
	return do(ctx, k.d, command.KeyboardUp, command.Key{Key: key})
}
