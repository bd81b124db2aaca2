package toolexecutor

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/deskpilot/pkg/command"
	"github.com/harun/deskpilot/pkg/desktop"
)

// Canonical desktop tool names.
const (
	ToolMovePointer   = "move_pointer"
	ToolClick         = "click"
	ToolTypeText      = "type_text"
	ToolPressKeys     = "press_keys"
	ToolCaptureScreen = "capture_screen"
)

// NewDesktopExecutor returns an executor with the desktop tools registered.
func NewDesktopExecutor(d *desktop.Desktop, cfg Config) (*ToolExecutor, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	te := New(cfg)
	if err := RegisterDesktopTools(te, d); err != nil {
		return nil, err
	}
	return te, nil
}

// RegisterDesktopTools registers the canonical tools backed by d.
func RegisterDesktopTools(te *ToolExecutor, d *desktop.Desktop) error {
	coords := []ToolParameter{
		{Name: "x", Type: "integer", Description: "Horizontal screen coordinate in pixels", Required: true},
		{Name: "y", Type: "integer", Description: "Vertical screen coordinate in pixels", Required: true},
	}

	defs := []ToolDefinition{
		{
			Name:        ToolMovePointer,
			Description: "Move the mouse pointer to a screen position",
			Category:    CategoryPointer,
			Parameters:  coords,
			Handler: func(ctx context.Context, params map[string]interface{}) (Output, error) {
				x, y := intParam(params, "x"), intParam(params, "y")
				if err := d.Pointer.Move(ctx, x, y, 0); err != nil {
					return Output{}, err
				}
				return Output{Text: fmt.Sprintf("Moved pointer to (%d, %d)", x, y)}, nil
			},
		},
		{
			Name:        ToolClick,
			Description: "Click at a screen position",
			Category:    CategoryPointer,
			Parameters: append(append([]ToolParameter{}, coords...), ToolParameter{
				Name:        "button",
				Type:        "string",
				Description: "Which click to perform: left (default), right or double",
				Enum:        []interface{}{"left", "right", "double"},
			}),
			Handler: func(ctx context.Context, params map[string]interface{}) (Output, error) {
				x, y := intParam(params, "x"), intParam(params, "y")
				button, _ := params["button"].(string)
				if button == "" {
					button = "left"
				}

				var err error
				switch button {
				case "right":
					err = d.Pointer.RightClick(ctx, x, y)
				case "double":
					err = d.Pointer.DoubleClick(ctx, x, y)
				default:
					err = d.Pointer.LeftClick(ctx, x, y)
				}
				if err != nil {
					return Output{}, err
				}
				return Output{Text: fmt.Sprintf("Performed %s click at (%d, %d)", button, x, y)}, nil
			},
		},
		{
			Name:        ToolTypeText,
			Description: "Type text with the keyboard",
			Category:    CategoryKeyboard,
			Parameters: []ToolParameter{
				{Name: "text", Type: "string", Description: "Text to type", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (Output, error) {
				text, _ := params["text"].(string)
				if err := d.Keyboard.Type(ctx, text); err != nil {
					return Output{}, err
				}
				return Output{Text: fmt.Sprintf("Typed %d characters", len([]rune(text)))}, nil
			},
		},
		{
			Name:        ToolPressKeys,
			Description: "Press a key, or several keys together as a shortcut",
			Category:    CategoryKeyboard,
			Parameters: []ToolParameter{
				{Name: "keys", Type: "array", Items: "string", MinItems: 1, Description: "Keys to press, e.g. [\"Control\", \"c\"]", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (Output, error) {
				keys := stringsParam(params, "keys")
				var err error
				if len(keys) == 1 {
					err = d.Keyboard.Press(ctx, keys[0])
				} else {
					err = d.Keyboard.Hotkey(ctx, keys...)
				}
				if err != nil {
					return Output{}, err
				}
				return Output{Text: "Pressed " + strings.Join(keys, "+")}, nil
			},
		},
		{
			Name:        ToolCaptureScreen,
			Description: "Capture a screenshot of the desktop",
			Category:    CategoryScreen,
			Handler: func(ctx context.Context, params map[string]interface{}) (Output, error) {
				shot, err := d.Screen.Screenshot(ctx, command.Screenshot{})
				if err != nil {
					return Output{}, err
				}
				return Output{
					Text:      fmt.Sprintf("Captured screenshot (%dx%d)", shot.Width, shot.Height),
					Image:     shot.Image,
					MediaType: shot.MediaType(),
				}, nil
			},
		},
	}

	for _, def := range defs {
		if err := te.RegisterTool(def); err != nil {
			return err
		}
	}
	return nil
}

func intParam(params map[string]interface{}, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func stringsParam(params map[string]interface{}, key string) []string {
	raw, _ := params[key].([]interface{})
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
