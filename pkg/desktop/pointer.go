package desktop

import (
	"context"
	"time"

	"github.com/harun/deskpilot/pkg/command"
)

// Mouse buttons.
const (
	ButtonLeft   = "left"
	ButtonRight  = "right"
	ButtonMiddle = "middle"
)

// Pointer drives the mouse.
type Pointer struct {
	d Dispatcher
}

// LeftClick clicks the left button at (x, y).
func (p *Pointer) LeftClick(ctx context.Context, x, y int) error {
	return do(ctx, p.d, command.PointerLeftClick, command.At(x, y))
}

// RightClick clicks the right button at (x, y).
func (p *Pointer) RightClick(ctx context.Context, x, y int) error {
	return do(ctx, p.d, command.PointerRightClick, command.At(x, y))
}

// DoubleClick double-clicks the left button at (x, y).
func (p *Pointer) DoubleClick(ctx context.Context, x, y int) error {
	return do(ctx, p.d, command.PointerDoubleClick, command.At(x, y))
}

// Move moves the pointer to (x, y) over duration.
func (p *Pointer) Move(ctx context.Context, x, y int, duration time.Duration) error {
	return do(ctx, p.d, command.PointerMove, command.Move{X: x, Y: y, DurationMs: int(duration.Milliseconds())})
}

// Down presses button without releasing it.
func (p *Pointer) Down(ctx context.Context, button string) error {
	return do(ctx, p.d, command.PointerDown, command.Button{Button: button})
}

// Up releases button.
func (p *Pointer) Up(ctx context.Context, button string) error {
	return do(ctx, p.d, command.PointerUp, command.Button{Button: button})
}

// Scroll scrolls by the given deltas at the current position.
func (p *Pointer) Scroll(ctx context.Context, deltaX, deltaY int) error {
	return do(ctx, p.d, command.PointerScroll, command.Scroll{DeltaX: deltaX, DeltaY: deltaY})
}

// ScrollAt scrolls by the given deltas at (x, y).
func (p *Pointer) ScrollAt(ctx context.Context, x, y, deltaX, deltaY int) error {
	return do(ctx, p.d, command.PointerScroll, command.Scroll{X: &x, Y: &y, DeltaX: deltaX, DeltaY: deltaY})
}

// MovePath moves the pointer through points over duration.
func (p *Pointer) MovePath(ctx context.Context, points []command.Point, duration time.Duration) error {
	return do(ctx, p.d, command.PointerMovePath, command.MovePath{Points: points, DurationMs: int(duration.Milliseconds())})
}

// Drag drags from one point to another with the left button.
func (p *Pointer) Drag(ctx context.Context, from, to command.Point) error {
	return do(ctx, p.d, command.PointerDrag, command.Drag{From: from, To: to, Button: ButtonLeft})
}

// DragTo drags from the current position to (x, y).
func (p *Pointer) DragTo(ctx context.Context, x, y int, duration time.Duration) error {
	return do(ctx, p.d, command.PointerDragTo, command.Move{X: x, Y: y, DurationMs: int(duration.Milliseconds())})
}

// Position returns the pointer location.
func (p *Pointer) Position(ctx context.Context) (Position, error) {
	return query[Position](ctx, p.d, command.PointerGetPosition, command.Empty{})
}
