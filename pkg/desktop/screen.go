package desktop

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/harun/deskpilot/pkg/command"
)

// Screen captures the display.
type Screen struct {
	d Dispatcher
}

// Screenshot captures the screen. Missing dimensions are read from the
// image header.
func (s *Screen) Screenshot(ctx context.Context, opts command.Screenshot) (ScreenshotResult, error) {
	res, err := query[ScreenshotResult](ctx, s.d, command.ScreenScreenshot, opts)
	if err != nil {
		return res, err
	}
	if res.Width == 0 || res.Height == 0 {
		if cfg, format, err := image.DecodeConfig(bytes.NewReader(res.Image)); err == nil {
			res.Width, res.Height = cfg.Width, cfg.Height
			if res.Format == "" {
				res.Format = format
			}
		}
	}
	return res, nil
}

// Size returns the screen size.
func (s *Screen) Size(ctx context.Context) (Size, error) {
	return query[Size](ctx, s.d, command.ScreenGetSize, command.Empty{})
}
