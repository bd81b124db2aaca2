package desktop

import (
	"context"

	"github.com/harun/deskpilot/pkg/command"
)

// Clipboard reads and writes the clipboard.
type Clipboard struct {
	d Dispatcher
}

func (c *Clipboard) Text(ctx context.Context) (string, error) {
	res, err := query[textResult](ctx, c.d, command.ClipboardGet, command.Empty{})
	return res.Text, err
}

func (c *Clipboard) SetText(ctx context.Context, text string) error {
	return do(ctx, c.d, command.ClipboardSet, command.ClipboardText{Text: text})
}

func (c *Clipboard) SetFiles(ctx context.Context, files []command.FileData) error {
	return do(ctx, c.d, command.ClipboardSetFiles, command.ClipboardFiles{Files: files})
}

func (c *Clipboard) SetFilesFromPaths(ctx context.Context, paths ...string) error {
	return do(ctx, c.d, command.ClipboardSetFilesFromPaths, command.Paths{Paths: paths})
}

func (c *Clipboard) Files(ctx context.Context) ([]command.FileData, error) {
	res, err := query[filesResult](ctx, c.d, command.ClipboardGetFiles, command.Empty{})
	return res.Files, err
}

func (c *Clipboard) SetImageFromURL(ctx context.Context, url string) error {
	return do(ctx, c.d, command.ClipboardSetImageFromURL, command.ImageURL{URL: url})
}

func (c *Clipboard) SetImageFromBytes(ctx context.Context, data []byte, format string) error {
	return do(ctx, c.d, command.ClipboardSetImageFromBytes, command.ImageBytes{Data: data, Format: format})
}

func (c *Clipboard) Image(ctx context.Context) (ClipboardImage, error) {
	return query[ClipboardImage](ctx, c.d, command.ClipboardGetImage, command.Empty{})
}

// ContentType returns the MIME type of the clipboard content.
func (c *Clipboard) ContentType(ctx context.Context) (string, error) {
	res, err := query[contentTypeResult](ctx, c.d, command.ClipboardGetContentType, command.Empty{})
	return res.ContentType, err
}
