package desktop

import (
	"context"

	"github.com/harun/deskpilot/pkg/command"
)

// Files manages the remote file system.
type Files struct {
	d Dispatcher
}

func (f *Files) Exists(ctx context.Context, path string) (bool, error) {
	res, err := query[existsResult](ctx, f.d, command.FilesExists, command.Path{Path: path})
	return res.Exists, err
}

func (f *Files) ReadText(ctx context.Context, path string) (string, error) {
	res, err := query[textResult](ctx, f.d, command.FilesReadText, command.Path{Path: path})
	return res.Text, err
}

func (f *Files) WriteText(ctx context.Context, path, text string) error {
	return do(ctx, f.d, command.FilesWriteText, command.WriteText{Path: path, Text: text})
}

func (f *Files) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	res, err := query[dataResult](ctx, f.d, command.FilesReadBytes, command.Path{Path: path})
	return res.Data, err
}

func (f *Files) WriteBytes(ctx context.Context, path string, data []byte) error {
	return do(ctx, f.d, command.FilesWriteBytes, command.WriteBytes{Path: path, Data: data})
}

func (f *Files) Delete(ctx context.Context, path string) error {
	return do(ctx, f.d, command.FilesDelete, command.Path{Path: path})
}

func (f *Files) DirectoryExists(ctx context.Context, path string) (bool, error) {
	res, err := query[existsResult](ctx, f.d, command.FilesDirectoryExists, command.Path{Path: path})
	return res.Exists, err
}

func (f *Files) CreateDirectory(ctx context.Context, path string) error {
	return do(ctx, f.d, command.FilesCreateDirectory, command.Path{Path: path})
}

func (f *Files) DeleteDirectory(ctx context.Context, path string, recursive bool) error {
	return do(ctx, f.d, command.FilesDeleteDirectory, command.Directory{Path: path, Recursive: recursive})
}

func (f *Files) ListDirectory(ctx context.Context, path string, recursive bool) ([]DirectoryEntry, error) {
	res, err := query[entriesResult](ctx, f.d, command.FilesListDirectory, command.Directory{Path: path, Recursive: recursive})
	return res.Entries, err
}
