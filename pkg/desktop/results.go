package desktop

import (
	"strings"

	"github.com/harun/deskpilot/pkg/command"
)

// Position is the pointer location.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a screen size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ScreenshotResult is a captured screen image.
type ScreenshotResult struct {
	Image  []byte `json:"image"`
	Format string `json:"format,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// MediaType returns the MIME type of the image.
func (r ScreenshotResult) MediaType() string { return MediaType(r.Format) }

// MediaType maps an image format name to its MIME type. Unknown formats are
// reported as PNG, the peer's default.
func MediaType(format string) string {
	switch strings.ToLower(format) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	}
	return "image/png"
}

// ClipboardImage is an image held by the clipboard.
type ClipboardImage struct {
	Data   []byte `json:"data"`
	Format string `json:"format,omitempty"`
}

// DirectoryEntry is one listDirectory item.
type DirectoryEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	IsDirectory bool   `json:"isDirectory"`
	Size        int64  `json:"size,omitempty"`
	ModifiedAt  int64  `json:"modifiedAt,omitempty"`
}

// WindowInfo describes a top-level window.
type WindowInfo struct {
	ID          string       `json:"windowId"`
	Title       string       `json:"title"`
	ProcessName string       `json:"processName,omitempty"`
	Bounds      command.Rect `json:"bounds"`
	Focused     bool         `json:"focused,omitempty"`
	Minimized   bool         `json:"minimized,omitempty"`
	Maximized   bool         `json:"maximized,omitempty"`
}

type textResult struct {
	Text string `json:"text"`
}

type existsResult struct {
	Exists bool `json:"exists"`
}

type dataResult struct {
	Data []byte `json:"data"`
}

type filesResult struct {
	Files []command.FileData `json:"files"`
}

type contentTypeResult struct {
	ContentType string `json:"contentType"`
}

type entriesResult struct {
	Entries []DirectoryEntry `json:"entries"`
}

type windowIDResult struct {
	WindowID string `json:"windowId"`
}

type windowsResult struct {
	Windows []WindowInfo `json:"windows"`
}
