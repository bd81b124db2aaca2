package command

// Empty is the payload of commands that take no arguments.
type Empty struct{}

// Point is a screen coordinate in pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is a screen region in pixels.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Click is the payload of pointer.leftClick, pointer.rightClick and
// pointer.doubleClick. A nil position clicks at the current pointer location.
type Click struct {
	X *int `json:"x,omitempty"`
	Y *int `json:"y,omitempty"`
}

// At builds a click payload at the given position.
func At(x, y int) Click {
	return Click{X: &x, Y: &y}
}

// Move is the payload of pointer.move and pointer.dragTo.
type Move struct {
	X          int `json:"x"`
	Y          int `json:"y"`
	DurationMs int `json:"durationMs,omitempty"`
}

// Button is the payload of pointer.down and pointer.up.
type Button struct {
	Button string `json:"button,omitempty"`
}

// Scroll is the payload of pointer.scroll.
type Scroll struct {
	X      *int `json:"x,omitempty"`
	Y      *int `json:"y,omitempty"`
	DeltaX int  `json:"deltaX"`
	DeltaY int  `json:"deltaY"`
}

// MovePath is the payload of pointer.movePath.
type MovePath struct {
	Points     []Point `json:"points"`
	DurationMs int     `json:"durationMs,omitempty"`
}

// Drag is the payload of pointer.drag.
type Drag struct {
	From   Point  `json:"from"`
	To     Point  `json:"to"`
	Button string `json:"button,omitempty"`
}

// TypeText is the payload of keyboard.type.
type TypeText struct {
	Text    string `json:"text"`
	DelayMs int    `json:"delayMs,omitempty"`
}

// Key is the payload of keyboard.press, keyboard.down and keyboard.up.
type Key struct {
	Key string `json:"key"`
}

// Hotkey is the payload of keyboard.hotkey.
type Hotkey struct {
	Keys []string `json:"keys"`
}

// Screenshot is the payload of screen.screenshot.
type Screenshot struct {
	Format  string `json:"format,omitempty"`
	Quality int    `json:"quality,omitempty"`
	Region  *Rect  `json:"region,omitempty"`
}

// ClipboardText is the payload of clipboard.set.
type ClipboardText struct {
	Text string `json:"text"`
}

// FileData is an in-memory file.
type FileData struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// ClipboardFiles is the payload of clipboard.setFiles.
type ClipboardFiles struct {
	Files []FileData `json:"files"`
}

// Paths is the payload of clipboard.setFilesFromPaths.
type Paths struct {
	Paths []string `json:"paths"`
}

// ImageURL is the payload of clipboard.setImageFromUrl.
type ImageURL struct {
	URL string `json:"url"`
}

// ImageBytes is the payload of clipboard.setImageFromBytes.
type ImageBytes struct {
	Data   []byte `json:"data"`
	Format string `json:"format,omitempty"`
}

// Path is the payload of file commands addressing a single path.
type Path struct {
	Path string `json:"path"`
}

// WriteText is the payload of files.writeText.
type WriteText struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

// WriteBytes is the payload of files.writeBytes.
type WriteBytes struct {
	Path string `json:"path"`
	Data []byte `json:"data"`
}

// Directory is the payload of files.deleteDirectory and files.listDirectory.
type Directory struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive,omitempty"`
}

// Window is the payload of commands addressing a single window.
type Window struct {
	WindowID string `json:"windowId"`
}
