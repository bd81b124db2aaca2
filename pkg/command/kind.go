package command

import "strings"

// Kind is the wire discriminator of a command.
type Kind string

// Pointer commands
const (
	PointerLeftClick   Kind = "pointer.leftClick"
	PointerRightClick  Kind = "pointer.rightClick"
	PointerDoubleClick Kind = "pointer.doubleClick"
	PointerMove        Kind = "pointer.move"
	PointerDown        Kind = "pointer.down"
	PointerUp          Kind = "pointer.up"
	PointerScroll      Kind = "pointer.scroll"
	PointerMovePath    Kind = "pointer.movePath"
	PointerDrag        Kind = "pointer.drag"
	PointerDragTo      Kind = "pointer.dragTo"
	PointerGetPosition Kind = "pointer.getPosition"
)

// Keyboard commands
const (
	KeyboardType   Kind = "keyboard.type"
	KeyboardPress  Kind = "keyboard.press"
	KeyboardHotkey Kind = "keyboard.hotkey"
	KeyboardDown   Kind = "keyboard.down"
	KeyboardUp     Kind = "keyboard.up"
)

// Screen commands
const (
	ScreenScreenshot Kind = "screen.screenshot"
	ScreenGetSize    Kind = "screen.getSize"
)

// Clipboard commands
const (
	ClipboardGet               Kind = "clipboard.get"
	ClipboardSet               Kind = "clipboard.set"
	ClipboardSetFiles          Kind = "clipboard.setFiles"
	ClipboardSetFilesFromPaths Kind = "clipboard.setFilesFromPaths"
	ClipboardGetFiles          Kind = "clipboard.getFiles"
	ClipboardSetImageFromURL   Kind = "clipboard.setImageFromUrl"
	ClipboardSetImageFromBytes Kind = "clipboard.setImageFromBytes"
	ClipboardGetImage          Kind = "clipboard.getImage"
	ClipboardGetContentType    Kind = "clipboard.getContentType"
)

// File commands
const (
	FilesExists          Kind = "files.exists"
	FilesReadText        Kind = "files.readText"
	FilesWriteText       Kind = "files.writeText"
	FilesReadBytes       Kind = "files.readBytes"
	FilesWriteBytes      Kind = "files.writeBytes"
	FilesDelete          Kind = "files.delete"
	FilesDirectoryExists Kind = "files.directoryExists"
	FilesCreateDirectory Kind = "files.createDirectory"
	FilesDeleteDirectory Kind = "files.deleteDirectory"
	FilesListDirectory   Kind = "files.listDirectory"
)

// Window commands
const (
	WindowsGetActiveID Kind = "windows.getActiveId"
	WindowsGetInfo     Kind = "windows.getInfo"
	WindowsActivate    Kind = "windows.activate"
	WindowsClose       Kind = "windows.close"
	WindowsMaximize    Kind = "windows.maximize"
	WindowsMinimize    Kind = "windows.minimize"
	WindowsRestore     Kind = "windows.restore"
	WindowsList        Kind = "windows.list"
)

// Capability returns the capability group of the kind, e.g. "pointer".
func (k Kind) Capability() string {
	group, _, ok := strings.Cut(string(k), ".")
	if !ok {
		return ""
	}
	return group
}

// LongRunning reports whether the command may legitimately take longer than
// the default request timeout.
func (k Kind) LongRunning() bool {
	switch k {
	case ScreenScreenshot, ClipboardSetImageFromURL, FilesReadBytes, FilesWriteBytes:
		return true
	default:
		return false
	}
}
