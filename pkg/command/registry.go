package command

import (
	"encoding/json"
	"fmt"
	"sort"
)

var registry = map[Kind]func() any{
	PointerLeftClick:   func() any { return &Click{} },
	PointerRightClick:  func() any { return &Click{} },
	PointerDoubleClick: func() any { return &Click{} },
	PointerMove:        func() any { return &Move{} },
	PointerDown:        func() any { return &Button{} },
	PointerUp:          func() any { return &Button{} },
	PointerScroll:      func() any { return &Scroll{} },
	PointerMovePath:    func() any { return &MovePath{} },
	PointerDrag:        func() any { return &Drag{} },
	PointerDragTo:      func() any { return &Move{} },
	PointerGetPosition: func() any { return &Empty{} },

	KeyboardType:   func() any { return &TypeText{} },
	KeyboardPress:  func() any { return &Key{} },
	KeyboardHotkey: func() any { return &Hotkey{} },
	KeyboardDown:   func() any { return &Key{} },
	KeyboardUp:     func() any { return &Key{} },

	ScreenScreenshot: func() any { return &Screenshot{} },
	ScreenGetSize:    func() any { return &Empty{} },

	ClipboardGet:               func() any { return &Empty{} },
	ClipboardSet:               func() any { return &ClipboardText{} },
	ClipboardSetFiles:          func() any { return &ClipboardFiles{} },
	ClipboardSetFilesFromPaths: func() any { return &Paths{} },
	ClipboardGetFiles:          func() any { return &Empty{} },
	ClipboardSetImageFromURL:   func() any { return &ImageURL{} },
	ClipboardSetImageFromBytes: func() any { return &ImageBytes{} },
	ClipboardGetImage:          func() any { return &Empty{} },
	ClipboardGetContentType:    func() any { return &Empty{} },

	FilesExists:          func() any { return &Path{} },
	FilesReadText:        func() any { return &Path{} },
	FilesWriteText:       func() any { return &WriteText{} },
	FilesReadBytes:       func() any { return &Path{} },
	FilesWriteBytes:      func() any { return &WriteBytes{} },
	FilesDelete:          func() any { return &Path{} },
	FilesDirectoryExists: func() any { return &Path{} },
	FilesCreateDirectory: func() any { return &Path{} },
	FilesDeleteDirectory: func() any { return &Directory{} },
	FilesListDirectory:   func() any { return &Directory{} },

	WindowsGetActiveID: func() any { return &Empty{} },
	WindowsGetInfo:     func() any { return &Window{} },
	WindowsActivate:    func() any { return &Window{} },
	WindowsClose:       func() any { return &Window{} },
	WindowsMaximize:    func() any { return &Window{} },
	WindowsMinimize:    func() any { return &Window{} },
	WindowsRestore:     func() any { return &Window{} },
	WindowsList:        func() any { return &Empty{} },
}

// Known reports whether kind is a registered command kind.
func Known(kind Kind) bool {
	_, ok := registry[kind]
	return ok
}

// Kinds returns every registered kind in lexical order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// NewPayload returns a pointer to a zero payload for kind.
func NewPayload(kind Kind) (any, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown command kind: %s", kind)
	}
	return factory(), nil
}

// DecodePayload decodes raw into the payload type registered for kind.
func DecodePayload(kind Kind, raw json.RawMessage) (any, error) {
	payload, err := NewPayload(kind)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return payload, nil
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("invalid payload for %s: %w", kind, err)
	}
	return payload, nil
}
