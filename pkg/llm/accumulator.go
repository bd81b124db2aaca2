package llm

import (
	"encoding/json"
	"sort"
	"strings"
)

// partialCall collects the fragments of one tool call.
type partialCall struct {
	id   string
	name string
	args strings.Builder
}

// callAccumulator collects tool-call fragments keyed by stream index. It is
// used for a single stream and discarded once finalized.
type callAccumulator struct {
	calls map[int]*partialCall
}

func newCallAccumulator() *callAccumulator {
	return &callAccumulator{calls: make(map[int]*partialCall)}
}

func (a *callAccumulator) get(index int) *partialCall {
	pc, ok := a.calls[index]
	if !ok {
		pc = &partialCall{}
		a.calls[index] = pc
	}
	return pc
}

// start records the id and name of the call at index. Later fragments with
// an empty id or name leave the recorded ones in place.
func (a *callAccumulator) start(index int, id, name string) {
	pc := a.get(index)
	if id != "" {
		pc.id = id
	}
	if name != "" {
		pc.name = name
	}
}

func (a *callAccumulator) appendArgs(index int, fragment string) {
	a.get(index).args.WriteString(fragment)
}

func (a *callAccumulator) len() int {
	return len(a.calls)
}

// finalize returns the calls in index order. Empty arguments become {} and
// arguments that do not parse are passed on as a JSON string so the tool
// layer can reject them.
func (a *callAccumulator) finalize() ([]ToolCall, []int) {
	indexes := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]ToolCall, 0, len(indexes))
	var malformed []int
	for _, idx := range indexes {
		pc := a.calls[idx]
		if pc.name == "" {
			malformed = append(malformed, idx)
			continue
		}
		raw := strings.TrimSpace(pc.args.String())
		var args json.RawMessage
		switch {
		case raw == "":
			args = json.RawMessage(`{}`)
		case json.Valid([]byte(raw)):
			args = json.RawMessage(raw)
		default:
			args, _ = json.Marshal(raw)
			malformed = append(malformed, idx)
		}
		calls = append(calls, ToolCall{ID: pc.id, Name: pc.name, Arguments: args})
	}
	return calls, malformed
}
