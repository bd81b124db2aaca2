package channel

import (
	"encoding/json"
	"fmt"
	"sync"
)

type outcome struct {
	result json.RawMessage
	err    error
}

type pendingRequest struct {
	id   string
	done chan outcome
}

// pendingTable tracks in-flight requests by id. An entry resolves at most
// once; later outcomes for the same id are dropped.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
	onSize  func(int)
}

func newPendingTable(onSize func(int)) *pendingTable {
	return &pendingTable{
		entries: make(map[string]*pendingRequest),
		onSize:  onSize,
	}
}

func (t *pendingTable) register(id string) (*pendingRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return nil, fmt.Errorf("duplicate request id: %s", id)
	}
	req := &pendingRequest{id: id, done: make(chan outcome, 1)}
	t.entries[id] = req
	t.sizeChanged()
	return req, nil
}

// resolve delivers out to the waiter for id and removes it. It reports
// whether a waiter existed.
func (t *pendingTable) resolve(id string, out outcome) bool {
	t.mu.Lock()
	req, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
		t.sizeChanged()
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	req.done <- out
	return true
}

func (t *pendingTable) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; ok {
		delete(t.entries, id)
		t.sizeChanged()
	}
}

func (t *pendingTable) failAll(err error) int {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*pendingRequest)
	t.sizeChanged()
	t.mu.Unlock()

	for _, req := range entries {
		req.done <- outcome{err: err}
	}
	return len(entries)
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *pendingTable) sizeChanged() {
	if t.onSize != nil {
		t.onSize(len(t.entries))
	}
}
