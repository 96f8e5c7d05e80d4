package wsclient

import (
	"sync"

	"nakula/pkg/core"
)

type pendingResult struct {
	frame *core.Frame
	err   error
}

// pendingTable correlates in-flight requests with their responses. Each
// id gets a single-buffered channel so resolution never blocks the read
// loop. Duplicate ids are rejected: pseudo ids like "subscribe" are only
// safe while one operation of that kind is in flight.
type pendingTable struct {
	mu      sync.Mutex
	waiters map[string]chan pendingResult
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		waiters: make(map[string]chan pendingResult),
	}
}

// Add registers a waiter for id. It fails with ErrDuplicateRequest when
// the id is already awaiting a response.
func (p *pendingTable) Add(id string) (<-chan pendingResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.waiters[id]; ok {
		return nil, core.ErrDuplicateRequest
	}
	ch := make(chan pendingResult, 1)
	p.waiters[id] = ch
	return ch, nil
}

// Resolve delivers the frame to the waiter for id and removes it. It
// reports whether a waiter existed.
func (p *pendingTable) Resolve(id string, frame *core.Frame) bool {
	p.mu.Lock()
	ch, ok := p.waiters[id]
	if ok {
		delete(p.waiters, id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	ch <- pendingResult{frame: frame}
	return true
}

// Remove drops the waiter for id without delivering anything. Safe to
// call after the waiter was already resolved.
func (p *pendingTable) Remove(id string) {
	p.mu.Lock()
	delete(p.waiters, id)
	p.mu.Unlock()
}

// Fail delivers err to every waiter and clears the table. It returns the
// number of waiters rejected.
func (p *pendingTable) Fail(err error) int {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = make(map[string]chan pendingResult)
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- pendingResult{err: err}
	}
	return len(waiters)
}

func (p *pendingTable) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
