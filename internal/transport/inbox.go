// Package transport carries opaque update deltas between replicas.
package transport

import "sync"

// Inbox holds deliveries until a handler is registered, then flushes them
// to it in arrival order. Later deliveries go straight to the handler.
// Deliveries are serialized: the handler is never called concurrently.
type Inbox struct {
	deliverMu sync.Mutex

	mu      sync.Mutex
	handler func([]byte)
	queue   [][]byte
	closed  bool
}

func NewInbox() *Inbox {
	return &Inbox{}
}

// Deliver hands delta to the handler, or queues it if there is none yet.
func (in *Inbox) Deliver(delta []byte) {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	if in.handler == nil {
		in.queue = append(in.queue, delta)
		in.mu.Unlock()
		return
	}
	in.mu.Unlock()

	in.deliverMu.Lock()
	defer in.deliverMu.Unlock()
	in.mu.Lock()
	h := in.handler
	in.mu.Unlock()
	if h != nil {
		h(delta)
	}
}

// OnReceive registers handler and flushes anything queued. Registering a
// new handler replaces the old one.
func (in *Inbox) OnReceive(handler func([]byte)) {
	in.deliverMu.Lock()
	defer in.deliverMu.Unlock()

	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.handler = handler
	queued := in.queue
	in.queue = nil
	in.mu.Unlock()

	for _, delta := range queued {
		handler(delta)
	}
}

// Pending returns the number of queued deliveries.
func (in *Inbox) Pending() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.queue)
}

// Close discards anything queued and drops later deliveries.
func (in *Inbox) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
	in.queue = nil
	in.handler = nil
}
