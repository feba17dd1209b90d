package transport

import (
	"errors"
	"sync"

	"plot-go/internal/plot"
)

// ErrClosed is returned by Send on a closed transport.
var ErrClosed = errors.New("transport closed")

// MemoryHub connects in-process endpoints by room, the way a cross-tab
// broadcast channel connects tabs. Each endpoint receives on its own
// goroutine, so a handler may send from inside a delivery.
type MemoryHub struct {
	mu    sync.Mutex
	rooms map[string]map[*MemoryEndpoint]struct{}
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{rooms: map[string]map[*MemoryEndpoint]struct{}{}}
}

// Join adds an endpoint to room. It only receives deltas sent after it
// joined.
func (h *MemoryHub) Join(room string) *MemoryEndpoint {
	e := &MemoryEndpoint{
		hub:   h,
		room:  room,
		inbox: NewInbox(),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = map[*MemoryEndpoint]struct{}{}
	}
	h.rooms[room][e] = struct{}{}
	h.mu.Unlock()

	go e.run()
	return e
}

func (h *MemoryHub) peers(room string, except *MemoryEndpoint) []*MemoryEndpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*MemoryEndpoint
	for e := range h.rooms[room] {
		if e != except {
			out = append(out, e)
		}
	}
	return out
}

func (h *MemoryHub) leave(e *MemoryEndpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[e.room], e)
	if len(h.rooms[e.room]) == 0 {
		delete(h.rooms, e.room)
	}
}

// MemoryEndpoint is one replica's connection to a MemoryHub.
type MemoryEndpoint struct {
	hub   *MemoryHub
	room  string
	inbox *Inbox

	mu      sync.Mutex
	mailbox [][]byte
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// Send delivers a copy of delta to every other endpoint in the room.
func (e *MemoryEndpoint) Send(delta []byte) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	for _, peer := range e.hub.peers(e.room, e) {
		peer.post(append([]byte(nil), delta...))
	}
	return nil
}

func (e *MemoryEndpoint) OnReceive(handler func([]byte)) {
	e.inbox.OnReceive(handler)
}

func (e *MemoryEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mailbox = nil
	e.mu.Unlock()

	e.hub.leave(e)
	close(e.done)
	e.inbox.Close()
	return nil
}

func (e *MemoryEndpoint) post(delta []byte) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.mailbox = append(e.mailbox, delta)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *MemoryEndpoint) run() {
	for {
		select {
		case <-e.done:
			return
		case <-e.wake:
		}
		for {
			e.mu.Lock()
			if len(e.mailbox) == 0 || e.closed {
				e.mu.Unlock()
				break
			}
			delta := e.mailbox[0]
			e.mailbox = e.mailbox[1:]
			e.mu.Unlock()
			e.inbox.Deliver(delta)
		}
	}
}

var _ plot.Transport = (*MemoryEndpoint)(nil)
