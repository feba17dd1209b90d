// Package crdt is a small operation-based replicated document: maps whose
// keys are last-writer-wins registers and sequences ordered as a replicated
// growable array. Every op carries its producer's (client, seq) pair, so
// duplicated and reordered deliveries are absorbed, and ops that refer to
// something not seen yet are parked until it arrives.
package crdt

import (
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"plot-go/internal/plot"
)

type entry struct {
	ts      Timestamp
	id      ID
	value   Value
	deleted bool
}

type mapState struct {
	entries map[string]*entry
}

type element struct {
	id      ID
	ts      Timestamp
	value   Value
	deleted bool
}

type arrayState struct {
	elems []*element
	byID  map[ID]*element
}

// Doc is one replica. It is safe for concurrent use. Update listeners are
// called without the lock held and may read the document.
type Doc struct {
	mu      sync.Mutex
	client  string
	lamport uint64
	clock   map[string]uint64
	log     map[string][]Op
	maps    map[ID]*mapState
	arrays  map[ID]*arrayState
	parked  []Op

	txDepth int
	pending []Op

	listeners    map[int]func(update []byte, local bool)
	nextListener int
}

// NewDoc creates an empty replica. An empty clientID is replaced with a
// random one.
func NewDoc(clientID string) *Doc {
	if clientID == "" {
		clientID = uuid.New().String()
	}
	return &Doc{
		client:    clientID,
		clock:     map[string]uint64{},
		log:       map[string][]Op{},
		maps:      map[ID]*mapState{{}: {entries: map[string]*entry{}}},
		arrays:    map[ID]*arrayState{},
		listeners: map[int]func([]byte, bool){},
	}
}

// Factory returns a DocFactory whose replicas take their ids from idgen.
func Factory(idgen plot.IDGenerator) plot.DocFactory {
	return func() plot.ReplicatedDoc {
		return NewDoc(idgen.New())
	}
}

func (d *Doc) ClientID() string {
	return d.client
}

func (d *Doc) Root() plot.SharedMap {
	return &Map{doc: d}
}

// Transact groups the mutations made while fn runs into a single update.
// Transactions nest; the update is emitted when the outermost one returns.
func (d *Doc) Transact(fn func()) {
	d.mu.Lock()
	d.txDepth++
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.txDepth--
		d.mu.Unlock()
		d.flush()
	}()
	fn()
}

// Parked returns how many received ops are waiting on something not yet
// integrated.
func (d *Doc) Parked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.parked)
}

func (d *Doc) StateVector() ([]byte, error) {
	d.mu.Lock()
	sv := make(map[string]uint64, len(d.clock))
	for c, n := range d.clock {
		sv[c] = n
	}
	d.mu.Unlock()
	return encodeStateVector(sv)
}

func (d *Doc) EncodeStateAsUpdate(stateVector []byte) ([]byte, error) {
	remote, err := decodeStateVector(stateVector)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	clients := make([]string, 0, len(d.log))
	for c := range d.log {
		clients = append(clients, c)
	}
	sort.Strings(clients)
	var ops []Op
	for _, c := range clients {
		have := remote[c]
		if have < uint64(len(d.log[c])) {
			ops = append(ops, d.log[c][have:]...)
		}
	}
	d.mu.Unlock()

	if ops == nil {
		ops = []Op{}
	}
	return encodeUpdate(ops)
}

func (d *Doc) ApplyUpdate(data []byte) error {
	ops, err := decodeUpdate(data)
	if err != nil {
		return err
	}

	d.mu.Lock()
	applied := d.integrate(ops)
	listeners := d.snapshotListeners()
	d.mu.Unlock()

	if len(applied) == 0 {
		return nil
	}
	out, err := encodeUpdate(applied)
	if err != nil {
		return err
	}
	for _, fn := range listeners {
		fn(out, false)
	}
	return nil
}

func (d *Doc) OnUpdate(fn func(update []byte, local bool)) (cancel func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextListener
	d.nextListener++
	d.listeners[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}

func (d *Doc) snapshotListeners() []func([]byte, bool) {
	ids := make([]int, 0, len(d.listeners))
	for id := range d.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func([]byte, bool), len(ids))
	for i, id := range ids {
		fns[i] = d.listeners[id]
	}
	return fns
}

// integrate applies every op that is ready, retrying parked ops until no
// more progress is made. Duplicates are dropped. Called with mu held.
func (d *Doc) integrate(ops []Op) []Op {
	queue := append(d.parked, ops...)
	d.parked = nil

	var applied []Op
	for progress := true; progress; {
		progress = false
		rest := queue[:0:0]
		for _, op := range queue {
			have := d.clock[op.Client]
			switch {
			case op.Seq <= have:
			case op.Seq == have+1 && d.ready(op):
				d.apply(op)
				applied = append(applied, op)
				progress = true
			default:
				rest = append(rest, op)
			}
		}
		queue = rest
	}

	// Keep one copy of each parked op.
	seen := map[ID]bool{}
	for _, op := range queue {
		if !seen[op.id()] {
			seen[op.id()] = true
			d.parked = append(d.parked, op)
		}
	}
	return applied
}

// ready reports whether everything op refers to has been integrated.
func (d *Doc) ready(op Op) bool {
	switch op.Kind {
	case OpSet, OpDelete:
		if _, ok := d.maps[op.Container]; ok {
			return true
		}
		_, wrongKind := d.arrays[op.Container]
		return wrongKind
	case OpInsert, OpRemove:
		a, ok := d.arrays[op.Container]
		if !ok {
			_, wrongKind := d.maps[op.Container]
			return wrongKind
		}
		if op.Kind == OpInsert {
			return op.Origin.IsZero() || a.byID[op.Origin] != nil
		}
		return a.byID[op.Target] != nil
	}
	return false
}

// apply integrates a ready op. Ops addressed to a container of the wrong
// kind advance the clock but change nothing. Called with mu held.
func (d *Doc) apply(op Op) {
	if op.Lamport > d.lamport {
		d.lamport = op.Lamport
	}
	d.clock[op.Client] = op.Seq
	d.log[op.Client] = append(d.log[op.Client], op)

	if op.Kind == OpSet || op.Kind == OpInsert {
		switch op.Value.Kind {
		case KindMap:
			d.maps[op.id()] = &mapState{entries: map[string]*entry{}}
		case KindArray:
			d.arrays[op.id()] = &arrayState{byID: map[ID]*element{}}
		}
	}

	switch op.Kind {
	case OpSet, OpDelete:
		m, ok := d.maps[op.Container]
		if !ok {
			return
		}
		current := m.entries[op.Key]
		if current != nil && !current.ts.Less(op.timestamp()) {
			return
		}
		m.entries[op.Key] = &entry{ts: op.timestamp(), id: op.id(), value: op.Value, deleted: op.Kind == OpDelete}
	case OpInsert:
		a, ok := d.arrays[op.Container]
		if !ok {
			return
		}
		a.insert(&element{id: op.id(), ts: op.timestamp(), value: op.Value}, op.Origin)
	case OpRemove:
		a, ok := d.arrays[op.Container]
		if !ok {
			return
		}
		a.byID[op.Target].deleted = true
	}
}

// insert places e after origin, skipping any elements that were inserted
// concurrently at the same place with a later timestamp.
func (a *arrayState) insert(e *element, origin ID) {
	i := 0
	if !origin.IsZero() {
		i = slices.Index(a.elems, a.byID[origin]) + 1
	}
	for i < len(a.elems) && e.ts.Less(a.elems[i].ts) {
		i++
	}
	a.elems = slices.Insert(a.elems, i, e)
	a.byID[e.id] = e
}

// visible returns the live elements in order.
func (a *arrayState) visible() []*element {
	out := make([]*element, 0, len(a.elems))
	for _, e := range a.elems {
		if !e.deleted {
			out = append(out, e)
		}
	}
	return out
}

// local stamps and applies an op produced by this replica, queueing it for
// the next emitted update. Called with mu held.
func (d *Doc) local(op Op) Op {
	d.lamport++
	op.Client = d.client
	op.Seq = d.clock[d.client] + 1
	op.Lamport = d.lamport
	d.apply(op)
	d.pending = append(d.pending, op)
	return op
}

// flush emits pending local ops unless a transaction is open.
func (d *Doc) flush() {
	d.mu.Lock()
	if d.txDepth > 0 || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	ops := d.pending
	d.pending = nil
	listeners := d.snapshotListeners()
	d.mu.Unlock()

	data, err := encodeUpdate(ops)
	if err != nil {
		return
	}
	for _, fn := range listeners {
		fn(data, true)
	}
}

// Snapshot returns the live document as plain Go values: map[string]any,
// []any and scalars.
func (d *Doc) Snapshot() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotMap(ID{})
}

func (d *Doc) snapshotMap(id ID) map[string]any {
	out := map[string]any{}
	for k, e := range d.maps[id].entries {
		if !e.deleted {
			out[k] = d.snapshotValue(e.id, e.value)
		}
	}
	return out
}

func (d *Doc) snapshotValue(id ID, v Value) any {
	switch v.Kind {
	case KindMap:
		return d.snapshotMap(id)
	case KindArray:
		elems := d.arrays[id].visible()
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = d.snapshotValue(e.id, e.value)
		}
		return out
	default:
		return v.scalar()
	}
}

var _ plot.ReplicatedDoc = (*Doc)(nil)
