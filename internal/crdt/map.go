package crdt

import (
	"sort"

	"plot-go/internal/plot"
)

// Map is a handle on a replicated map inside a Doc.
type Map struct {
	doc *Doc
	id  ID
}

// ID returns the id of the op that created the map. The root map's id is
// the zero ID.
func (m *Map) ID() ID {
	return m.id
}

func (m *Map) Get(key string) (any, bool) {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()

	e := m.state().entries[key]
	if e == nil || e.deleted {
		return nil, false
	}
	return m.doc.handle(e.id, e.value), true
}

func (m *Map) Set(key string, value any) {
	v := scalar(value)
	m.doc.mu.Lock()
	m.doc.local(Op{Kind: OpSet, Container: m.id, Key: key, Value: v})
	m.doc.mu.Unlock()
	m.doc.flush()
}

func (m *Map) SetMap(key string) plot.SharedMap {
	m.doc.mu.Lock()
	op := m.doc.local(Op{Kind: OpSet, Container: m.id, Key: key, Value: Value{Kind: KindMap}})
	m.doc.mu.Unlock()
	m.doc.flush()
	return &Map{doc: m.doc, id: op.id()}
}

func (m *Map) SetArray(key string) plot.SharedArray {
	m.doc.mu.Lock()
	op := m.doc.local(Op{Kind: OpSet, Container: m.id, Key: key, Value: Value{Kind: KindArray}})
	m.doc.mu.Unlock()
	m.doc.flush()
	return &Array{doc: m.doc, id: op.id()}
}

// Delete removes key. Deleting an absent key is a no-op and produces no op.
func (m *Map) Delete(key string) {
	m.doc.mu.Lock()
	e := m.state().entries[key]
	if e == nil || e.deleted {
		m.doc.mu.Unlock()
		return
	}
	m.doc.local(Op{Kind: OpDelete, Container: m.id, Key: key})
	m.doc.mu.Unlock()
	m.doc.flush()
}

func (m *Map) Keys() []string {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()

	keys := make([]string, 0, len(m.state().entries))
	for k, e := range m.state().entries {
		if !e.deleted {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *Map) Len() int {
	return len(m.Keys())
}

func (m *Map) state() *mapState {
	return m.doc.maps[m.id]
}

// handle wraps a stored value for callers: containers become handles,
// scalars are returned as they are. Called with mu held.
func (d *Doc) handle(id ID, v Value) any {
	switch v.Kind {
	case KindMap:
		return &Map{doc: d, id: id}
	case KindArray:
		return &Array{doc: d, id: id}
	default:
		return v.scalar()
	}
}

var _ plot.SharedMap = (*Map)(nil)
