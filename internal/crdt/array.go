package crdt

import "plot-go/internal/plot"

// Array is a handle on a replicated sequence inside a Doc. Indexes count
// live elements only.
type Array struct {
	doc *Doc
	id  ID
}

func (a *Array) ID() ID {
	return a.id
}

func (a *Array) Len() int {
	a.doc.mu.Lock()
	defer a.doc.mu.Unlock()
	return len(a.state().visible())
}

func (a *Array) Get(index int) (any, bool) {
	a.doc.mu.Lock()
	defer a.doc.mu.Unlock()

	elems := a.state().visible()
	if index < 0 || index >= len(elems) {
		return nil, false
	}
	e := elems[index]
	return a.doc.handle(e.id, e.value), true
}

// Insert places value so that it ends up at index. An index past the end
// appends.
func (a *Array) Insert(index int, value any) {
	a.insert(index, scalar(value))
}

func (a *Array) InsertMap(index int) plot.SharedMap {
	op := a.insert(index, Value{Kind: KindMap})
	return &Map{doc: a.doc, id: op.id()}
}

func (a *Array) Push(value any) {
	a.Insert(a.Len(), value)
}

func (a *Array) PushMap() plot.SharedMap {
	return a.InsertMap(a.Len())
}

func (a *Array) insert(index int, v Value) Op {
	a.doc.mu.Lock()
	elems := a.state().visible()
	var origin ID
	switch {
	case index <= 0:
	case index >= len(elems):
		if len(elems) > 0 {
			origin = elems[len(elems)-1].id
		}
	default:
		origin = elems[index-1].id
	}
	op := a.doc.local(Op{Kind: OpInsert, Container: a.id, Origin: origin, Value: v})
	a.doc.mu.Unlock()
	a.doc.flush()
	return op
}

// Delete removes the element at index. Out of range is a no-op.
func (a *Array) Delete(index int) {
	a.doc.mu.Lock()
	elems := a.state().visible()
	if index < 0 || index >= len(elems) {
		a.doc.mu.Unlock()
		return
	}
	a.doc.local(Op{Kind: OpRemove, Container: a.id, Target: elems[index].id})
	a.doc.mu.Unlock()
	a.doc.flush()
}

func (a *Array) state() *arrayState {
	return a.doc.arrays[a.id]
}

var _ plot.SharedArray = (*Array)(nil)
