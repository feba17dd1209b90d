package plot

// SharedMap is a replicated key/value container. Concurrent writes to
// different keys never conflict; concurrent writes to the same key resolve
// deterministically on every replica.
//
// Scalar values are string, int64, float64 or bool. Get returns nested
// containers as SharedMap or SharedArray.
type SharedMap interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	SetMap(key string) SharedMap
	SetArray(key string) SharedArray
	Delete(key string)

	// Keys returns the live keys in lexical order.
	Keys() []string
	Len() int
}

// SharedArray is a replicated sequence. Concurrent inserts at the same
// position keep both elements in an order every replica agrees on.
type SharedArray interface {
	Len() int
	Get(index int) (any, bool)
	Insert(index int, value any)
	InsertMap(index int) SharedMap
	Push(value any)
	PushMap() SharedMap
	Delete(index int)
}

// ReplicatedDoc is one replica of a conflict-free replicated document.
// Merging is commutative, associative and idempotent: updates may be applied
// in any order, any number of times.
type ReplicatedDoc interface {
	// ClientID identifies this replica in every operation it produces.
	ClientID() string

	Root() SharedMap

	// Transact groups every mutation made by fn into a single update.
	Transact(fn func())

	// StateVector summarises which operations this replica has integrated.
	StateVector() ([]byte, error)

	// EncodeStateAsUpdate returns every operation not covered by the given
	// remote state vector. A nil state vector encodes the whole document.
	EncodeStateAsUpdate(stateVector []byte) ([]byte, error)

	// ApplyUpdate merges a remote update. It fails only when the bytes
	// cannot be decoded; merging itself never fails.
	ApplyUpdate(update []byte) error

	// OnUpdate registers fn to receive every update integrated into the
	// document. local is true for updates produced by this replica.
	OnUpdate(fn func(update []byte, local bool)) (cancel func())
}

// DocFactory creates an empty replica.
type DocFactory func() ReplicatedDoc
