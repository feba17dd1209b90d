package crdt

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrMalformedUpdate is returned by ApplyUpdate for bytes that are not a
// well-formed update.
var ErrMalformedUpdate = errors.New("malformed update")

// ID names an operation, and the container or element it created, by the
// replica that produced it and that replica's sequence number. The zero ID
// is the root map, or the head of a sequence when used as an origin.
type ID struct {
	Client string `cbor:"1,keyasint,omitempty"`
	Seq    uint64 `cbor:"2,keyasint,omitempty"`
}

func (id ID) IsZero() bool {
	return id.Client == "" && id.Seq == 0
}

func (id ID) String() string {
	return fmt.Sprintf("%s:%d", id.Client, id.Seq)
}

// Timestamp totally orders concurrent writes: Lamport clock first, client
// id as the tie break.
type Timestamp struct {
	Lamport uint64
	Client  string
}

// Less reports whether t happened before, or loses to, u.
func (t Timestamp) Less(u Timestamp) bool {
	if t.Lamport != u.Lamport {
		return t.Lamport < u.Lamport
	}
	return t.Client < u.Client
}

// OpKind is the operation type.
type OpKind uint8

const (
	OpSet OpKind = iota + 1
	OpDelete
	OpInsert
	OpRemove
)

// Op is one replicated mutation. Container is the map or sequence it
// applies to. Insert places Value after Origin; Remove tombstones Target.
type Op struct {
	Kind      OpKind `cbor:"1,keyasint"`
	Client    string `cbor:"2,keyasint"`
	Seq       uint64 `cbor:"3,keyasint"`
	Lamport   uint64 `cbor:"4,keyasint"`
	Container ID     `cbor:"5,keyasint"`
	Key       string `cbor:"6,keyasint,omitempty"`
	Origin    ID     `cbor:"7,keyasint"`
	Target    ID     `cbor:"8,keyasint"`
	Value     Value  `cbor:"9,keyasint"`
}

func (op Op) id() ID {
	return ID{Client: op.Client, Seq: op.Seq}
}

func (op Op) timestamp() Timestamp {
	return Timestamp{Lamport: op.Lamport, Client: op.Client}
}

func (op Op) valid() bool {
	return op.Client != "" && op.Seq > 0 && op.Kind >= OpSet && op.Kind <= OpRemove && op.Value.Kind <= KindArray
}

type update struct {
	Ops []Op `cbor:"1,keyasint"`
}

func encodeUpdate(ops []Op) ([]byte, error) {
	data, err := cbor.Marshal(update{Ops: ops})
	if err != nil {
		return nil, fmt.Errorf("encoding update: %w", err)
	}
	return data, nil
}

func decodeUpdate(data []byte) ([]Op, error) {
	var u update
	if err := cbor.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}
	for i, op := range u.Ops {
		if !op.valid() {
			return nil, fmt.Errorf("%w: op %d is incomplete", ErrMalformedUpdate, i)
		}
	}
	return u.Ops, nil
}

func encodeStateVector(sv map[string]uint64) ([]byte, error) {
	data, err := cbor.Marshal(sv)
	if err != nil {
		return nil, fmt.Errorf("encoding state vector: %w", err)
	}
	return data, nil
}

func decodeStateVector(data []byte) (map[string]uint64, error) {
	sv := map[string]uint64{}
	if len(data) == 0 {
		return sv, nil
	}
	if err := cbor.Unmarshal(data, &sv); err != nil {
		return nil, fmt.Errorf("decoding state vector: %w", err)
	}
	return sv, nil
}
