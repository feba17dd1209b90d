package crdt

import "fmt"

// Kind is the type of a replicated value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindMap
	KindArray
)

// Value is a scalar, or a marker that the op creates a nested container.
type Value struct {
	Kind  Kind    `cbor:"1,keyasint"`
	Str   string  `cbor:"2,keyasint,omitempty"`
	Int   int64   `cbor:"3,keyasint,omitempty"`
	Float float64 `cbor:"4,keyasint,omitempty"`
	Bool  bool    `cbor:"5,keyasint,omitempty"`
}

func (v Value) container() bool {
	return v.Kind == KindMap || v.Kind == KindArray
}

// scalar converts a Go value accepted by SharedMap.Set and SharedArray.Insert.
// Any other type is a programming error.
func scalar(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{Kind: KindNull}
	case string:
		return Value{Kind: KindString, Str: x}
	case int:
		return Value{Kind: KindInt, Int: int64(x)}
	case int32:
		return Value{Kind: KindInt, Int: int64(x)}
	case int64:
		return Value{Kind: KindInt, Int: x}
	case float64:
		return Value{Kind: KindFloat, Float: x}
	case bool:
		return Value{Kind: KindBool, Bool: x}
	default:
		panic(fmt.Sprintf("crdt: unsupported value type %T", v))
	}
}

func (v Value) scalar() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindBool:
		return v.Bool
	default:
		return nil
	}
}
