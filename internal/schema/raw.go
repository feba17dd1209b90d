package schema

import (
	"fmt"
	"math"
)

// Raw is a decoded JSON object. Repairs and migration steps operate on Raw
// trees so they can see fields the typed model no longer declares.
type Raw = map[string]any

// Repair describes a single structural fix applied while loading.
type Repair struct {
	Path    string
	Message string
}

func (r Repair) String() string {
	return r.Path + ": " + r.Message
}

type repairs []Repair

func (rs *repairs) add(path, format string, args ...any) {
	*rs = append(*rs, Repair{Path: path, Message: fmt.Sprintf(format, args...)})
}

// asInt returns v as an int when it is an integral JSON number.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

func asObject(v any) (Raw, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asArray(v any) ([]any, bool) {
	a, ok := v.([]any)
	return a, ok
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// version reads the integer version field, returning 0 when it is unusable.
func version(tree Raw) int {
	v, ok := asInt(tree["version"])
	if !ok {
		return 0
	}
	return v
}

// objects returns the object elements of tree[key], skipping anything else.
func objects(tree Raw, key string) []Raw {
	arr, ok := asArray(tree[key])
	if !ok {
		return nil
	}
	out := make([]Raw, 0, len(arr))
	for _, el := range arr {
		if obj, ok := asObject(el); ok {
			out = append(out, obj)
		}
	}
	return out
}

func present(tree Raw, key string) bool {
	_, ok := tree[key]
	return ok
}

// dropWrongString removes key when it is present but not a string.
func dropWrongString(obj Raw, key, path string, rs *repairs) {
	if v, ok := obj[key]; ok {
		if _, isStr := v.(string); !isStr {
			delete(obj, key)
			rs.add(join(path, key), "removed non-string value")
		}
	}
}

// dropWrongInt removes key when it is present but not an integral number.
func dropWrongInt(obj Raw, key, path string, rs *repairs) {
	if v, ok := obj[key]; ok {
		if _, isInt := asInt(v); !isInt {
			delete(obj, key)
			rs.add(join(path, key), "removed non-integer value")
		}
	}
}

// dropWrongNumber removes key when it is present but not a number.
func dropWrongNumber(obj Raw, key, path string, rs *repairs) {
	if v, ok := obj[key]; ok {
		if _, isNum := v.(float64); !isNum {
			delete(obj, key)
			rs.add(join(path, key), "removed non-numeric value")
		}
	}
}

// repairIntList keeps only integral elements of an array field and removes
// the field entirely when it is not an array.
func repairIntList(obj Raw, key, path string, rs *repairs) {
	v, ok := obj[key]
	if !ok {
		return
	}
	arr, isArr := asArray(v)
	if !isArr {
		delete(obj, key)
		rs.add(join(path, key), "removed non-array value")
		return
	}
	kept := make([]any, 0, len(arr))
	for _, el := range arr {
		if _, isInt := asInt(el); isInt {
			kept = append(kept, el)
		}
	}
	if len(kept) != len(arr) {
		rs.add(join(path, key), "dropped %d non-integer entries", len(arr)-len(kept))
		obj[key] = kept
	}
}

// ensureArray replaces a missing or non-array field with an empty array.
func ensureArray(obj Raw, key, path string, rs *repairs) {
	v, ok := obj[key]
	if !ok {
		obj[key] = []any{}
		rs.add(join(path, key), "missing; defaulted to empty list")
		return
	}
	if _, isArr := asArray(v); !isArr {
		obj[key] = []any{}
		rs.add(join(path, key), "not a list; replaced with empty list")
	}
}

// ensureObject replaces a missing or non-object field with an empty object.
func ensureObject(obj Raw, key, path string, rs *repairs) Raw {
	if m, ok := asObject(obj[key]); ok {
		return m
	}
	if present(obj, key) {
		rs.add(join(path, key), "not an object; replaced with empty object")
	} else {
		rs.add(join(path, key), "missing; defaulted to empty object")
	}
	m := Raw{}
	obj[key] = m
	return m
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}
