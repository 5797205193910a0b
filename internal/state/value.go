package state

import "fmt"

// ValueKind is the closed set of shapes a StateValue may hold (§9: "model
// as a tagged sum with explicit accessors rather than a generic
// any-like container").
type ValueKind int

const (
	KindBool ValueKind = iota
	KindInt
	KindFloat
	KindString
	KindDocument
)

func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindDocument:
		return "document"
	default:
		return "unknown"
	}
}

// MaxStringLen is the bound on StateValue string payloads (§3).
const MaxStringLen = 256

// Value is the tagged variant carried by every StateEntry (§3 StateValue).
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	doc  map[string]any
}

// Bool constructs a bool-typed Value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int constructs an int-typed Value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float constructs a float-typed Value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// String constructs a string-typed Value. Callers must pre-validate the
// 256-byte bound; Store.Set enforces it on write.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Document constructs a structured-document Value. The map is copied so
// the stored value is independent of the caller's map.
func Document(v map[string]any) Value {
	cp := make(map[string]any, len(v))
	for k, val := range v {
		cp[k] = val
	}
	return Value{kind: KindDocument, doc: cp}
}

// Kind reports the tagged variant.
func (v Value) Kind() ValueKind { return v.kind }

// AsBool returns the bool payload, or ok=false if the Value is not a bool.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt returns the integer payload, or ok=false if the Value is not an int.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsFloat returns the float payload, or ok=false if the Value is not a float.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

// AsString returns the string payload, or ok=false if the Value is not a string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsDocument returns a copy of the document payload, or ok=false if the
// Value is not a document.
func (v Value) AsDocument() (map[string]any, bool) {
	if v.kind != KindDocument {
		return nil, false
	}
	cp := make(map[string]any, len(v.doc))
	for k, val := range v.doc {
		cp[k] = val
	}
	return cp, true
}

// Equal reports whether two Values compare equal for the purposes of the
// no-op write suppression rule in §4.A. Documents compare by length and
// shallow key/value equality of comparable entries only — a non-comparable
// nested value (slice, map) always counts as a change, which is the safe
// direction for suppression.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindDocument:
		if len(v.doc) != len(o.doc) {
			return false
		}
		for k, val := range v.doc {
			ov, ok := o.doc[k]
			if !ok {
				return false
			}
			if !equalScalar(val, ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func equalScalar(a, b any) bool {
	defer func() { recover() }() //nolint:errcheck // non-comparable types panic on ==, treat as unequal
	return a == b
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindDocument:
		return fmt.Sprintf("%v", v.doc)
	default:
		return "<invalid>"
	}
}
