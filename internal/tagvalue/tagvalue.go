// Package tagvalue implements the tagged-union value type shared by every
// tag store in the field-device runtime.
package tagvalue

// Kind identifies which variant of a Value is populated.
type Kind int

const (
	// KindNone is the zero Kind; a Value of this kind reads as false/0/0.0
	// for any requested type.
	KindNone Kind = iota
	KindBool
	KindInt32
	KindFloat64
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt32:
		return "int32"
	case KindFloat64:
		return "float64"
	default:
		return "none"
	}
}

// Value is a tagged union over {bool, int32, float64}. The zero Value reads
// as false/0/0.0 for any accessor, matching the "mismatched read yields the
// zero value" contract in spec.md §3.
type Value struct {
	kind Kind
	b    bool
	i    int32
	f    float64
}

// Bool constructs a boolean Value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int32 constructs an int32 Value.
func Int32(v int32) Value { return Value{kind: KindInt32, i: v} }

// Float64 constructs a float64 Value.
func Float64(v float64) Value { return Value{kind: KindFloat64, f: v} }

// Kind reports which variant is populated.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the boolean value, or false if v is not a KindBool.
func (v Value) AsBool() bool {
	if v.kind != KindBool {
		return false
	}
	return v.b
}

// AsInt32 returns the int32 value, or 0 if v is not a KindInt32.
func (v Value) AsInt32() int32 {
	if v.kind != KindInt32 {
		return 0
	}
	return v.i
}

// AsFloat64 returns the float64 value, or 0 if v is not a KindFloat64,
// matching the "mismatched read yields the zero value" contract in
// spec.md §3 exactly (no cross-kind numeric widening).
func (v Value) AsFloat64() float64 {
	if v.kind != KindFloat64 {
		return 0
	}
	return v.f
}

// Interface returns the underlying Go value (bool, int32, float64, or nil).
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt32:
		return v.i
	case KindFloat64:
		return v.f
	default:
		return nil
	}
}

// Equal reports whether two Values hold the same kind and payload.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == other.b
	case KindInt32:
		return v.i == other.i
	case KindFloat64:
		return v.f == other.f
	default:
		return true
	}
}
