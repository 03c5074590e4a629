// Package msg defines the typed event envelope used to pass commands and
// notifications between actors (§4.B of the specification). A Message is an
// immutable-after-post value; ownership of Object payload slots transfers to
// whoever reads them (move-only handoff), matching DESIGN NOTES' guidance to
// avoid a heterogeneous pointer grab-bag.
package msg

import "fmt"

// Kind tags which variant a Value holds.
type Kind uint8

const (
	KindInt64 Kind = iota
	KindFloat64
	KindString
	KindMessage
	KindObject
)

// Value is a tagged-variant payload slot. Exactly one of the typed fields is
// meaningful, selected by Kind.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	m    *Message
	obj  any
}

func Int64(v int64) Value      { return Value{kind: KindInt64, i: v} }
func Float64(v float64) Value  { return Value{kind: KindFloat64, f: v} }
func String(v string) Value    { return Value{kind: KindString, s: v} }
func Nested(v *Message) Value  { return Value{kind: KindMessage, m: v} }
func Object(v any) Value       { return Value{kind: KindObject, obj: v} }
func (v Value) Kind() Kind     { return v.kind }

// Int64/Float64Val/StringVal/MessageVal/ObjectVal return the stored value and
// whether the Kind matched; a mismatched call returns the zero value and false.
func (v Value) Int64Val() (int64, bool)     { return v.i, v.kind == KindInt64 }
func (v Value) Float64Val() (float64, bool) { return v.f, v.kind == KindFloat64 }
func (v Value) StringVal() (string, bool)   { return v.s, v.kind == KindString }
func (v Value) MessageVal() (*Message, bool) {
	return v.m, v.kind == KindMessage
}

// ObjectVal returns the opaque object without clearing anything: a second
// call observes the same value (Go has no destructive read of a map value
// without rewriting it), so callers that need single-ownership semantics
// should delete the key from the payload map after taking it — see
// Message.TakeObject.
func (v Value) ObjectVal() (any, bool) { return v.obj, v.kind == KindObject }

func (v Value) String() string {
	switch v.kind {
	case KindInt64:
		return fmt.Sprintf("int64(%d)", v.i)
	case KindFloat64:
		return fmt.Sprintf("float64(%g)", v.f)
	case KindString:
		return fmt.Sprintf("string(%q)", v.s)
	case KindMessage:
		return "message(...)"
	case KindObject:
		return fmt.Sprintf("object(%T)", v.obj)
	default:
		return "invalid"
	}
}

// dup returns a value safe to embed in a deep-copied Message: scalars and
// strings copy trivially, nested messages are deep-copied, and object slots
// are shallow-copied (the spec calls for "deep copy of scalars and shallow
// copy of opaque slots").
func (v Value) dup() Value {
	if v.kind == KindMessage && v.m != nil {
		return Nested(v.m.Dup())
	}
	return v
}
