// Package value is the document value model: a tree of maps, sequences,
// collaborative text and scalars, and its conversion to and from plain Go
// values.
package value

import (
	"math"
	"slices"
	"time"
)

// Kind is a one-letter type tag, the same letter the engine puts on the wire.
type Kind byte

const (
	KindInt       = Kind('I')
	KindUint      = Kind('N')
	KindFloat32   = Kind('G')
	KindFloat64   = Kind('F')
	KindBool      = Kind('B')
	KindNull      = Kind('T')
	KindString    = Kind('S')
	KindCounter   = Kind('Z')
	KindTimestamp = Kind('W')

	KindText = Kind('X')
	KindSeq  = Kind('L')
	KindMap  = Kind('M')
)

func (k Kind) Scalar() bool {
	switch k {
	case KindInt, KindUint, KindFloat32, KindFloat64, KindBool,
		KindNull, KindString, KindCounter, KindTimestamp:
		return true
	}
	return false
}

// Container kinds are the ones the engine keeps as separate objects.
func (k Kind) Container() bool {
	return k == KindText || k == KindSeq || k == KindMap
}

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindBool:
		return "bool"
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindCounter:
		return "counter"
	case KindTimestamp:
		return "timestamp"
	case KindText:
		return "text"
	case KindSeq:
		return "seq"
	case KindMap:
		return "map"
	}
	return "kind(" + string(rune(k)) + ")"
}

// Value is one node of a document tree: Scalar, Text, Seq or Map.
// Every node belongs to exactly one parent.
type Value interface {
	Kind() Kind
	isValue()
}

// Scalar is a leaf value. The zero Scalar is not valid; use the
// constructors.
type Scalar struct {
	kind Kind
	i    int64
	u    uint64
	f    float64
	b    bool
	s    string
}

func (s Scalar) Kind() Kind { return s.kind }
func (Scalar) isValue()      {}

func Int(i int64) Scalar       { return Scalar{kind: KindInt, i: i} }
func Uint(u uint64) Scalar     { return Scalar{kind: KindUint, u: u} }
func Float64(f float64) Scalar { return Scalar{kind: KindFloat64, f: f} }
func Float32(f float32) Scalar { return Scalar{kind: KindFloat32, f: float64(f)} }
func Bool(b bool) Scalar       { return Scalar{kind: KindBool, b: b} }
func Null() Scalar             { return Scalar{kind: KindNull} }

// Str is a plain (non-collaborative) string scalar, as opposed to Text.
func Str(s string) Scalar { return Scalar{kind: KindString, s: s} }

func CounterOf(c int64) Scalar { return Scalar{kind: KindCounter, i: c} }

// TimestampOf keeps millisecond precision.
func TimestampOf(t time.Time) Scalar {
	return Scalar{kind: KindTimestamp, i: t.UnixMilli()}
}

// Int returns the integer payload of Int, Counter and Timestamp (millis).
func (s Scalar) Int() int64 { return s.i }

func (s Scalar) Uint() uint64 { return s.u }

func (s Scalar) Float() float64 { return s.f }

func (s Scalar) Bool() bool { return s.b }

func (s Scalar) Str() string { return s.s }

func (s Scalar) Time() time.Time { return time.UnixMilli(s.i).UTC() }

func (s Scalar) Valid() bool { return s.kind.Scalar() }

func (s Scalar) equal(b Scalar) bool {
	if s.kind != b.kind {
		return false
	}
	switch s.kind {
	case KindInt, KindCounter, KindTimestamp:
		return s.i == b.i
	case KindUint:
		return s.u == b.u
	case KindFloat32, KindFloat64:
		return s.f == b.f || (math.IsNaN(s.f) && math.IsNaN(b.f))
	case KindBool:
		return s.b == b.b
	case KindString:
		return s.s == b.s
	}
	return true
}

// Text is an editable character sequence.
type Text string

func (Text) Kind() Kind { return KindText }
func (Text) isValue()   {}

// Seq is an ordered list of values.
type Seq []Value

func (Seq) Kind() Kind { return KindSeq }
func (Seq) isValue()   {}

// Map is a string-keyed collection; key order carries no meaning.
type Map map[string]Value

func (Map) Kind() Kind { return KindMap }
func (Map) isValue()   {}

// Keys are sorted, so every walk over a map is deterministic.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Equal compares two trees structurally.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch at := a.(type) {
	case Scalar:
		return at.equal(b.(Scalar))
	case Text:
		return at == b.(Text)
	case Seq:
		bt := b.(Seq)
		if len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !Equal(at[i], bt[i]) {
				return false
			}
		}
		return true
	case Map:
		bt := b.(Map)
		if len(at) != len(bt) {
			return false
		}
		for k, av := range at {
			bv, ok := bt[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}
