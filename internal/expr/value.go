// Package expr implements the expression/statement tree from spec
// §4.3: a tagged sum type for boolean, numeric, and data-producing
// expressions, evaluated against a packet, a lease, and the "in"/"cfg"
// option states, plus the statement forms that walk the scope chain
// to build an outgoing reply.
package expr

import "encoding/binary"

// Kind identifies an expression's result category.
type Kind int

const (
	KindBoolean Kind = iota
	KindNumeric
	KindData
)

// Value is the result of evaluating an Expression. Defined is the
// "definedness bit" from spec §4.3 — distinct from a zero/false/empty
// result. Tainted propagates through boolean evaluation whenever a
// sub-expression was undefined, per spec's "ignore if ..." rule: any
// predicate that reaches the dispatcher undefined is treated as false
// with the tainted bit set.
type Value struct {
	Kind       Kind
	Defined    bool
	Tainted    bool
	Bool       bool
	Num        int64
	Data       []byte
	Terminated bool // distinguishes a NUL-terminated text value from an octet string, for concat
}

// Undefined returns the canonical "no value" result of the given
// kind, tainted so it poisons any boolean expression it feeds into.
func Undefined(k Kind) Value {
	return Value{Kind: k, Defined: false, Tainted: true}
}

// Bool returns a defined boolean value.
func Bool(b bool) Value { return Value{Kind: KindBoolean, Defined: true, Bool: b} }

// Num returns a defined numeric value.
func Num(n int64) Value { return Value{Kind: KindNumeric, Defined: true, Num: n} }

// DataValue returns a defined data value.
func DataValue(b []byte, terminated bool) Value {
	return Value{Kind: KindData, Defined: true, Data: b, Terminated: terminated}
}

// AsBool coerces a value for use in a boolean context the way the
// dispatcher does: undefined (or a value of the wrong kind) becomes
// false and tainted; a numeric value is true iff non-zero; a data
// value is true iff non-empty.
func (v Value) AsBool() (result bool, tainted bool) {
	if !v.Defined {
		return false, true
	}
	switch v.Kind {
	case KindBoolean:
		return v.Bool, v.Tainted
	case KindNumeric:
		return v.Num != 0, v.Tainted
	case KindData:
		return len(v.Data) > 0, v.Tainted
	default:
		return false, true
	}
}

// bytesToUint32 reads a big-endian 32-bit value from the first four
// bytes of b; shorter input is right-aligned (zero-padded on the left).
func bytesToUint32(b []byte) uint32 {
	var buf [4]byte
	n := copy(buf[4-min(len(b), 4):], b)
	_ = n
	return binary.BigEndian.Uint32(buf[:])
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
