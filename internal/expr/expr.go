package expr

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"dhcpd/internal/options"
)

// Op enumerates every expression operator named in spec §4.3.
type Op int

const (
	OpLiteral Op = iota
	OpAnd
	OpOr
	OpNot
	OpEqual
	OpSubstring
	OpSuffix
	OpConcat
	OpPickFirstValue
	OpOption
	OpConfigOption
	OpExists
	OpKnown
	OpStatic
	OpHardware
	OpPacket
	OpLeasedAddress
	OpHostDeclName
	OpExtractInt8
	OpExtractInt16
	OpExtractInt32
	OpEncodeInt8
	OpEncodeInt16
	OpEncodeInt32
	OpBinaryToASCII
	OpReverse
	OpGetHostByName
	OpMakeLimit
	OpNSUpdate
)

// Expression is the tagged-sum node. Kids holds operand
// sub-expressions in operator-defined order; Lit carries the literal
// value for OpLiteral leaves; Universe/Code address an option for
// OpOption/OpConfigOption.
type Expression struct {
	Op       Op
	Kids     []*Expression
	Lit      Value
	Universe string
	Code     uint8
	Literal  string // raw text for gethostbyname/ns-update literals
}

// PacketView exposes the packet-derived facts expressions may read,
// implemented by internal/dhcp4core.PacketAdapter so this package has
// no dependency on the wire codec.
type PacketView interface {
	HardwareAddress() []byte
	RawSlice(offset, length int) []byte
	Known() bool
	Static() bool
}

// LeaseView exposes lease-derived facts, implemented by
// internal/dhcp4core's leaseView wrapper around a lease.Lease.
type LeaseView interface {
	LeasedAddress() []byte
	HostDeclName() string
}

// Resolver performs the gethostbyname lookup behind an expression; the
// concrete implementation (internal/dnsupdate) caches results and is
// backed by github.com/miekg/dns. Actual DNS I/O is an external
// concern per spec §1 — this interface is the seam.
type Resolver interface {
	Lookup(name string) (addrs []byte, err error)
}

// NSUpdater issues the ns-update sublanguage's RR operations and
// returns the RCODE as the expression's numeric result (spec §4.3,
// §7 "DNS-update failure is non-fatal").
type NSUpdater interface {
	Update(op, zone, name, rrtype string, data []byte) (rcode int, err error)
}

// Context bundles everything an expression may read, per spec §4.3:
// "(packet?, lease?, in_options, cfg_options, scope)".
type Context struct {
	Packet   PacketView
	Lease    LeaseView
	In       *options.State
	Cfg      *options.State
	Resolver Resolver
	Updater  NSUpdater
}

// Literal builds a leaf expression.
func Literal(v Value) *Expression { return &Expression{Op: OpLiteral, Lit: v} }

// Eval recursively evaluates e against ctx, producing a Value with the
// definedness/taint semantics spec'd in §4.3.
func (e *Expression) Eval(ctx *Context) Value {
	if e == nil {
		return Undefined(KindBoolean)
	}
	switch e.Op {
	case OpLiteral:
		return e.Lit

	case OpAnd:
		return e.evalAndOr(ctx, true)
	case OpOr:
		return e.evalAndOr(ctx, false)
	case OpNot:
		v := e.kid(0).Eval(ctx)
		b, tainted := v.AsBool()
		return Value{Kind: KindBoolean, Defined: v.Defined, Tainted: tainted, Bool: !b}

	case OpEqual:
		a, b := e.kid(0).Eval(ctx), e.kid(1).Eval(ctx)
		if !a.Defined || !b.Defined {
			return Undefined(KindBoolean)
		}
		return Bool(valuesEqual(a, b))

	case OpSubstring:
		return e.evalSubstring(ctx)
	case OpSuffix:
		return e.evalSuffix(ctx)
	case OpConcat:
		return e.evalConcat(ctx)
	case OpPickFirstValue:
		for _, k := range e.Kids {
			v := k.Eval(ctx)
			if v.Defined {
				return v
			}
		}
		return Undefined(KindData)

	case OpOption:
		return e.evalOption(ctx, ctx.In)
	case OpConfigOption:
		return e.evalOption(ctx, ctx.Cfg)
	case OpExists:
		if ctx.In == nil {
			return Bool(false)
		}
		return Bool(ctx.In.Exists(e.Universe, e.Code))

	case OpKnown:
		if ctx.Packet == nil {
			return Undefined(KindBoolean)
		}
		return Bool(ctx.Packet.Known())
	case OpStatic:
		if ctx.Packet == nil {
			return Undefined(KindBoolean)
		}
		return Bool(ctx.Packet.Static())

	case OpHardware:
		if ctx.Packet == nil {
			return Undefined(KindData)
		}
		return DataValue(ctx.Packet.HardwareAddress(), false)

	case OpPacket:
		offset := int(e.kid(0).Eval(ctx).Num)
		length := int(e.kid(1).Eval(ctx).Num)
		if ctx.Packet == nil {
			return Undefined(KindData)
		}
		return DataValue(ctx.Packet.RawSlice(offset, length), false)

	case OpLeasedAddress:
		if ctx.Lease == nil {
			return Undefined(KindData)
		}
		return DataValue(ctx.Lease.LeasedAddress(), false)

	case OpHostDeclName:
		if ctx.Lease == nil {
			return Undefined(KindData)
		}
		name := ctx.Lease.HostDeclName()
		if name == "" {
			return Undefined(KindData)
		}
		return DataValue([]byte(name), true)

	case OpExtractInt8:
		v := e.kid(0).Eval(ctx)
		if !v.Defined || len(v.Data) < 1 {
			return Undefined(KindNumeric)
		}
		return Num(int64(v.Data[0]))
	case OpExtractInt16:
		v := e.kid(0).Eval(ctx)
		if !v.Defined || len(v.Data) < 2 {
			return Undefined(KindNumeric)
		}
		return Num(int64(binary.BigEndian.Uint16(v.Data)))
	case OpExtractInt32:
		v := e.kid(0).Eval(ctx)
		if !v.Defined || len(v.Data) < 4 {
			return Undefined(KindNumeric)
		}
		return Num(int64(binary.BigEndian.Uint32(v.Data)))

	case OpEncodeInt8:
		n := e.kid(0).Eval(ctx)
		return DataValue([]byte{byte(n.Num)}, false)
	case OpEncodeInt16:
		n := e.kid(0).Eval(ctx)
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(n.Num))
		return DataValue(b, false)
	case OpEncodeInt32:
		n := e.kid(0).Eval(ctx)
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(n.Num))
		return DataValue(b, false)

	case OpBinaryToASCII:
		return e.evalBinaryToASCII(ctx)
	case OpReverse:
		return e.evalReverse(ctx)

	case OpGetHostByName:
		if ctx.Resolver == nil {
			return Undefined(KindData)
		}
		addrs, err := ctx.Resolver.Lookup(e.Literal)
		if err != nil || len(addrs) == 0 {
			return Undefined(KindData)
		}
		return DataValue(addrs, false)

	case OpMakeLimit:
		v := e.kid(0).Eval(ctx)
		n := int(e.kid(1).Eval(ctx).Num)
		if !v.Defined {
			return v
		}
		if n < len(v.Data) {
			v.Data = v.Data[:n]
		}
		return v

	case OpNSUpdate:
		if ctx.Updater == nil {
			return Undefined(KindNumeric)
		}
		rrtype := e.Literal
		zone := ""
		name := ""
		var data []byte
		if len(e.Kids) > 0 {
			name = string(e.kid(0).Eval(ctx).Data)
		}
		if len(e.Kids) > 1 {
			zone = string(e.kid(1).Eval(ctx).Data)
		}
		if len(e.Kids) > 2 {
			data = e.kid(2).Eval(ctx).Data
		}
		rcode, err := ctx.Updater.Update("update", zone, name, rrtype, data)
		if err != nil {
			return Num(int64(rcode))
		}
		return Num(int64(rcode))

	default:
		return Undefined(KindBoolean)
	}
}

func (e *Expression) kid(i int) *Expression {
	if i >= len(e.Kids) {
		return nil
	}
	return e.Kids[i]
}

func (e *Expression) evalAndOr(ctx *Context, isAnd bool) Value {
	tainted := false
	for _, k := range e.Kids {
		v := k.Eval(ctx)
		b, t := v.AsBool()
		tainted = tainted || t
		if isAnd && !b {
			return Value{Kind: KindBoolean, Defined: true, Tainted: tainted, Bool: false}
		}
		if !isAnd && b {
			return Value{Kind: KindBoolean, Defined: true, Tainted: tainted, Bool: true}
		}
	}
	return Value{Kind: KindBoolean, Defined: true, Tainted: tainted, Bool: isAnd}
}

func valuesEqual(a, b Value) bool {
	switch {
	case a.Kind == KindData || b.Kind == KindData:
		return string(a.Data) == string(b.Data)
	case a.Kind == KindNumeric || b.Kind == KindNumeric:
		return a.Num == b.Num
	default:
		return a.Bool == b.Bool
	}
}

func (e *Expression) evalSubstring(ctx *Context) Value {
	src := e.kid(0).Eval(ctx)
	if !src.Defined {
		return Undefined(KindData)
	}
	offset := int(e.kid(1).Eval(ctx).Num)
	lenExpr := e.kid(2).Eval(ctx)
	length := int(lenExpr.Num)
	data := src.Data
	if offset < 0 {
		offset = 0
	}
	if offset > len(data) {
		offset = len(data)
	}
	end := len(data)
	if lenExpr.Defined && lenExpr.Num >= 0 {
		if offset+length < end {
			end = offset + length
		}
	}
	return DataValue(append([]byte(nil), data[offset:end]...), src.Terminated)
}

func (e *Expression) evalSuffix(ctx *Context) Value {
	src := e.kid(0).Eval(ctx)
	if !src.Defined {
		return Undefined(KindData)
	}
	length := int(e.kid(1).Eval(ctx).Num)
	data := src.Data
	start := len(data) - length
	if start < 0 {
		start = 0
	}
	return DataValue(append([]byte(nil), data[start:]...), src.Terminated)
}

func (e *Expression) evalConcat(ctx *Context) Value {
	var out []byte
	terminated := true
	for _, k := range e.Kids {
		v := k.Eval(ctx)
		if !v.Defined {
			return Undefined(KindData)
		}
		d := v.Data
		// Trailing NULs on a terminated operand are trimmed before
		// concatenation, matching the source's text/octet-string
		// distinction in tree_concat.
		if v.Terminated {
			for len(d) > 0 && d[len(d)-1] == 0 {
				d = d[:len(d)-1]
			}
		} else {
			terminated = false
		}
		out = append(out, d...)
	}
	return DataValue(out, terminated)
}

func (e *Expression) evalOption(ctx *Context, state *options.State) Value {
	if state == nil {
		return Undefined(KindData)
	}
	c, ok := state.Get(e.Universe, e.Code)
	if !ok || !c.HasValue() {
		return Undefined(KindData)
	}
	return DataValue(c.Data, false)
}

func (e *Expression) evalBinaryToASCII(ctx *Context) Value {
	base := int(e.kid(0).Eval(ctx).Num)
	width := int(e.kid(1).Eval(ctx).Num)
	sep := string(e.kid(2).Eval(ctx).Data)
	buf := e.kid(3).Eval(ctx)
	if !buf.Defined {
		return Undefined(KindData)
	}
	var parts []string
	step := width / 8
	if step <= 0 {
		step = 1
	}
	for i := 0; i+step <= len(buf.Data); i += step {
		var n uint64
		for _, b := range buf.Data[i : i+step] {
			n = n<<8 | uint64(b)
		}
		parts = append(parts, strconv.FormatUint(n, base))
	}
	return DataValue([]byte(strings.Join(parts, sep)), true)
}

func (e *Expression) evalReverse(ctx *Context) Value {
	width := int(e.kid(0).Eval(ctx).Num)
	buf := e.kid(1).Eval(ctx)
	if !buf.Defined || width <= 0 {
		return buf
	}
	data := append([]byte(nil), buf.Data...)
	for lo, hi := 0, len(data)/width-1; lo < hi; lo, hi = lo+1, hi-1 {
		a := data[lo*width : lo*width+width]
		b := data[hi*width : hi*width+width]
		for i := range a {
			a[i], b[i] = b[i], a[i]
		}
	}
	return DataValue(data, buf.Terminated)
}

// NewOption builds an `option <universe>.<name>`-style expression once
// the parser has resolved the universe/code pair.
func NewOption(op Op, universe string, code uint8) *Expression {
	return &Expression{Op: op, Universe: universe, Code: code}
}

// String renders an expression for diagnostics.
func (e *Expression) String() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("expr(op=%d)", e.Op)
}
