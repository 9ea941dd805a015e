// Package options implements the option universe model from spec §4.3
// and §9: a universe is a namespace of numbered options with its own
// code table and wire encoder. The built-in universes are "dhcp"
// (RFC 2131/2132 codes 0-255) and "server" (private configuration
// options); Registry.Declare adds further, initially empty universes,
// which the parser does when an option statement names an unknown
// universe. `option space <name>;` declarations are not parsed.
package options

import (
	"fmt"

	"dhcpd/internal/bytehash"
)

// ValueType is the declared type of a registered option, per the
// `option foo code N = <type>` grammar in spec §4.5.
type ValueType int

const (
	TypeBoolean ValueType = iota
	TypeInt8
	TypeInt16
	TypeInt32
	TypeUint8
	TypeUint16
	TypeUint32
	TypeIPAddress
	TypeText
	TypeString
	TypeArray
	TypeRecord
)

// Def describes one option code within a universe: its name, wire
// code, and declared type. Array and Record types carry their element
// types in Elems.
type Def struct {
	Universe string
	Code     uint8
	Name     string
	Type     ValueType
	Elems    []ValueType // for TypeArray (len 1) and TypeRecord (len N)
}

// Universe is a namespace of options: its own hash of names to codes,
// its own code table, and its own wire encoder/decoder. Concrete
// universes (dhcp, server, and any parser-declared space) are all
// represented by *Table plus universe-specific encode/decode rules
// registered in Registry.
type Universe struct {
	Name      string
	byName    *bytehash.Table[*Def]
	byCode    map[uint8]*Def
	// Encode produces the wire form of one cache entry's resolved data
	// for this universe. The dhcp universe's Encode implements the
	// tag/length/value + segmentation rule from spec §4.3; every
	// universe NewUniverse creates starts with that same rule.
	// Encapsulate does not call this field: it always applies
	// defaultTLVEncode.
	Encode func(code uint8, data []byte) []byte
}

// NewUniverse creates an empty universe with the default TLV encoder.
func NewUniverse(name string) *Universe {
	u := &Universe{
		Name:   name,
		byName: bytehash.New[*Def](64),
		byCode: make(map[uint8]*Def),
	}
	u.Encode = defaultTLVEncode
	return u
}

// Register adds or replaces a code definition. The name hash and code
// table are both updated, matching the source's dual name/code lookup
// for a universe.
func (u *Universe) Register(d *Def) {
	d.Universe = u.Name
	u.byName.Set([]byte(d.Name), d)
	u.byCode[d.Code] = d
}

// ByName resolves an option name within this universe, as used by the
// parser and by the `option <universe>.<name>` expression operator.
func (u *Universe) ByName(name string) (*Def, bool) {
	return u.byName.Get([]byte(name))
}

// ByCode resolves a wire code within this universe.
func (u *Universe) ByCode(code uint8) (*Def, bool) {
	d, ok := u.byCode[code]
	return d, ok
}

// defaultTLVEncode implements the dhcp universe's single-byte
// tag/length/value rule with segmentation for values over 255 bytes,
// as specified in §4.3.
func defaultTLVEncode(code uint8, data []byte) []byte {
	if len(data) == 0 {
		return []byte{code, 0}
	}
	out := make([]byte, 0, len(data)+2*(len(data)/255+1))
	for len(data) > 0 {
		n := len(data)
		if n > 255 {
			n = 255
		}
		out = append(out, code, byte(n))
		out = append(out, data[:n]...)
		data = data[n:]
	}
	return out
}

// Registry is the process-wide (or per-ServerContext, per the "global
// registries become an explicit context" design note in §9) map of
// universe name to *Universe.
type Registry struct {
	universes map[string]*Universe
}

// NewRegistry builds a registry pre-populated with the "dhcp" and
// "server" built-in universes.
func NewRegistry() *Registry {
	r := &Registry{universes: make(map[string]*Universe)}
	r.universes["dhcp"] = builtinDHCPUniverse()
	r.universes["server"] = builtinServerUniverse()
	return r
}

// Declare registers a new, empty universe under name. If name is
// already registered, the existing universe is returned unchanged;
// the error result is always nil.
func (r *Registry) Declare(name string) (*Universe, error) {
	if existing, ok := r.universes[name]; ok {
		return existing, nil
	}
	u := NewUniverse(name)
	r.universes[name] = u
	return u, nil
}

// Universe looks up a registered universe by name.
func (r *Registry) Universe(name string) (*Universe, bool) {
	u, ok := r.universes[name]
	return u, ok
}

// MustUniverse panics if name isn't registered; used for the two
// built-ins which are always present.
func (r *Registry) MustUniverse(name string) *Universe {
	u, ok := r.universes[name]
	if !ok {
		panic(fmt.Sprintf("options: universe %q not registered", name))
	}
	return u
}

// Universes lists every registered universe name, for control-socket
// and admin-API enumeration.
func (r *Registry) Universes() []string {
	names := make([]string, 0, len(r.universes))
	for name := range r.universes {
		names = append(names, name)
	}
	return names
}

// Lookup resolves "universe.name" style option references used by the
// control socket and confparse's option statements.
func (r *Registry) Lookup(universe, name string) (*Def, bool) {
	u, ok := r.universes[universe]
	if !ok {
		return nil, false
	}
	return u.ByName(name)
}

// Defs lists every option definition registered in universe, for
// control-socket "print" enumeration.
func (u *Universe) Defs() []*Def {
	defs := make([]*Def, 0, len(u.byCode))
	for _, d := range u.byCode {
		defs = append(defs, d)
	}
	return defs
}
