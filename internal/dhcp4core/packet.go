// Package dhcp4core implements the DHCPv4 request state machine from
// spec §4.2: classification against the class chain, lease lookup by
// UID/hardware address/requested IP, per-message-type handling, and
// reply assembly through the option engine. Wire encode/decode uses
// github.com/krolaw/dhcp4, the teacher's own BOOTP/DHCPv4 codec.
package dhcp4core

import (
	"net"

	"github.com/krolaw/dhcp4"

	"dhcpd/internal/expr"
)

// netIPFromBytes converts a 4-byte address to a net.IP, the form
// krolaw/dhcp4's reply builders expect.
func netIPFromBytes(ip [4]byte) net.IP {
	return net.IPv4(ip[0], ip[1], ip[2], ip[3])
}

// PacketAdapter implements expr.PacketView over a krolaw/dhcp4 wire
// packet plus its parsed options, so the expression engine can read
// `hardware`, `packet(offset,len)`, `known`, and `static` without this
// package importing internal/expr's evaluator internals.
type PacketAdapter struct {
	Raw       dhcp4.Packet
	Options   dhcp4.Options
	IsKnown   bool
	IsStatic  bool
}

func (p *PacketAdapter) HardwareAddress() []byte { return []byte(p.Raw.CHAddr()) }

func (p *PacketAdapter) RawSlice(offset, length int) []byte {
	if offset < 0 || offset >= len(p.Raw) {
		return nil
	}
	end := offset + length
	if end > len(p.Raw) {
		end = len(p.Raw)
	}
	return p.Raw[offset:end]
}

func (p *PacketAdapter) Known() bool  { return p.IsKnown }
func (p *PacketAdapter) Static() bool { return p.IsStatic }

// ClientIdentifier returns option 61 if present, else the hardware
// address, matching the source's uid-vs-hw fallback for lease
// identity (spec §4.1 "by_uid index").
func (p *PacketAdapter) ClientIdentifier() []byte {
	if v, ok := p.Options[dhcp4.OptionClientIdentifier]; ok && len(v) > 0 {
		return v
	}
	return []byte(p.Raw.CHAddr())
}

// RequestedIP returns option 50 (DHCPREQUEST's requested address) if
// present.
func (p *PacketAdapter) RequestedIP() ([4]byte, bool) {
	v, ok := p.Options[dhcp4.OptionRequestedIPAddress]
	if !ok || len(v) != 4 {
		return [4]byte{}, false
	}
	var out [4]byte
	copy(out[:], v)
	return out, true
}

// ParameterRequestList returns option 55's raw code list, used to
// order the reply per spec §4.3.
func (p *PacketAdapter) ParameterRequestList() []uint8 {
	return []uint8(p.Options[dhcp4.OptionParameterRequestList])
}

var _ expr.PacketView = (*PacketAdapter)(nil)
