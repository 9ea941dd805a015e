package dhcp4core

import (
	"net"
	"time"

	"github.com/krolaw/dhcp4"

	"dhcpd/internal/group"
	"dhcpd/internal/options"
)

// resolveOptionState collects every config-option visible to a lease
// decision: the host declaration's scope (if bound), then every
// matched class's scope, then the subnet/shared-network/root chain —
// most specific wins, per spec §4.2's "classes add to, never replace,
// subnet configuration" rule combined with §4.1's scope-chain lookup.
func resolveOptionState(host, subnet *group.Group, classes []*group.Class) *options.State {
	out := options.NewState()

	// Root to most-specific order so later writes (more specific)
	// override earlier ones.
	var chain []*group.Group
	if subnet != nil {
		for n := subnet; n != nil; n = n.Parent {
			chain = append([]*group.Group{n}, chain...)
		}
	}
	for _, g := range chain {
		copyInto(out, g.Options)
	}
	for _, c := range classes {
		copyInto(out, c.Options)
	}
	if host != nil {
		copyInto(out, host.Options)
	}
	return out
}

func copyInto(dst, src *options.State) {
	for _, universe := range []string{"dhcp", "server"} {
		src.Each(universe, func(code uint8, c *options.Cache) {
			dst.Set(universe, code, &options.Cache{Data: c.Data, Expr: c.Expr})
		})
	}
}

// buildReply assembles a DHCPv4 reply packet: message type, server
// identifier, yiaddr, and every config-option visible to this
// decision, encoded through the option engine's PRL ordering and
// overload rules (spec §4.3).
func buildReply(req dhcp4.Packet, mt dhcp4.MessageType, serverIP net.IP, yiaddr net.IP, lifetime time.Duration, st *options.State, prl []uint8) dhcp4.Packet {
	res, err := dhcp4.ReplyPacket(req, mt, serverIP, yiaddr, lifetime, selectOptions(st, prl))
	if err != nil {
		return nil
	}
	return res
}

// selectOptions turns the resolved option state into krolaw/dhcp4's
// []Option form, in PRL-then-priority order from the engine's own
// Encapsulate so the wire layer doesn't need its own ordering policy.
func selectOptions(st *options.State, prl []uint8) []dhcp4.Option {
	enc := options.Encapsulate(st, "dhcp", prl, 1200, 0, 0)
	decoded, err := options.DecodeDHCP(enc.Options)
	if err != nil {
		return nil
	}
	var out []dhcp4.Option
	decoded.Each("dhcp", func(code uint8, c *options.Cache) {
		out = append(out, dhcp4.Option{Code: dhcp4.OptionCode(code), Value: c.Data})
	})
	return out
}
