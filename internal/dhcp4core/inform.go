package dhcp4core

import (
	"net"

	"github.com/krolaw/dhcp4"

	"dhcpd/internal/group"
)

// handleInform implements spec §4.2's DHCPINFORM handling: the client
// already has an address (often statically configured) and only wants
// configuration options, so the reply carries no lease lifetime and no
// address assignment — ciaddr echoes back what the client sent.
func (h *Handler) handleInform(pa *PacketAdapter, classes []*group.Class) dhcp4.Packet {
	ciaddr := pa.Raw.CIAddr()
	if ciaddr == nil {
		return nil
	}

	var scope *group.Group
	for _, pb := range h.Pools {
		var ip [4]byte
		copy(ip[:], ciaddr.To4())
		if pool, ok := h.DB.Pool(pb.Handle); ok && pool.Contains(ip) {
			scope = pb.Scope
			break
		}
	}

	st := resolveOptionState(nil, scope, classes)
	res := buildReply(pa.Raw, dhcp4.ACK, h.ServerIP, net.IPv4zero, 0, st, pa.ParameterRequestList())
	if res != nil {
		res.SetCIAddr(ciaddr)
	}
	return res
}
