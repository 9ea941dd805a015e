package dhcp4core

import (
	"fmt"
	"net"
	"time"

	"github.com/krolaw/dhcp4"

	"dhcpd/internal/apperr"
	"dhcpd/internal/group"
	"dhcpd/internal/lease"
)

// handleRequest implements spec §4.2's DHCPREQUEST state table:
// SELECTING (server identifier present and matches us), INIT-REBOOT
// (requested-IP option, no ciaddr, no server identifier), and
// RENEWING/REBINDING (ciaddr set, no requested-IP option).
func (h *Handler) handleRequest(pa *PacketAdapter, classes []*group.Class) dhcp4.Packet {
	now := time.Now()
	uid := pa.ClientIdentifier()
	hw := pa.HardwareAddress()

	serverID, hasServerID := pa.Options[dhcp4.OptionServerIdentifier]
	requestedIP, hasRequested := pa.RequestedIP()
	ciaddr := pa.Raw.CIAddr()
	hasCIAddr := ciaddr != nil && !ciaddr.Equal(net.IPv4zero)

	if hasServerID {
		if !net.IP(serverID).Equal(h.ServerIP) {
			// SELECTING for a different server: stay silent.
			return nil
		}
		return h.commitRequest(pa, classes, requestedIP, uid, hw, now)
	}

	if hasRequested && !hasCIAddr {
		return h.commitRequest(pa, classes, requestedIP, uid, hw, now)
	}

	if hasCIAddr {
		var asArray [4]byte
		copy(asArray[:], ciaddr.To4())
		return h.commitRequest(pa, classes, asArray, uid, hw, now)
	}

	return nil
}

// commitRequest binds (or confirms) a lease at ip for this client,
// running the negotiated-lifetime and class-billing steps and
// returning DHCPACK, or DHCPNAK when the address can't legitimately be
// given to this client and the owning scope is authoritative (spec
// §4.2's DHCPNAK-on-foreign-lease rule).
func (h *Handler) commitRequest(pa *PacketAdapter, classes []*group.Class, ip [4]byte, uid, hw []byte, now time.Time) dhcp4.Packet {
	existing, hasExisting := h.DB.ByIP(ip)
	if !hasExisting {
		return h.nakIfAuthoritative(pa, ip)
	}

	if lease.IdentityConflicts(existing, uid, hw, now) {
		if h.Logger != nil {
			apperr.Log(h.Logger, apperr.LeaseConflict("dhcp4_request",
				fmt.Errorf("ip %s already bound to a different identity", net.IP(ip[:]))))
		}
		return h.nakIfAuthoritative(pa, ip)
	}

	if !billAll(classes) {
		return h.nakIfAuthoritative(pa, ip)
	}

	lifetime := h.negotiateLifetime(pa.Options)
	className := ""
	if len(classes) > 0 {
		className = classes[0].Name
	}

	hostHandle := existing.Host
	if hb, ok := h.hostBindingFor(uid, hw); ok && hb.HasFixed && hb.FixedAddress == ip {
		hostHandle = hb.ScopeHandle
	}

	if !h.DB.Supersede(existing.Handle, lease.SupersedeRequest{
		HWAddr: hw, ClientID: uid, Starts: now, Ends: now.Add(lifetime),
		State: lease.StateActive, Host: hostHandle, BillingClass: className,
	}) {
		return h.nakIfAuthoritative(pa, ip)
	}

	scope := h.poolScope(existing.Pool)
	st := resolveOptionState(h.hostFor(existing), scope, classes)
	return buildReply(pa.Raw, dhcp4.ACK, h.ServerIP, netIPFromBytes(ip), lifetime, st, pa.ParameterRequestList())
}

// nakIfAuthoritative sends DHCPNAK when the pool owning ip (if any)
// is authoritative, and falls silent otherwise — an address outside
// any pool this server owns is none of its business, per spec §4.2.
func (h *Handler) nakIfAuthoritative(pa *PacketAdapter, ip [4]byte) dhcp4.Packet {
	for _, pb := range h.Pools {
		pool, ok := h.DB.Pool(pb.Handle)
		if !ok || !pool.Contains(ip) {
			continue
		}
		if pb.Scope != nil && pb.Scope.IsAuthoritative() {
			res, err := dhcp4.ReplyPacket(pa.Raw, dhcp4.NAK, h.ServerIP, net.IPv4zero, 0, nil)
			if err != nil {
				return nil
			}
			return res
		}
	}
	return nil
}
