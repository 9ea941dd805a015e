package dhcp4core

import "time"

// handleDecline implements spec §4.2's DHCPDECLINE handling: the
// client detected an address conflict, so the lease is marked
// Abandoned and quarantined rather than reassigned immediately.
func (h *Handler) handleDecline(pa *PacketAdapter) {
	ip, ok := pa.RequestedIP()
	if !ok {
		return
	}
	l, ok := h.DB.ByIP(ip)
	if !ok {
		return
	}
	hw := pa.HardwareAddress()
	if string(l.HWAddr) != string(hw) {
		// Not this client's lease to decline.
		return
	}
	h.DB.Abandon(l.Handle, time.Now(), 10*time.Minute)
	h.logf("decline: %v abandoned", ip)
}
