package dhcp4core

import "time"

// handleRelease implements spec §4.2's DHCPRELEASE handling: the
// client's binding is released back to the pool immediately, its
// negotiated lifetime abandoned early rather than waited out.
func (h *Handler) handleRelease(pa *PacketAdapter) {
	ciaddr := pa.Raw.CIAddr()
	if ciaddr == nil {
		return
	}
	var ip [4]byte
	copy(ip[:], ciaddr.To4())

	l, ok := h.DB.ByIP(ip)
	if !ok {
		return
	}
	hw := pa.HardwareAddress()
	if string(l.HWAddr) != string(hw) {
		// Not this client's lease to release.
		return
	}
	h.DB.Release(l.Handle, time.Now())
	h.logf("release: %v released by %x", ip, hw)
}
