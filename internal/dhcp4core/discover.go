package dhcp4core

import (
	"time"

	"github.com/krolaw/dhcp4"

	"dhcpd/internal/group"
	"dhcpd/internal/lease"
	"dhcpd/internal/slab"
)

// poolScope resolves which scope a pool handle's configuration lives
// in, for reply assembly.
func (h *Handler) poolScope(poolHandle slab.Handle) *group.Group {
	for _, pb := range h.Pools {
		if pb.Handle == poolHandle {
			return pb.Scope
		}
	}
	return h.Root
}

// hostFor resolves the host declaration scope bound to a lease, if
// any.
func (h *Handler) hostFor(l lease.Lease) *group.Group {
	if l.Host.IsZero() || h.HostScopes == nil {
		return nil
	}
	g, ok := h.HostScopes.Get(l.Host)
	if !ok {
		return nil
	}
	return g
}

// handleDiscover implements spec §4.2's DHCPDISCOVER handling: reuse
// the client's existing binding if one exists (its expiry is not
// checked), otherwise allocate the next free lease from the first pool
// that still has one, optionally ping-checking it first.
func (h *Handler) handleDiscover(pa *PacketAdapter, classes []*group.Class) dhcp4.Packet {
	now := time.Now()
	uid := pa.ClientIdentifier()
	hw := pa.HardwareAddress()

	if hb, ok := h.hostBindingFor(uid, hw); ok && hb.HasFixed {
		return h.offerFixed(pa, hb)
	}

	if existing, ok := h.existingBindingFor(uid, hw); ok {
		return h.offerFor(pa, classes, existing, now)
	}

	if !billAll(classes) {
		h.logf("discover: client class lease limit reached")
		return nil
	}

	for _, pb := range h.Pools {
		pool, ok := h.DB.Pool(pb.Handle)
		if !ok || len(pool.Order) == 0 {
			continue
		}

		var candidateHandle slab.Handle
		if pool.InsertionPoint > 0 {
			candidateHandle = pool.Order[0]
		} else {
			// Free segment exhausted: every address has been handed out
			// at least once. Fall back to the soonest-to-expire active
			// lease, reclaiming it only if it has actually expired —
			// otherwise this pool has nothing left to offer right now.
			head := pool.Order[pool.InsertionPoint]
			l, ok := h.DB.Get(head)
			if !ok || l.Ends.After(now) {
				continue
			}
			candidateHandle = head
		}

		candidate, ok := h.DB.Get(candidateHandle)
		if !ok {
			continue
		}

		if h.Cfg.PingCheck && h.Prober != nil {
			inUse, err := h.Prober.InUse(netIPFromBytes(candidate.IP), h.Cfg.PingTimeout)
			if err == nil && inUse {
				h.DB.Abandon(candidateHandle, now, 10*time.Minute)
				releaseAll(classes)
				continue
			}
		}

		releaseAll(classes) // DISCOVER never actually commits a binding
		return h.offerFor(pa, classes, candidate, now)
	}
	releaseAll(classes)
	h.logf("discover: no free lease available for %x", hw)
	return nil
}

// existingBindingFor returns a lease already associated with this
// client's UID or hardware address, preferring the UID match per spec
// §4.1's lookup order.
func (h *Handler) existingBindingFor(uid, hw []byte) (lease.Lease, bool) {
	for _, l := range h.DB.ByUID(uid) {
		return l, true
	}
	for _, l := range h.DB.ByHW(hw) {
		return l, true
	}
	return lease.Lease{}, false
}

func (h *Handler) offerFor(pa *PacketAdapter, classes []*group.Class, l lease.Lease, now time.Time) dhcp4.Packet {
	lifetime := h.negotiateLifetime(pa.Options)
	scope := h.poolScope(l.Pool)
	st := resolveOptionState(h.hostFor(l), scope, classes)
	return buildReply(pa.Raw, dhcp4.Offer, h.ServerIP, netIPFromBytes(l.IP), lifetime, st, pa.ParameterRequestList())
}

// offerFixed builds an OFFER for a host declaration's fixed address
// without touching the lease database — spec's testable scenario (f)
// requires the offer but forbids persisting a dynamic lease for it;
// the binding only lands in the database once the client REQUESTs it
// and commitRequest supersedes the pre-registered fixed-address lease.
func (h *Handler) offerFixed(pa *PacketAdapter, hb HostBinding) dhcp4.Packet {
	lifetime := h.negotiateLifetime(pa.Options)
	st := resolveOptionState(h.hostScope(hb), h.Root, nil)
	return buildReply(pa.Raw, dhcp4.Offer, h.ServerIP, netIPFromBytes(hb.FixedAddress), lifetime, st, pa.ParameterRequestList())
}

func (h *Handler) logf(format string, args ...any) {
	if h.Logger != nil {
		h.Logger.Warn(format, "args", args)
	}
}
