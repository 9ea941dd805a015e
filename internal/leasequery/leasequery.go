// Package leasequery implements RFC 4388 DHCPLEASEQUERY handling from
// spec §6: a relay or access concentrator asks the server what it
// knows about a lease by IP, hardware address, or client identifier,
// and the server answers LEASEACTIVE, LEASEUNKNOWN, or LEASEUNASSIGNED
// without ever handing out a new binding.
package leasequery

import (
	"net"
	"time"

	"github.com/krolaw/dhcp4"

	"dhcpd/internal/lease"
)

// Query form, keyed by which identifying option the request carried.
type QueryType int

const (
	QueryByIP QueryType = iota
	QueryByHWAddr
	QueryByClientID
)

// DHCPLEASEQUERY's message-type code isn't one of krolaw/dhcp4's named
// constants (it predates the library's RFC 2131 core); LEASEQUERY and
// its three replies are defined here as the wire layer's extension
// point for RFC 4388.
const (
	MsgLeaseQuery    dhcp4.MessageType = 10
	MsgLeaseUnassigned dhcp4.MessageType = 11
	MsgLeaseUnknown  dhcp4.MessageType = 12
	MsgLeaseActive   dhcp4.MessageType = 13
)

// Handler answers LEASEQUERY requests against the shared lease
// database. It never mutates the database — LEASEQUERY is read-only
// by definition (RFC 4388 §6.1).
type Handler struct {
	DB       *lease.Database
	ServerIP net.IP
}

// Answer classifies req and returns the reply message type the wire
// layer should send, plus the lease found (if any).
func (h *Handler) Answer(qt QueryType, key []byte) (dhcp4.MessageType, *lease.Lease) {
	var candidates []lease.Lease
	switch qt {
	case QueryByIP:
		if len(key) == 4 {
			var ip [4]byte
			copy(ip[:], key)
			if l, ok := h.DB.ByIP(ip); ok {
				candidates = []lease.Lease{l}
			}
		}
	case QueryByHWAddr:
		candidates = h.DB.ByHW(key)
	case QueryByClientID:
		candidates = h.DB.ByUID(key)
	}

	if len(candidates) == 0 {
		return MsgLeaseUnknown, nil
	}

	l := candidates[0]
	if l.State != lease.StateActive || l.Ends.Before(time.Now()) {
		return MsgLeaseUnassigned, &l
	}
	return MsgLeaseActive, &l
}

// ReplyOptions describes the RFC 4388 §6.4 options a LEASEACTIVE reply
// must carry: the client's last known hardware address, the remaining
// lease lifetime, and the associated IP address — left as plain
// fields rather than wire bytes so internal/dhcp4core's reply builder
// composes them with the rest of the option engine's output.
type ReplyOptions struct {
	ClientMAC  []byte
	ClientID   []byte
	LeaseTime  time.Duration
	AssignedIP [4]byte
}

// BuildReplyOptions computes the RFC 4388 option set for an active
// lease found by Answer.
func BuildReplyOptions(l *lease.Lease, now time.Time) ReplyOptions {
	remaining := l.Ends.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return ReplyOptions{
		ClientMAC:  l.HWAddr,
		ClientID:   l.ClientID,
		LeaseTime:  remaining,
		AssignedIP: l.IP,
	}
}
