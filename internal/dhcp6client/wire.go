package dhcp6client

import (
	"net"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv6"
	"github.com/insomniacslk/dhcp/iana"
)

// NewClientDUID builds a DUID-LL from a link-layer address, the DUID
// form spec §6 calls for when the client has no stable DUID-LLT clock
// source (e.g. an embedded client without a real-time clock).
func NewClientDUID(hwType iana.HWType, hwAddr net.HardwareAddr) *dhcpv6.DUID {
	return &dhcpv6.DUID{
		Type:          dhcpv6.DUID_LL,
		HwType:        hwType,
		LinkLayerAddr: hwAddr,
	}
}

// BuildSolicit constructs a SOLICIT message requesting one IA_NA, per
// RFC 3315 §17.1.1.
func BuildSolicit(clientID *dhcpv6.DUID, iaid [4]byte) (*dhcpv6.Message, error) {
	msg, err := dhcpv6.NewSolicit(net.HardwareAddr{})
	if err != nil {
		return nil, err
	}
	msg.MessageType = dhcpv6.MessageTypeSolicit
	msg.AddOption(&dhcpv6.OptClientID{DUID: *clientID})
	msg.AddOption(&dhcpv6.OptIANA{IaId: iaid})
	return msg, nil
}

// BuildRequest constructs a REQUEST carrying the server's advertised
// IA_NA/IAADDR back, per RFC 3315 §18.1.1.
func BuildRequest(clientID, serverID *dhcpv6.DUID, iaNA *dhcpv6.OptIANA) (*dhcpv6.Message, error) {
	msg, err := dhcpv6.NewMessage()
	if err != nil {
		return nil, err
	}
	msg.MessageType = dhcpv6.MessageTypeRequest
	msg.AddOption(&dhcpv6.OptClientID{DUID: *clientID})
	msg.AddOption(&dhcpv6.OptServerID{DUID: *serverID})
	msg.AddOption(iaNA)
	return msg, nil
}

// BuildRenew constructs a RENEW for an existing binding's IA_NA, per
// RFC 3315 §18.1.3.
func BuildRenew(clientID, serverID *dhcpv6.DUID, iaNA *dhcpv6.OptIANA) (*dhcpv6.Message, error) {
	msg, err := dhcpv6.NewMessage()
	if err != nil {
		return nil, err
	}
	msg.MessageType = dhcpv6.MessageTypeRenew
	msg.AddOption(&dhcpv6.OptClientID{DUID: *clientID})
	msg.AddOption(&dhcpv6.OptServerID{DUID: *serverID})
	msg.AddOption(iaNA)
	return msg, nil
}

// BuildRebind constructs a REBIND, per RFC 3315 §18.1.4 — identical in
// shape to RENEW but without a server identifier, since rebinding is a
// broadcast-equivalent exchange addressed to any server.
func BuildRebind(clientID *dhcpv6.DUID, iaNA *dhcpv6.OptIANA) (*dhcpv6.Message, error) {
	msg, err := dhcpv6.NewMessage()
	if err != nil {
		return nil, err
	}
	msg.MessageType = dhcpv6.MessageTypeRebind
	msg.AddOption(&dhcpv6.OptClientID{DUID: *clientID})
	msg.AddOption(iaNA)
	return msg, nil
}

// IAAddr builds the IAADDR option carrying one leased address and its
// preferred/valid lifetimes, per RFC 3315 §22.6.
func IAAddr(ip net.IP, preferred, valid time.Duration) *dhcpv6.OptIAAddress {
	return &dhcpv6.OptIAAddress{
		IPv6Addr:          ip,
		PreferredLifetime: preferred,
		ValidLifetime:     valid,
	}
}

// ExtractBinding pulls the first IAADDR out of a server's IA_NA reply,
// for the client to persist as its current binding.
func ExtractBinding(iaNA *dhcpv6.OptIANA) (*dhcpv6.OptIAAddress, bool) {
	for _, opt := range iaNA.Options.Options {
		if addr, ok := opt.(*dhcpv6.OptIAAddress); ok {
			return addr, true
		}
	}
	return nil, false
}
