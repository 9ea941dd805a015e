package dhcp4core

import (
	"net"
	"testing"
	"time"

	"github.com/krolaw/dhcp4"
	"github.com/stretchr/testify/require"

	"dhcpd/internal/group"
	"dhcpd/internal/lease"
	"dhcpd/internal/slab"
)

// newTestHandler builds a Handler over a three-address authoritative
// pool (192.0.2.10-192.0.2.12), exercising the DHCPv4 state machine
// end to end the way a real packet would drive it.
func newTestHandler() *Handler {
	db := lease.New()
	poolHandle := db.NewPool("test", [4]byte{192, 0, 2, 10}, [4]byte{192, 0, 2, 12})
	for ip := byte(10); ip <= 12; ip++ {
		db.AddFreeLease(poolHandle, [4]byte{192, 0, 2, ip})
	}

	root := group.New(group.KindRoot, "", nil)
	root.Authoritative = true

	return &Handler{
		DB:         db,
		Root:       root,
		Pools:      []*PoolBinding{{Handle: poolHandle, Scope: root}},
		HostScopes: slab.NewArena[*group.Group](),
		Cfg:        Config{DefaultLease: time.Hour, MaxLease: 2 * time.Hour},
		ServerIP:   net.IPv4(192, 0, 2, 1).To4(),
	}
}

func newPacket(hw net.HardwareAddr) dhcp4.Packet {
	p := make(dhcp4.Packet, 241)
	p.SetCHAddr(hw)
	return p
}

func messageType(p dhcp4.Packet) dhcp4.MessageType {
	opt := p.ParseOptions()[dhcp4.OptionDHCPMessageType]
	if len(opt) != 1 {
		return 0
	}
	return dhcp4.MessageType(opt[0])
}

// (a) DISCOVER -> OFFER: a fresh client gets the first free address,
// and DISCOVER never persists a binding.
func TestScenarioDiscoverOffersFreeAddress(t *testing.T) {
	h := newTestHandler()
	hw := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}

	reply := h.ServeDHCP(newPacket(hw), dhcp4.Discover, h.ServerIP, dhcp4.Options{})
	require.NotNil(t, reply)
	require.Equal(t, dhcp4.Offer, messageType(reply))
	require.True(t, reply.YIAddr().Equal(net.IPv4(192, 0, 2, 10)))

	require.Empty(t, h.DB.ByHW(hw), "discover must not persist a dynamic lease")
}

// (b) REQUEST confirms the offered address: ACK, and the lease
// database now holds an active binding for this client.
func TestScenarioRequestCommitsBinding(t *testing.T) {
	h := newTestHandler()
	hw := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	opts := dhcp4.Options{dhcp4.OptionRequestedIPAddress: {192, 0, 2, 10}}

	reply := h.ServeDHCP(newPacket(hw), dhcp4.Request, h.ServerIP, opts)
	require.NotNil(t, reply)
	require.Equal(t, dhcp4.ACK, messageType(reply))

	l, ok := h.DB.ByIP([4]byte{192, 0, 2, 10})
	require.True(t, ok)
	require.Equal(t, lease.StateActive, l.State)
	require.Equal(t, []byte(hw), l.HWAddr)
}

// (c) A second client's REQUEST for the same hardware address but a
// different client-id, while the lease is still active, must be
// NAKed and must not mutate the existing binding.
func TestScenarioRequestConflictingIdentityIsNAKed(t *testing.T) {
	h := newTestHandler()
	hw := net.HardwareAddr{1, 2, 3, 4, 5, 6}

	firstOpts := dhcp4.Options{
		dhcp4.OptionRequestedIPAddress: {192, 0, 2, 10},
		dhcp4.OptionClientIdentifier:   []byte("client-a"),
	}
	reply1 := h.ServeDHCP(newPacket(hw), dhcp4.Request, h.ServerIP, firstOpts)
	require.NotNil(t, reply1)
	require.Equal(t, dhcp4.ACK, messageType(reply1))

	secondOpts := dhcp4.Options{
		dhcp4.OptionRequestedIPAddress: {192, 0, 2, 10},
		dhcp4.OptionClientIdentifier:   []byte("client-b"),
	}
	reply2 := h.ServeDHCP(newPacket(hw), dhcp4.Request, h.ServerIP, secondOpts)
	require.NotNil(t, reply2)
	require.Equal(t, dhcp4.NAK, messageType(reply2))

	l, _ := h.DB.ByIP([4]byte{192, 0, 2, 10})
	require.Equal(t, []byte("client-a"), l.ClientID, "a rejected claim must not mutate the database")
}

// (d) DECLINE only abandons a lease the declining client actually
// holds; an unrelated client declining someone else's address is a
// no-op.
func TestScenarioDeclineRequiresOwnership(t *testing.T) {
	h := newTestHandler()
	owner := net.HardwareAddr{1, 1, 1, 1, 1, 1}
	opts := dhcp4.Options{dhcp4.OptionRequestedIPAddress: {192, 0, 2, 10}}
	require.NotNil(t, h.ServeDHCP(newPacket(owner), dhcp4.Request, h.ServerIP, opts))

	stranger := net.HardwareAddr{2, 2, 2, 2, 2, 2}
	h.ServeDHCP(newPacket(stranger), dhcp4.Decline, h.ServerIP, opts)

	l, _ := h.DB.ByIP([4]byte{192, 0, 2, 10})
	require.Equal(t, lease.StateActive, l.State, "decline from a non-owner must not abandon the lease")

	h.ServeDHCP(newPacket(owner), dhcp4.Decline, h.ServerIP, opts)
	l2, _ := h.DB.ByIP([4]byte{192, 0, 2, 10})
	require.Equal(t, lease.StateAbandoned, l2.State)
}

// (e) RELEASE returns an address to circulation immediately, and a
// subsequent DISCOVER from a different client reclaims it even though
// every address in the pool has already been handed out once.
func TestScenarioReleasedAddressIsReclaimedByNewClient(t *testing.T) {
	db := lease.New()
	poolHandle := db.NewPool("test", [4]byte{192, 0, 2, 10}, [4]byte{192, 0, 2, 10})
	db.AddFreeLease(poolHandle, [4]byte{192, 0, 2, 10})

	root := group.New(group.KindRoot, "", nil)
	root.Authoritative = true

	h := &Handler{
		DB:         db,
		Root:       root,
		Pools:      []*PoolBinding{{Handle: poolHandle, Scope: root}},
		HostScopes: slab.NewArena[*group.Group](),
		Cfg:        Config{DefaultLease: time.Hour, MaxLease: 2 * time.Hour},
		ServerIP:   net.IPv4(192, 0, 2, 1).To4(),
	}

	owner := net.HardwareAddr{1, 1, 1, 1, 1, 1}
	requestOpts := dhcp4.Options{dhcp4.OptionRequestedIPAddress: {192, 0, 2, 10}}
	require.NotNil(t, h.ServeDHCP(newPacket(owner), dhcp4.Request, h.ServerIP, requestOpts))

	other := net.HardwareAddr{2, 2, 2, 2, 2, 2}
	discoverPkt := newPacket(other)
	require.Nil(t, h.ServeDHCP(discoverPkt, dhcp4.Discover, h.ServerIP, dhcp4.Options{}),
		"pool is fully assigned and the one lease is still active")

	releasePkt := newPacket(owner)
	releasePkt.SetCIAddr(net.IPv4(192, 0, 2, 10).To4())
	h.ServeDHCP(releasePkt, dhcp4.Release, h.ServerIP, dhcp4.Options{})

	reply := h.ServeDHCP(discoverPkt, dhcp4.Discover, h.ServerIP, dhcp4.Options{})
	require.NotNil(t, reply)
	require.True(t, reply.YIAddr().Equal(net.IPv4(192, 0, 2, 10)), "released address must be offered to the new client")
}

// (f) A host declaration with a fixed address is offered that exact
// address on DISCOVER without ever touching the lease database, and
// the binding only lands in the database once REQUEST commits it.
func TestScenarioFixedAddressReservation(t *testing.T) {
	h := newTestHandler()
	hostScope := group.New(group.KindHost, "fixed-host", h.Root)
	scopeHandle := h.HostScopes.Insert(hostScope)

	hw := net.HardwareAddr{0x52, 0x54, 0x00, 0xaa, 0xbb, 0xcc}
	fixedIP := [4]byte{192, 0, 2, 5}
	h.Hosts = []HostBinding{{
		Name: "fixed-host", HWAddr: hw, FixedAddress: fixedIP, HasFixed: true, ScopeHandle: scopeHandle,
	}}
	h.DB.AddFreeLease(slab.Handle{}, fixedIP)

	pkt := newPacket(hw)
	reply := h.ServeDHCP(pkt, dhcp4.Discover, h.ServerIP, dhcp4.Options{})
	require.NotNil(t, reply)
	require.True(t, reply.YIAddr().Equal(net.IPv4(192, 0, 2, 5)))
	require.Empty(t, h.DB.ByHW(hw), "discover must not persist a dynamic lease for a fixed-address host")

	opts := dhcp4.Options{dhcp4.OptionRequestedIPAddress: {192, 0, 2, 5}}
	reply2 := h.ServeDHCP(pkt, dhcp4.Request, h.ServerIP, opts)
	require.NotNil(t, reply2)
	require.Equal(t, dhcp4.ACK, messageType(reply2))

	l, ok := h.DB.ByIP(fixedIP)
	require.True(t, ok)
	require.Equal(t, lease.StateActive, l.State)
	require.Equal(t, scopeHandle, l.Host)
}
