package dhcp4core

import (
	"log/slog"
	"net"
	"time"

	"github.com/krolaw/dhcp4"

	"dhcpd/internal/expr"
	"dhcpd/internal/group"
	"dhcpd/internal/lease"
	"dhcpd/internal/options"
	"dhcpd/internal/probe"
	"dhcpd/internal/slab"
)

// Config bundles the tunables spec §4.2 leaves to configuration:
// default/max negotiated lease lifetimes and whether a ping-check must
// complete before a DISCOVER is answered.
type Config struct {
	DefaultLease time.Duration
	MaxLease     time.Duration
	PingCheck    bool
	PingTimeout  time.Duration
}

// PoolBinding ties a lease pool back to the scope (subnet, typically)
// that owns its configuration, so reply assembly can resolve
// config-options for whichever pool an allocation came from.
type PoolBinding struct {
	Handle slab.Handle
	Scope  *group.Group
}

// HostBinding is a parsed `host name { ... }` declaration, reshaped for
// runtime matching: a client identified by ClientID or HWAddr is
// "known" per spec §3's host-declaration entity, and "static" when
// HasFixed pins it to a specific address rather than pool allocation.
type HostBinding struct {
	Name         string
	HWAddr       []byte
	ClientID     []byte
	FixedAddress [4]byte
	HasFixed     bool
	ScopeHandle  slab.Handle // into Handler.HostScopes
}

// Handler implements github.com/krolaw/dhcp4's Handler interface,
// dispatching each inbound packet through classification, lease
// lookup, and per-message-type handling exactly as spec §4.2 describes.
type Handler struct {
	DB       *lease.Database
	Root     *group.Group
	Registry *options.Registry
	Classes  []*group.Class
	Pools    []*PoolBinding
	Hosts    []HostBinding
	// HostScopes addresses host-declaration *group.Group values by the
	// same slab.Handle a bound lease's Host field carries, keeping host
	// scopes out of the lease package's own arena (a lease doesn't own
	// its host declaration's lifetime).
	HostScopes *slab.Arena[*group.Group]
	Prober     probe.Prober
	Resolver expr.Resolver
	Updater  expr.NSUpdater
	Logger   *slog.Logger
	Cfg      Config
	ServerIP net.IP
}

// ServeDHCP is the krolaw/dhcp4 ServeConn entry point.
func (h *Handler) ServeDHCP(req dhcp4.Packet, msgType dhcp4.MessageType, serverAddr net.IP, opts dhcp4.Options) dhcp4.Packet {
	pa := &PacketAdapter{Raw: req, Options: opts}
	pa.IsKnown, pa.IsStatic = h.classifyKnownStatic(pa)

	classes := h.matchClasses(pa)

	switch msgType {
	case dhcp4.Discover:
		return h.handleDiscover(pa, classes)
	case dhcp4.Request:
		return h.handleRequest(pa, classes)
	case dhcp4.Decline:
		h.handleDecline(pa)
		return nil
	case dhcp4.Release:
		h.handleRelease(pa)
		return nil
	case dhcp4.Inform:
		return h.handleInform(pa, classes)
	default:
		return nil
	}
}

// classifyKnownStatic reports whether the requesting client matches a
// host declaration (spec's "known client") and whether that host
// declaration pins a fixed-address (spec's "static" binding).
func (h *Handler) classifyKnownStatic(pa *PacketAdapter) (known, static bool) {
	if hb, ok := h.hostBindingFor(pa.ClientIdentifier(), pa.HardwareAddress()); ok {
		return true, hb.HasFixed
	}
	hw := pa.HardwareAddress()
	for _, l := range h.DB.ByHW(hw) {
		if !l.Host.IsZero() {
			return true, true
		}
	}
	return false, false
}

// hostBindingFor returns the host declaration matching uid or hw,
// preferring a client-id match over a hardware-address match (the same
// precedence existingBindingFor gives dynamic leases).
func (h *Handler) hostBindingFor(uid, hw []byte) (HostBinding, bool) {
	for _, hb := range h.Hosts {
		if len(uid) > 0 && len(hb.ClientID) > 0 && string(uid) == string(hb.ClientID) {
			return hb, true
		}
	}
	for _, hb := range h.Hosts {
		if len(hw) > 0 && len(hb.HWAddr) > 0 && string(hw) == string(hb.HWAddr) {
			return hb, true
		}
	}
	return HostBinding{}, false
}

// hostScope resolves a host binding's configuration scope, if any.
func (h *Handler) hostScope(hb HostBinding) *group.Group {
	if hb.ScopeHandle.IsZero() || h.HostScopes == nil {
		return nil
	}
	g, ok := h.HostScopes.Get(hb.ScopeHandle)
	if !ok {
		return nil
	}
	return g
}

// matchClasses evaluates every registered class's match expression
// against the packet, returning the classes it belongs to, per spec
// §4.2's classification step.
func (h *Handler) matchClasses(pa *PacketAdapter) []*group.Class {
	ctx := &expr.Context{Packet: pa, Resolver: h.Resolver, Updater: h.Updater}
	var matched []*group.Class
	for _, c := range h.Classes {
		if c.Matches(ctx) {
			matched = append(matched, c)
		}
	}
	return matched
}

func billAll(classes []*group.Class) bool {
	billed := make([]*group.Class, 0, len(classes))
	for _, c := range classes {
		if !c.Bill() {
			for _, b := range billed {
				b.Release()
			}
			return false
		}
		billed = append(billed, c)
	}
	return true
}

func releaseAll(classes []*group.Class) {
	for _, c := range classes {
		c.Release()
	}
}

// negotiateLifetime clamps the client's requested lease time (option
// 51, if present) to [0, Cfg.MaxLease], defaulting to Cfg.DefaultLease
// when absent, per spec §4.2's negotiated lifetime rule.
func (h *Handler) negotiateLifetime(opts dhcp4.Options) time.Duration {
	want := h.Cfg.DefaultLease
	if v, ok := opts[dhcp4.OptionIPAddressLeaseTime]; ok && len(v) == 4 {
		secs := int64(v[0])<<24 | int64(v[1])<<16 | int64(v[2])<<8 | int64(v[3])
		want = time.Duration(secs) * time.Second
	}
	if h.Cfg.MaxLease > 0 && want > h.Cfg.MaxLease {
		want = h.Cfg.MaxLease
	}
	return want
}

type leaseView struct{ l lease.Lease }

func (v leaseView) LeasedAddress() []byte { return v.l.IP[:] }
func (v leaseView) HostDeclName() string  { return "" }

var _ expr.LeaseView = leaseView{}
