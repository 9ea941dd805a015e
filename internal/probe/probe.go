// Package probe adapts github.com/prometheus-community/pro-bing's
// ICMP pinger to the narrow Prober interface internal/dhcp4core needs
// for spec §4.2's DISCOVER ping-check: before offering an address that
// isn't already leased, the server pings it and only proceeds if
// nothing answers within the configured timeout. Raw ICMP socket
// ownership stays inside pro-bing, an external concern per spec §1.
package probe

import (
	"fmt"
	"net"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Prober checks whether an address is already in use on the wire.
type Prober interface {
	// InUse blocks up to timeout and reports whether ip answered a
	// ping, meaning the server must not offer it.
	InUse(ip net.IP, timeout time.Duration) (bool, error)
}

// ICMPProber is the pro-bing-backed Prober used in production.
type ICMPProber struct {
	// Privileged selects raw ICMP sockets (requires CAP_NET_RAW)
	// versus the unprivileged datagram-socket mode pro-bing also
	// supports.
	Privileged bool
}

// InUse sends a single ICMP echo and waits for a reply.
func (p *ICMPProber) InUse(ip net.IP, timeout time.Duration) (bool, error) {
	pinger, err := probing.NewPinger(ip.String())
	if err != nil {
		return false, fmt.Errorf("probe: new pinger for %s: %w", ip, err)
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(p.Privileged)

	var replied bool
	pinger.OnRecv = func(*probing.Packet) { replied = true }

	if err := pinger.Run(); err != nil {
		return false, fmt.Errorf("probe: ping %s: %w", ip, err)
	}
	return replied, nil
}

// NoopProber always reports an address free, for deployments with
// Cfg.PingCheck disabled.
type NoopProber struct{}

func (NoopProber) InUse(net.IP, time.Duration) (bool, error) { return false, nil }

var (
	_ Prober = (*ICMPProber)(nil)
	_ Prober = NoopProber{}
)
