// Package dnsupdate backs the expr.Resolver and expr.NSUpdater seams
// (spec §4.3's gethostbyname and ns-update sublanguage) with
// github.com/miekg/dns: a TTL-respecting resolver cache for
// gethostbyname/make_limit, and an RR-building adapter that issues
// dns.Msg UPDATE messages and returns the RCODE as the ns-update
// expression's numeric result. Per spec §7, a DNS update failure is
// swallowed by the caller (internal/expr turns it into the
// expression's numeric result without logging it), never fatal to the lease transaction — this package only
// reports the error up; it does not decide whether it is fatal.
package dnsupdate

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// Client resolves names and issues dynamic updates against a single
// resolver/DNS server address.
type Client struct {
	Server string // "host:port", e.g. "127.0.0.1:53"
	dnsCl  *dns.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	addrs   []byte
	expires time.Time
}

// NewClient creates a Client that talks to server over UDP with the
// library's default 2-second timeout.
func NewClient(server string) *Client {
	return &Client{
		Server: server,
		dnsCl:  &dns.Client{},
		cache:  make(map[string]cacheEntry),
	}
}

// Lookup implements expr.Resolver: resolves name's A records, caching
// the result for the answer's minimum TTL.
func (c *Client) Lookup(name string) ([]byte, error) {
	fqdn := dns.Fqdn(name)

	c.mu.Lock()
	if e, ok := c.cache[fqdn]; ok && time.Now().Before(e.expires) {
		c.mu.Unlock()
		return e.addrs, nil
	}
	c.mu.Unlock()

	m := new(dns.Msg)
	m.SetQuestion(fqdn, dns.TypeA)
	m.RecursionDesired = true

	resp, _, err := c.dnsCl.Exchange(m, c.Server)
	if err != nil {
		return nil, fmt.Errorf("dnsupdate: lookup %s: %w", name, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("dnsupdate: lookup %s: rcode %s", name, dns.RcodeToString[resp.Rcode])
	}

	var addrs []byte
	minTTL := uint32(3600)
	for _, rr := range resp.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		ip4 := a.A.To4()
		if ip4 == nil {
			continue
		}
		addrs = append(addrs, ip4...)
		if a.Hdr.Ttl < minTTL {
			minTTL = a.Hdr.Ttl
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("dnsupdate: lookup %s: no A records", name)
	}

	c.mu.Lock()
	c.cache[fqdn] = cacheEntry{addrs: addrs, expires: time.Now().Add(time.Duration(minTTL) * time.Second)}
	c.mu.Unlock()

	return addrs, nil
}

// Update implements expr.NSUpdater: builds and sends a dns.Msg UPDATE
// for the given op ("add" or "delete"), zone, name, and rrtype, and
// returns the server's RCODE.
func (c *Client) Update(op, zone, name, rrtype string, data []byte) (int, error) {
	m := new(dns.Msg)
	m.SetUpdate(dns.Fqdn(zone))

	rr, err := buildRR(name, rrtype, data)
	if err != nil {
		return 0, err
	}

	switch op {
	case "add":
		m.Insert([]dns.RR{rr})
	case "delete":
		m.Remove([]dns.RR{rr})
	default:
		return 0, fmt.Errorf("dnsupdate: unknown update op %q", op)
	}

	resp, _, err := c.dnsCl.Exchange(m, c.Server)
	if err != nil {
		return 0, fmt.Errorf("dnsupdate: update %s %s: %w", op, name, err)
	}
	return resp.Rcode, nil
}

// buildRR constructs the resource record ns-update's statement
// targets, supporting the A and TXT types spec's ns-update examples
// use.
func buildRR(name, rrtype string, data []byte) (dns.RR, error) {
	fqdn := dns.Fqdn(name)
	switch rrtype {
	case "A":
		if len(data) != 4 {
			return nil, fmt.Errorf("dnsupdate: A record requires 4 bytes, got %d", len(data))
		}
		return &dns.A{
			Hdr: dns.RR_Header{Name: fqdn, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 3600},
			A:   net.IPv4(data[0], data[1], data[2], data[3]),
		}, nil
	case "TXT":
		return &dns.TXT{
			Hdr: dns.RR_Header{Name: fqdn, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 3600},
			Txt: []string{string(data)},
		}, nil
	default:
		return nil, fmt.Errorf("dnsupdate: unsupported rrtype %q", rrtype)
	}
}
