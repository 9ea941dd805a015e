package dnsupdate

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// startTestServer runs a miekg/dns UDP server on a free port answering
// queries via handler, returning its address and a stop function.
func startTestServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &dns.Server{PacketConn: pc, Handler: handler}
	go srv.ActivateAndServe()

	t.Cleanup(func() { srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestLookupReturnsARecords(t *testing.T) {
	addr := startTestServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
			A:   net.IPv4(10, 0, 0, 5),
		})
		w.WriteMsg(m)
	})

	c := NewClient(addr)
	addrs, err := c.Lookup("host.example.")
	require.NoError(t, err)
	require.Equal(t, []byte{10, 0, 0, 5}, addrs)
}

func TestLookupCachesUntilTTLExpires(t *testing.T) {
	calls := 0
	addr := startTestServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		calls++
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
			A:   net.IPv4(10, 0, 0, 9),
		})
		w.WriteMsg(m)
	})

	c := NewClient(addr)
	_, err := c.Lookup("cached.example.")
	require.NoError(t, err)
	_, err = c.Lookup("cached.example.")
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestLookupNoRecordsErrors(t *testing.T) {
	addr := startTestServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		w.WriteMsg(m)
	})

	c := NewClient(addr)
	_, err := c.Lookup("empty.example.")
	require.Error(t, err)
}

func TestUpdateReturnsRcode(t *testing.T) {
	addr := startTestServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Rcode = dns.RcodeSuccess
		w.WriteMsg(m)
	})

	c := NewClient(addr)
	rcode, err := c.Update("add", "example.com.", "host.example.com.", "A", []byte{10, 0, 0, 1})
	require.NoError(t, err)
	require.Equal(t, dns.RcodeSuccess, rcode)
}

func TestUpdateUnknownOp(t *testing.T) {
	c := NewClient("127.0.0.1:1")
	_, err := c.Update("frobnicate", "example.com.", "host.example.com.", "A", []byte{1, 2, 3, 4})
	require.Error(t, err)
}

func TestBuildRRUnsupportedType(t *testing.T) {
	_, err := buildRR("host.example.com.", "MX", nil)
	require.Error(t, err)
}

func TestBuildRRBadALength(t *testing.T) {
	_, err := buildRR("host.example.com.", "A", []byte{1, 2, 3})
	require.Error(t, err)
}
