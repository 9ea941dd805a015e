// Package metrics exposes the server's Prometheus counters/gauges,
// the ambient observability surface (spec §6's httpadmin /metrics
// endpoint), adapted from the teacher pack's AdguardHome/flywall/
// glacic dependency on github.com/prometheus/client_golang.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric dhcpd exports. A fresh Registry is
// safe to register against prometheus.NewRegistry() so tests don't
// collide with the global default registerer.
type Registry struct {
	LeasesActive    prometheus.Gauge
	LeasesFree      prometheus.Gauge
	RequestsTotal   *prometheus.CounterVec
	PingChecksTotal *prometheus.CounterVec
	JournalRewrites prometheus.Counter
	DNSUpdateErrors prometheus.Counter
}

// New creates a Registry and registers every metric against reg.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		LeasesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dhcpd",
			Name:      "leases_active",
			Help:      "Number of leases currently in the active state.",
		}),
		LeasesFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dhcpd",
			Name:      "leases_free",
			Help:      "Number of leases currently free across all pools.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcpd",
			Name:      "requests_total",
			Help:      "DHCP requests handled, by message type and outcome.",
		}, []string{"msg_type", "outcome"}),
		PingChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcpd",
			Name:      "ping_checks_total",
			Help:      "ICMP ping-checks performed before an offer, by result.",
		}, []string{"result"}),
		JournalRewrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dhcpd",
			Name:      "journal_rewrites_total",
			Help:      "Lease journal compaction rewrites performed.",
		}),
		DNSUpdateErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dhcpd",
			Name:      "dns_update_errors_total",
			Help:      "Dynamic DNS update attempts that failed.",
		}),
	}

	reg.MustRegister(
		m.LeasesActive,
		m.LeasesFree,
		m.RequestsTotal,
		m.PingChecksTotal,
		m.JournalRewrites,
		m.DNSUpdateErrors,
	)

	return m
}
