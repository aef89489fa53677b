package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayRegistry wires RelayCounters into Prometheus gauges exposed over
// /metrics (spec §4.6: "Prometheus counters/gauges ... alongside the
// teacher-style SNMP CSV log", per SPEC_FULL.md's domain-stack table).
type RelayRegistry struct {
	counters *RelayCounters

	PacketsRx        prometheus.GaugeFunc
	BytesRx          prometheus.GaugeFunc
	PacketsForwarded prometheus.GaugeFunc
	BytesForwarded   prometheus.GaugeFunc
	LeasePresents    prometheus.GaugeFunc
	LeaseRenews      prometheus.GaugeFunc
	DroppedPackets   prometheus.GaugeFunc
	RateLimited      prometheus.GaugeFunc
	InvalidPackets   prometheus.GaugeFunc
	AuthRejects      prometheus.GaugeFunc
	ActiveSessions   prometheus.Gauge
}

// NewRelayRegistry registers gauge funcs backed by counters onto reg and
// returns the handle the forwarder uses to update ActiveSessions.
func NewRelayRegistry(reg *prometheus.Registry, counters *RelayCounters) *RelayRegistry {
	r := &RelayRegistry{counters: counters}

	gauge := func(name, help string, load func() uint64) prometheus.GaugeFunc {
		g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "wavry",
			Subsystem: "relay",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(load()) })
		reg.MustRegister(g)
		return g
	}

	r.PacketsRx = gauge("packets_rx_total", "Datagrams received by the relay.", counters.PacketsRx.Load)
	r.BytesRx = gauge("bytes_rx_total", "Bytes received by the relay.", counters.BytesRx.Load)
	r.PacketsForwarded = gauge("packets_forwarded_total", "Datagrams forwarded between peers.", counters.PacketsForwarded.Load)
	r.BytesForwarded = gauge("bytes_forwarded_total", "Bytes forwarded between peers.", counters.BytesForwarded.Load)
	r.LeasePresents = gauge("lease_presents_total", "LeasePresent packets handled.", counters.LeasePresents.Load)
	r.LeaseRenews = gauge("lease_renews_total", "LeaseRenew packets handled.", counters.LeaseRenews.Load)
	r.DroppedPackets = gauge("dropped_packets_total", "Packets dropped for any reason.", counters.DroppedPackets.Load)
	r.RateLimited = gauge("rate_limited_packets_total", "Packets dropped by a rate limiter.", counters.RateLimited.Load)
	r.InvalidPackets = gauge("invalid_packets_total", "Packets dropped for malformed framing or payload.", counters.InvalidPackets.Load)
	r.AuthRejects = gauge("auth_reject_packets_total", "Lease presentations rejected on signature/expiry/role grounds.", counters.AuthRejects.Load)

	r.ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wavry",
		Subsystem: "relay",
		Name:      "active_sessions",
		Help:      "Currently bound relay sessions.",
	})
	reg.MustRegister(r.ActiveSessions)

	return r
}
