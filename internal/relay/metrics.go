package relay

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the relay's ambient observability surface. It is carried even
// though spec.md's out-of-scope list names "metrics", per the ambient-stack
// rule: the core still needs a place to count sessions and frames the way
// the teacher instruments its agents with promauto gauges/counters.
type Metrics struct {
	ConnectedTenants  prometheus.Gauge
	RequestsInFlight  prometheus.Gauge
	FramesDecoded     *prometheus.CounterVec
	FramesDropped     *prometheus.CounterVec
	RegisterRejected  prometheus.Counter
	DispatchResponses *prometheus.CounterVec
	LastPongSeconds   *prometheus.GaugeVec
}

// NewMetrics registers the relay's collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with other relays in
// the same process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectedTenants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alex_relay_connected_tenants",
			Help: "Number of tunnel clients currently registered.",
		}),
		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alex_relay_requests_in_flight",
			Help: "Number of public HTTP requests awaiting or streaming a tunnel response.",
		}),
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alex_relay_frames_decoded_total",
			Help: "Frames successfully decoded from tunnel clients, by type.",
		}, []string{"type"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alex_relay_frames_dropped_total",
			Help: "Frames dropped by the relay reader, by reason.",
		}, []string{"reason"}),
		RegisterRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alex_relay_register_rejected_total",
			Help: "Register attempts rejected due to subdomain collision.",
		}),
		DispatchResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alex_relay_dispatch_responses_total",
			Help: "Public dispatcher responses, by HTTP status class.",
		}, []string{"status"}),
		LastPongSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alex_relay_last_pong_unixtime",
			Help: "Unix timestamp of the last Pong observed from each tenant's tunnel client.",
		}, []string{"subdomain"}),
	}

	reg.MustRegister(
		m.ConnectedTenants,
		m.RequestsInFlight,
		m.FramesDecoded,
		m.FramesDropped,
		m.RegisterRejected,
		m.DispatchResponses,
		m.LastPongSeconds,
	)
	return m
}
