// Package metrics exposes Prometheus instrumentation for a running node:
// chain height, vote and block counters, and transport message counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every Prometheus collector a node registers. All
// collectors carry a "node" label so a single Registry can serve
// several simulated nodes without metric name collisions.
type Metrics struct {
	Height          *prometheus.GaugeVec
	VotesReceived   *prometheus.CounterVec
	BlocksFinalized *prometheus.CounterVec
	MessagesSent    *prometheus.CounterVec
	MessagesDropped *prometheus.CounterVec
	Equivocations   *prometheus.GaugeVec
}

// New creates a Metrics bundle and registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Height: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bftcore",
			Name:      "height",
			Help:      "Current consensus height (next height to finalize) per node.",
		}, []string{"node"}),
		VotesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bftcore",
			Name:      "votes_received_total",
			Help:      "Vote messages handed to the consensus engine, by phase.",
		}, []string{"node", "phase"}),
		BlocksFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bftcore",
			Name:      "blocks_finalized_total",
			Help:      "Blocks finalized by this node.",
		}, []string{"node"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bftcore",
			Name:      "messages_sent_total",
			Help:      "Messages handed to the transport, by message type.",
		}, []string{"node", "type"}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bftcore",
			Name:      "messages_dropped_total",
			Help:      "Inbound messages discarded without further processing, by reason.",
		}, []string{"node", "reason"}),
		Equivocations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bftcore",
			Name:      "equivocators",
			Help:      "Number of validators observed signing conflicting votes at the same height, as seen by this node.",
		}, []string{"node"}),
	}

	reg.MustRegister(m.Height, m.VotesReceived, m.BlocksFinalized, m.MessagesSent, m.MessagesDropped, m.Equivocations)
	return m
}
