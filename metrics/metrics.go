// Package metrics exposes the node's counters and gauges to Prometheus:
// contract negotiation outcomes, shard transfer volume, audit results,
// rate-limiter rejections, and routing table size.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the node registers. Components take a
// *Metrics rather than reaching for prometheus' default registry
// directly, so tests can construct an isolated instance.
type Metrics struct {
	Registry *prometheus.Registry

	ContractsOffered   *prometheus.CounterVec
	ContractsCompleted prometheus.Counter

	ShardsPushed    prometheus.Counter
	ShardsPulled    prometheus.Counter
	ShardBytesSent  prometheus.Counter
	ShardBytesRecvd prometheus.Counter

	AuditsPerformed *prometheus.CounterVec

	RateLimitRejections prometheus.Counter

	RoutingTableSize prometheus.GaugeFunc
}

// New constructs and registers a fresh Metrics instance against an
// isolated registry. sizeFn reports the live routing table size on
// each scrape.
func New(sizeFn func() float64) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		ContractsOffered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storjnode",
			Subsystem: "contract",
			Name:      "offers_total",
			Help:      "Contract offers handled, partitioned by outcome.",
		}, []string{"outcome"}),
		ContractsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storjnode",
			Subsystem: "contract",
			Name:      "completed_total",
			Help:      "Contracts that reached the COMPLETE state.",
		}),
		ShardsPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storjnode",
			Subsystem: "channel",
			Name:      "shards_pushed_total",
			Help:      "Shards accepted over a PUSH data channel.",
		}),
		ShardsPulled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storjnode",
			Subsystem: "channel",
			Name:      "shards_pulled_total",
			Help:      "Shards served over a PULL data channel.",
		}),
		ShardBytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storjnode",
			Subsystem: "channel",
			Name:      "bytes_sent_total",
			Help:      "Bytes served to PULL requests.",
		}),
		ShardBytesRecvd: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storjnode",
			Subsystem: "channel",
			Name:      "bytes_received_total",
			Help:      "Bytes accepted from PUSH requests.",
		}),
		AuditsPerformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storjnode",
			Subsystem: "audit",
			Name:      "proofs_total",
			Help:      "Audit proofs generated, partitioned by outcome.",
		}, []string{"outcome"}),
		RateLimitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storjnode",
			Subsystem: "rpc",
			Name:      "rate_limited_total",
			Help:      "RPC requests rejected by the per-node rate limiter.",
		}),
	}

	if sizeFn == nil {
		sizeFn = func() float64 { return 0 }
	}
	m.RoutingTableSize = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "storjnode",
		Subsystem: "routing",
		Name:      "contacts",
		Help:      "Contacts currently held in the routing table.",
	}, sizeFn)

	reg.MustRegister(
		m.ContractsOffered,
		m.ContractsCompleted,
		m.ShardsPushed,
		m.ShardsPulled,
		m.ShardBytesSent,
		m.ShardBytesRecvd,
		m.AuditsPerformed,
		m.RateLimitRejections,
		m.RoutingTableSize,
	)
	return m
}

// Discard returns a Metrics instance registered to its own throwaway
// registry, for components that need a non-nil *Metrics in tests.
func Discard() *Metrics {
	return New(nil)
}
