// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for system monitoring and exposes
// Prometheus collectors covering the protocol loop and the transactor.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// MessagesReceivedTotal counts inbound frames by payload type.
	MessagesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "node_messages_received_total",
			Help: "Total number of protocol frames received",
		},
		[]string{"type"},
	)
	// MessagesSentTotal counts outbound frames by payload type.
	MessagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "node_messages_sent_total",
			Help: "Total number of protocol frames sent",
		},
		[]string{"type"},
	)
	// MalformedFramesTotal counts input lines dropped by the codec.
	MalformedFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "node_malformed_frames_total",
			Help: "Total number of undecodable input lines skipped",
		},
	)
	// RPCsTotal counts synchronous RPCs issued by request type.
	RPCsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "node_rpcs_total",
			Help: "Total number of synchronous RPCs issued",
		},
		[]string{"type"},
	)
	// TxnsTotal counts transactions by outcome (committed, aborted).
	TxnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txn_transactions_total",
			Help: "Total number of transactions by outcome",
		},
		[]string{"outcome"},
	)
	// TxnDuration records end-to-end transaction durations.
	TxnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "txn_duration_seconds",
			Help:    "Transaction duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)
	// KVWritesTotal counts values written to the KV service by kind
	// (chunk, partition).
	KVWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txn_kv_writes_total",
			Help: "Total number of KV values written by kind",
		},
		[]string{"kind"},
	)
)

// Transaction outcome label values.
const (
	// OutcomeCommitted labels transactions whose root CAS succeeded.
	OutcomeCommitted = "committed"
	// OutcomeAborted labels transactions surfaced to the client as errors.
	OutcomeAborted = "aborted"
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(MessagesReceivedTotal)
	prometheus.MustRegister(MessagesSentTotal)
	prometheus.MustRegister(MalformedFramesTotal)
	prometheus.MustRegister(RPCsTotal)
	prometheus.MustRegister(TxnsTotal)
	prometheus.MustRegister(TxnDuration)
	prometheus.MustRegister(KVWritesTotal)
}
