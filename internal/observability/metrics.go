package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a TrueMarket node.
type Metrics struct {
	// --- Chain execution ---
	BlocksCommitted  *prometheus.CounterVec
	HandlersRejected *prometheus.CounterVec
	HandlerDuration  *prometheus.HistogramVec
	ChainHeight      *prometheus.GaugeVec

	// --- Settlement ---
	TradesExecuted   *prometheus.CounterVec
	ReceiptsCredited *prometheus.CounterVec
	MarketsCreated   *prometheus.CounterVec

	// --- Messaging ---
	MessagesSent        *prometheus.CounterVec
	MessagesReceived    *prometheus.CounterVec
	PublishErrors       *prometheus.CounterVec
	InboundGaps         *prometheus.CounterVec
	InboundRedeliveries *prometheus.CounterVec

	// --- Persistence ---
	PersistBlocksWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.1,
	}

	return &Metrics{
		BlocksCommitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "truemarket_blocks_committed_total",
			Help: "Handlers committed as blocks",
		}, []string{"chain_id", "kind"}),

		HandlersRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "truemarket_handlers_rejected_total",
			Help: "Operations and messages aborted with no effect",
		}, []string{"chain_id", "kind", "reason"}),

		HandlerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "truemarket_handler_duration_seconds",
			Help:    "Time to execute and commit one handler",
			Buckets: latencyBuckets,
		}, []string{"kind"}),

		ChainHeight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "truemarket_chain_height",
			Help: "Height of the last committed block",
		}, []string{"chain_id"}),

		TradesExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "truemarket_trades_executed_total",
			Help: "Buys executed on the market chain",
		}, []string{"path"}),

		ReceiptsCredited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "truemarket_receipts_credited_total",
			Help: "Share receipts credited to the local cache",
		}, []string{"source"}),

		MarketsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "truemarket_markets_created_total",
			Help: "Markets created",
		}, []string{"chain_id"}),

		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "truemarket_messages_sent_total",
			Help: "Cross-chain messages published after commit",
		}, []string{"kind", "target"}),

		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "truemarket_messages_received_total",
			Help: "Cross-chain messages handed to a chain",
		}, []string{"kind", "origin"}),

		PublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "truemarket_publish_errors_total",
			Help: "Committed messages the transport failed to accept",
		}, []string{"target"}),

		InboundGaps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "truemarket_inbound_sequence_gaps_total",
			Help: "Messages that skipped channel sequence numbers",
		}, []string{"origin"}),

		InboundRedeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "truemarket_inbound_redeliveries_total",
			Help: "Messages at or below the last seen channel sequence",
		}, []string{"origin"}),

		PersistBlocksWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "truemarket_persist_blocks_written_total",
			Help: "Block log rows written",
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "truemarket_persist_batch_size",
			Help:    "Blocks per flushed batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "truemarket_persist_batch_duration_seconds",
			Help:    "Time to write one block log batch",
			Buckets: latencyBuckets,
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "truemarket_persist_errors_total",
			Help: "Block log write failures",
		}, []string{"stage"}),

		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "truemarket_query_requests_total",
			Help: "Query and submit API requests",
		}, []string{"method", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "truemarket_query_duration_seconds",
			Help:    "Query and submit API latency",
			Buckets: latencyBuckets,
		}, []string{"method"}),
	}
}
