package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	EventsReceived   prometheus.Counter
	ReceiptsRecorded prometheus.Counter
	InvalidReceipts  prometheus.Counter
	NoAttachment     prometheus.Counter
	PipelineFailures prometheus.Counter
	LedgerRetries    prometheus.Counter
	ProcessingTime   prometheus.Histogram
	PendingWrites    prometheus.Gauge
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EventsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "receipt_ledger_events_received",
			Help: "Total number of inbound email notifications accepted",
		}),
		ReceiptsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "receipt_ledger_receipts_recorded",
			Help: "Total number of receipt records written",
		}),
		InvalidReceipts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "receipt_ledger_invalid_receipts",
			Help: "Total number of receipts recorded with a failed validity check",
		}),
		NoAttachment: promauto.NewCounter(prometheus.CounterOpts{
			Name: "receipt_ledger_no_attachment_outcomes",
			Help: "Total number of events dropped because no image attachment was found",
		}),
		PipelineFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "receipt_ledger_pipeline_failures",
			Help: "Total number of pipeline runs aborted by an error",
		}),
		LedgerRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "receipt_ledger_ledger_retries",
			Help: "Total number of sweeper retries of pending ledger writes",
		}),
		ProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "receipt_ledger_processing_duration_seconds",
			Help:    "Time spent processing one inbound event",
			Buckets: prometheus.DefBuckets,
		}),
		PendingWrites: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "receipt_ledger_pending_ledger_writes",
			Help: "Number of receipt rows awaiting a successful ledger append",
		}),
	}
}
