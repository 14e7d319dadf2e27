// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the ingestion labels (table, kind, status) onto Prometheus
//     labels.
//   - Pushing collected metrics to a Prometheus Pushgateway instance instead
//     of exposing an HTTP scrape endpoint; a bulk loader is a batch job, not
//     a long-lived scrape target.
//
// The package intentionally contains all Prometheus-specific dependencies so
// that the rest of the project remains decoupled from Prometheus.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	tableCounter  *prometheus.CounterVec // "ingest_table_total"
	tableDuration *prometheus.SummaryVec // "ingest_table_duration_seconds"

	rowCounter   *prometheus.CounterVec // "ingest_rows_total"
	batchCounter *prometheus.CounterVec // "ingest_batches_total"
	retryCounter *prometheus.CounterVec // "ingest_retries_total"
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (often the load run's identity).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "oshaload"
	}

	reg := prometheus.NewRegistry()

	tableCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_table_total",
			Help: "Total number of table loads, partitioned by table and status.",
		},
		[]string{"table", "status"},
	)
	tableDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "ingest_table_duration_seconds",
			Help:       "Duration of table loads in seconds, partitioned by table and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"table", "status"},
	)

	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rows_total",
			Help: "Row-level counts per table and kind (loaded, skipped, duplicates).",
		},
		[]string{"table", "kind"},
	)
	batchCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_batches_total",
			Help: "Total number of insert batches flushed per table.",
		},
		[]string{"table"},
	)
	retryCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_retries_total",
			Help: "Insert retries caused by store contention, per table.",
		},
		[]string{"table"},
	)

	for _, c := range []prometheus.Collector{tableCounter, tableDuration, rowCounter, batchCounter, retryCounter} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		tableCounter:  tableCounter,
		tableDuration: tableDuration,
		rowCounter:    rowCounter,
		batchCounter:  batchCounter,
		retryCounter:  retryCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "ingest_table_total":
		if b.tableCounter == nil {
			return
		}
		b.tableCounter.WithLabelValues(labels["table"], labels["status"]).Add(delta)

	case "ingest_rows_total":
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["table"], labels["kind"]).Add(delta)

	case "ingest_batches_total":
		if b.batchCounter == nil {
			return
		}
		b.batchCounter.WithLabelValues(labels["table"]).Add(delta)

	case "ingest_retries_total":
		if b.retryCounter == nil {
			return
		}
		b.retryCounter.WithLabelValues(labels["table"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "ingest_table_duration_seconds" || b.tableDuration == nil {
		return
	}
	b.tableDuration.WithLabelValues(labels["table"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
