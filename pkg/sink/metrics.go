// pkg/sink/metrics.go
package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// Metrics is the Prometheus instrument set for one run. It owns a private
// registry so textfile exports carry only pipeline series.
type Metrics struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	RowsLoaded        *prometheus.CounterVec
	RowsQuarantined   *prometheus.CounterVec
	ChunksProcessed   *prometheus.CounterVec
	ChunksQuarantined *prometheus.CounterVec
	RepairedRows      *prometheus.CounterVec
	LoadDuration      *prometheus.HistogramVec
	LastRunTimestamp  prometheus.Gauge
}

// NewMetrics registers the pipeline instruments on a fresh registry.
func NewMetrics(logger *zap.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		logger:   logger,
		RowsLoaded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cnpj_rows_loaded_total",
			Help: "Rows copied into the destination table",
		}, []string{"table"}),
		RowsQuarantined: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cnpj_rows_quarantined_total",
			Help: "Rows excluded from loading, by reason",
		}, []string{"table", "reason"}),
		ChunksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cnpj_chunks_processed_total",
			Help: "Chunks that completed the clean-validate-load path",
		}, []string{"table"}),
		ChunksQuarantined: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cnpj_chunks_quarantined_total",
			Help: "Whole chunks diverted by the quality gate",
		}, []string{"table"}),
		RepairedRows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cnpj_auto_repair_rows_total",
			Help: "Row values rewritten by the cleaning stage",
		}, []string{"table"}),
		LoadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cnpj_chunk_load_duration_seconds",
			Help:    "Wall time to copy one chunk",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"table"}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cnpj_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		}),
	}
}

// Registry exposes the underlying registry for serving or testing.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile exports the registry in the node-exporter textfile format.
// Export failures are logged, never fatal.
func (m *Metrics) WriteTextfile(path string) {
	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		m.logger.Warn("Failed to export metrics textfile",
			zap.String("path", path),
			zap.Error(err))
	}
}

// Push sends the registry to a Pushgateway. Best effort: the pipeline never
// fails because monitoring is down.
func (m *Metrics) Push(url, job string) {
	if url == "" {
		return
	}
	if err := push.New(url, job).Gatherer(m.registry).Push(); err != nil {
		m.logger.Warn("Failed to push metrics",
			zap.String("url", url),
			zap.Error(err))
	}
}
