// Package metrics exposes the engine's Prometheus metrics: latency
// histograms for each pipeline stage and counters for the operational
// events spec §4.7/§7 call out (dropped frames, model timeouts, order
// rejects, feature-kernel halts). This is the Go equivalent of the
// reference engine's metrics::histogram!/metrics::increment_counter!
// call sites.
//
// Unlike typical single-binary tools that register on the global
// prometheus.DefaultRegisterer in an init(), this package builds its own
// Registry so multiple Engines (as in tests) don't collide on duplicate
// registration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// stageBuckets covers sub-millisecond to multi-tens-of-millisecond
// latencies, since the engine's slow-cycle alert fires above 5ms.
var stageBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// Metrics owns every series the engine publishes.
type Metrics struct {
	registry *prometheus.Registry

	IngestLatency  *prometheus.HistogramVec
	FeatureLatency *prometheus.HistogramVec
	ModelLatency   *prometheus.HistogramVec
	RouteLatency   *prometheus.HistogramVec

	DroppedFrames       prometheus.Counter
	ModelTimeouts       prometheus.Counter
	OrderRejects        prometheus.Counter
	GPUKernelFailures   prometheus.Counter
	OrdersSubmitted     *prometheus.CounterVec
	RiskCheckRejections prometheus.Counter
	BatchesFlushed      prometheus.Counter

	KillSwitchActive prometheus.Gauge
	DailyPnl         prometheus.Gauge
}

// New builds and registers every series on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		IngestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hft_ingest_latency_seconds",
			Help:    "Time from a snapshot's publish timestamp to its ingest by the engine.",
			Buckets: stageBuckets,
		}, []string{"symbol"}),
		FeatureLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hft_feature_latency_seconds",
			Help:    "Feature batch compute latency.",
			Buckets: stageBuckets,
		}, []string{"mode"}),
		ModelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hft_model_latency_seconds",
			Help:    "Inference latency per decision, labelled by decision mode and category.",
			Buckets: stageBuckets,
		}, []string{"model", "category"}),
		RouteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hft_route_latency_seconds",
			Help:    "Gate+router decision latency per symbol.",
			Buckets: stageBuckets,
		}, []string{"symbol"}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hft_dropped_frames_total",
			Help: "Snapshots dropped because the ingest buffer was full.",
		}),
		ModelTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hft_inference_timeout_total",
			Help: "Inference calls that returned a timeout error to the engine. A timeout of one ensemble member is not counted: it is dropped when other members answer and reported as a model error when none do.",
		}),
		OrderRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hft_order_rejected_total",
			Help: "Orders rejected by a venue adapter after submission.",
		}),
		GPUKernelFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hft_engine_halt_gpu_failure_total",
			Help: "Feature kernel failures: vector-first batches that fell back to the scalar kernel plus batches dropped on a kernel error.",
		}),
		OrdersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hft_orders_submitted_total",
			Help: "Orders submitted to a venue adapter, by style.",
		}, []string{"style"}),
		RiskCheckRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hft_risk_check_rejected_total",
			Help: "Decisions rejected by the risk manager's pre-trade check.",
		}),
		BatchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hft_batches_flushed_total",
			Help: "Feature batches flushed by the batcher, by size or deadline.",
		}),
		KillSwitchActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hft_kill_switch_active",
			Help: "1 if the risk manager's kill switch is tripped, else 0.",
		}),
		DailyPnl: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hft_daily_pnl",
			Help: "Running daily realized+unrealized PnL.",
		}),
	}

	reg.MustRegister(
		m.IngestLatency, m.FeatureLatency, m.ModelLatency, m.RouteLatency,
		m.DroppedFrames, m.ModelTimeouts, m.OrderRejects, m.GPUKernelFailures,
		m.OrdersSubmitted, m.RiskCheckRejections, m.BatchesFlushed,
		m.KillSwitchActive, m.DailyPnl,
	)
	return m
}

// Handler returns the /metrics HTTP handler serving this registry in the
// Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
