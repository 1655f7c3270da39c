package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveRecording    prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	FramesIngested     prometheus.Counter
	FramesDropped      prometheus.Counter
	Verdicts           *prometheus.CounterVec
	BatchUploads       *prometheus.CounterVec
	BatchUploadLatency prometheus.Histogram
	WSMessages         *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveRecording: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_recording",
			Help:      "1 while a recording session is active, 0 otherwise.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		FramesIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_ingested_total",
			Help:      "Frames accepted into the recording pipeline.",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because no session was recording.",
		}),
		Verdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posture_verdicts_total",
			Help:      "Posture classifications by verdict.",
		}, []string{"posture"}),
		BatchUploads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_uploads_total",
			Help:      "Frame batch uploads by outcome.",
		}, []string{"status"}),
		BatchUploadLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_upload_latency_ms",
			Help:      "Latency of frame batch writes in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

func (m *Metrics) ObserveBatchUploadLatency(d time.Duration) {
	m.BatchUploadLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
