package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gateway",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "active_streams",
		Help:      "Number of streams currently in the registry.",
	})

	StreamsByStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "streams_by_status",
		Help:      "Number of streams per lifecycle status.",
	}, []string{"status"})

	StreamsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "streams_created_total",
		Help:      "Total number of streams created.",
	})

	StreamFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "stream_failures_total",
		Help:      "Total number of terminal stream failures by kind.",
	}, []string{"kind"})

	DownloadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "download_speed_bytes",
		Help:      "Current aggregate swarm download speed in bytes per second.",
	})

	UploadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "upload_speed_bytes",
		Help:      "Current aggregate swarm upload speed in bytes per second.",
	})

	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "peers_connected",
		Help:      "Total number of peers connected across all swarms.",
	})

	PackagerActiveJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "packager_active_jobs",
		Help:      "Number of currently running FFmpeg packager jobs.",
	})

	PackagerJobsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "packager_jobs_total",
		Help:      "Total number of packager jobs started.",
	})

	PackagerFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "packager_failures_total",
		Help:      "Total number of packager job failures.",
	})

	PackagerEncodeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gateway",
		Name:      "packager_encode_duration_seconds",
		Help:      "Duration of FFmpeg packager runs in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})

	JanitorSweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "janitor_sweeps_total",
		Help:      "Total number of janitor sweep passes.",
	})

	JanitorRemovalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "janitor_removals_total",
		Help:      "Total number of streams removed by the janitor.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveStreams,
		StreamsByStatus,
		StreamsCreatedTotal,
		StreamFailuresTotal,
		DownloadSpeedBytes,
		UploadSpeedBytes,
		PeersConnected,
		PackagerActiveJobs,
		PackagerJobsTotal,
		PackagerFailuresTotal,
		PackagerEncodeDuration,
		JanitorSweepsTotal,
		JanitorRemovalsTotal,
	)
}
