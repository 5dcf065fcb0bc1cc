package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission sources
const (
	SourceFile      = "file"
	SourceRecording = "recording"
)

var (
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "melscribe_submissions_total",
			Help: "Total number of transcription submissions",
		},
		[]string{"source", "outcome"},
	)

	RecordingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "melscribe_recordings_total",
			Help: "Total number of microphone captures by outcome",
		},
		[]string{"outcome"},
	)

	TranscribeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "melscribe_transcribe_requests_total",
			Help: "Total number of requests to the transcription service",
		},
		[]string{"status"},
	)

	TranscribeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "melscribe_transcribe_duration_seconds",
			Help:    "Time from upload to transcription response",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)

	UploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "melscribe_upload_bytes",
			Help:    "Size of uploaded audio",
			Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8),
		},
	)
)

func init() {
	prometheus.MustRegister(
		SubmissionsTotal,
		RecordingsTotal,
		TranscribeRequestsTotal,
		TranscribeDuration,
		UploadBytes,
	)
}

// Handler serves the registered metrics in Prometheus text format
func Handler() http.Handler {
	return promhttp.Handler()
}
