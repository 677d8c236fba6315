package interview

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts call activity for the /metrics endpoint.
type Metrics struct {
	AudioFramesSent   prometheus.Counter
	VideoFramesSent   prometheus.Counter
	AudioChunksPlayed prometheus.Counter
	Interruptions     prometheus.Counter
	TransportErrors   prometheus.Counter
	CallDuration      prometheus.Histogram
}

// NewMetrics registers the call metrics with reg. Pass
// prometheus.DefaultRegisterer outside tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AudioFramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxhire_audio_frames_sent_total",
			Help: "Microphone frames sent to the live endpoint.",
		}),
		VideoFramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxhire_video_frames_sent_total",
			Help: "Camera frames sent to the live endpoint.",
		}),
		AudioChunksPlayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxhire_audio_chunks_played_total",
			Help: "Model speech chunks scheduled for playback.",
		}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxhire_interruptions_total",
			Help: "Model turns cut off by candidate speech.",
		}),
		TransportErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxhire_transport_errors_total",
			Help: "Live session transport failures.",
		}),
		CallDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxhire_call_duration_seconds",
			Help:    "Wall-clock length of completed calls.",
			Buckets: prometheus.ExponentialBuckets(30, 2, 8),
		}),
	}
}
