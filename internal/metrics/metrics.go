package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for a scan session
type Metrics struct {
	registry *prometheus.Registry

	// Session lifecycle
	SessionsStarted prometheus.Counter
	SessionErrors   *prometheus.CounterVec
	SessionState    prometheus.Gauge

	// Capture
	FramesCaptured     prometheus.Counter
	FrameTicksSkipped  *prometheus.CounterVec
	AudioChunksCapture prometheus.Counter

	// Transport
	MessagesSent    *prometheus.CounterVec
	MessagesDropped *prometheus.CounterVec
	BytesSent       prometheus.Counter
	MessagesRecv    *prometheus.CounterVec

	// Playback
	ChunksScheduled  prometheus.Counter
	PlaybackUnderrun prometheus.Counter
	PlaybackBacklog  prometheus.Gauge

	// Alerts
	TranscriptEvents prometheus.Counter
	HazardRaised     prometheus.Counter
}

// New creates all metrics on a private registry, so several instances can
// coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "freshscan_sessions_started_total",
			Help: "Total number of scan sessions started",
		}),
		SessionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freshscan_session_errors_total",
			Help: "Total number of session failures by kind",
		}, []string{"kind"}),
		SessionState: f.NewGauge(prometheus.GaugeOpts{
			Name: "freshscan_session_state",
			Help: "Current session state (0=idle 1=connecting 2=active 3=closing 4=closed 5=errored)",
		}),

		FramesCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "freshscan_frames_captured_total",
			Help: "Total number of camera snapshots encoded",
		}),
		FrameTicksSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freshscan_frame_ticks_skipped_total",
			Help: "Frame timer ticks that produced no frame, by reason",
		}, []string{"reason"}),
		AudioChunksCapture: f.NewCounter(prometheus.CounterOpts{
			Name: "freshscan_audio_chunks_captured_total",
			Help: "Total number of microphone blocks captured",
		}),

		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freshscan_messages_sent_total",
			Help: "Outbound realtime messages written, by kind",
		}, []string{"kind"}),
		MessagesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freshscan_messages_dropped_total",
			Help: "Outbound realtime messages dropped, by kind",
		}, []string{"kind"}),
		BytesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "freshscan_bytes_sent_total",
			Help: "Total websocket payload bytes written",
		}),
		MessagesRecv: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freshscan_messages_received_total",
			Help: "Inbound server messages, by content",
		}, []string{"kind"}),

		ChunksScheduled: f.NewCounter(prometheus.CounterOpts{
			Name: "freshscan_playback_chunks_scheduled_total",
			Help: "Total number of audio buffers scheduled for playback",
		}),
		PlaybackUnderrun: f.NewCounter(prometheus.CounterOpts{
			Name: "freshscan_playback_underruns_total",
			Help: "Chunks that arrived after the playback cursor had passed",
		}),
		PlaybackBacklog: f.NewGauge(prometheus.GaugeOpts{
			Name: "freshscan_playback_backlog_seconds",
			Help: "Scheduled audio not yet played",
		}),

		TranscriptEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "freshscan_transcript_events_total",
			Help: "Total number of transcript fragments received",
		}),
		HazardRaised: f.NewCounter(prometheus.CounterOpts{
			Name: "freshscan_hazard_raised_total",
			Help: "Times the hazard signal went from clear to raised",
		}),
	}
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
