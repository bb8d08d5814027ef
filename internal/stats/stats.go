// Package stats exposes avstreamd's lifetime counters as both a plain Go
// struct (for the CLI's `stats`/`fullstats` commands) and a Prometheus
// registry (for a `/metrics` HTTP endpoint). Grounded on
// _examples/C360Studio-semstreams/metric/registry.go's per-instance
// prometheus.Registry pattern -- a package-level promauto registry would
// make every test process share global metric state, which a per-server
// registry avoids.
package stats

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
)

// Snapshot is a point-in-time read of the server's lifetime counters,
// used by the CLI's `stats`/`fullstats` commands.
type Snapshot struct {
	ConnectionsActive     int
	ConnectionsTotal      uint64
	VideoFramesReceived   uint64
	AudioFramesReceived   uint64
	BytesReceived         uint64
	VideoFramesSent       uint64
	AudioFramesSent       uint64
	BytesDistributed      uint64
	FailedEncodings       uint64
	FramingErrors         uint64
	SubscribersRegistered int
	UptimeSeconds         float64
}

// Registry owns the server's Prometheus collectors plus atomic mirrors
// of the same counters, since prometheus.Counter does not expose its
// current value cheaply -- the CLI's `stats`/`fullstats` commands read
// the atomics via Snapshot instead of scraping the Prometheus registry.
type Registry struct {
	prom *prometheus.Registry

	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge
	videoFramesRecv   prometheus.Counter
	audioFramesRecv   prometheus.Counter
	bytesReceived     prometheus.Counter
	videoFramesSent   prometheus.Counter
	audioFramesSent   prometheus.Counter
	bytesDistributed  prometheus.Counter
	failedEncodings   prometheus.Counter
	framingErrors     prometheus.Counter
	subscribers       prometheus.Gauge

	startedAt time.Time

	connTotal     atomic.Uint64
	connActive    atomic.Int64
	videoRecv     atomic.Uint64
	audioRecv     atomic.Uint64
	bytesRecv     atomic.Uint64
	videoSent     atomic.Uint64
	audioSent     atomic.Uint64
	bytesSent     atomic.Uint64
	failedEncodes atomic.Uint64
	framingErrs   atomic.Uint64
	subCount      atomic.Int64
}

// New constructs a Registry with avstreamd's own metrics registered; no Go
// runtime or process collectors are registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		prom:      reg,
		startedAt: time.Now(),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avstreamd_connections_total",
			Help: "Total TCP connections accepted since startup.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "avstreamd_connections_active",
			Help: "Currently connected TCP clients.",
		}),
		videoFramesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avstreamd_video_frames_received_total",
			Help: "Total video messages received from capture/source connections.",
		}),
		audioFramesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avstreamd_audio_frames_received_total",
			Help: "Total audio messages received from capture/source connections.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avstreamd_bytes_received_total",
			Help: "Total inbound wire bytes received across all connections.",
		}),
		videoFramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avstreamd_video_frames_sent_total",
			Help: "Total video messages distributed to subscribers.",
		}),
		audioFramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avstreamd_audio_frames_sent_total",
			Help: "Total audio messages distributed to subscribers.",
		}),
		bytesDistributed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avstreamd_bytes_distributed_total",
			Help: "Total wire bytes sent across all subscribers.",
		}),
		failedEncodings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avstreamd_failed_encodings_total",
			Help: "Total frames dropped due to encoder failure.",
		}),
		framingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avstreamd_framing_errors_total",
			Help: "Total wire protocol framing errors observed.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "avstreamd_subscribers_registered",
			Help: "Currently registered fan-out subscribers.",
		}),
	}

	reg.MustRegister(
		r.connectionsTotal,
		r.connectionsActive,
		r.videoFramesRecv,
		r.audioFramesRecv,
		r.bytesReceived,
		r.videoFramesSent,
		r.audioFramesSent,
		r.bytesDistributed,
		r.failedEncodings,
		r.framingErrors,
		r.subscribers,
	)

	return r
}

// Handler returns an http.Handler serving this registry's metrics in the
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}

// IncConnections records a newly accepted connection.
func (r *Registry) IncConnections() {
	r.connectionsTotal.Inc()
	r.connectionsActive.Inc()
	r.connTotal.Inc()
	r.connActive.Inc()
}

// DecActiveConnections records a connection's disconnect.
func (r *Registry) DecActiveConnections() {
	r.connectionsActive.Dec()
	r.connActive.Dec()
}

// AddVideoFrameReceived records one inbound video message (from a capture
// or source connection, before distribution).
func (r *Registry) AddVideoFrameReceived(bytes int) {
	r.videoFramesRecv.Inc()
	r.bytesReceived.Add(float64(bytes))
	r.videoRecv.Inc()
	r.bytesRecv.Add(uint64(bytes))
}

// AddAudioFrameReceived records one inbound audio message.
func (r *Registry) AddAudioFrameReceived(bytes int) {
	r.audioFramesRecv.Inc()
	r.bytesReceived.Add(float64(bytes))
	r.audioRecv.Inc()
	r.bytesRecv.Add(uint64(bytes))
}

// AddVideoFrame records one video message distributed.
func (r *Registry) AddVideoFrame(bytes int) {
	r.videoFramesSent.Inc()
	r.bytesDistributed.Add(float64(bytes))
	r.videoSent.Inc()
	r.bytesSent.Add(uint64(bytes))
}

// AddAudioFrame records one audio message distributed.
func (r *Registry) AddAudioFrame(bytes int) {
	r.audioFramesSent.Inc()
	r.bytesDistributed.Add(float64(bytes))
	r.audioSent.Inc()
	r.bytesSent.Add(uint64(bytes))
}

// AddFailedEncoding records one encoder failure.
func (r *Registry) AddFailedEncoding() {
	r.failedEncodings.Inc()
	r.failedEncodes.Inc()
}

// AddFramingError records one framing/resync event.
func (r *Registry) AddFramingError() {
	r.framingErrors.Inc()
	r.framingErrs.Inc()
}

// SetSubscribers updates the registered-subscriber gauge.
func (r *Registry) SetSubscribers(n int) {
	r.subscribers.Set(float64(n))
	r.subCount.Store(int64(n))
}

// Snapshot returns a point-in-time read of every counter, for the CLI's
// `stats`/`fullstats` commands.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		ConnectionsActive:     int(r.connActive.Load()),
		ConnectionsTotal:      r.connTotal.Load(),
		VideoFramesReceived:   r.videoRecv.Load(),
		AudioFramesReceived:   r.audioRecv.Load(),
		BytesReceived:         r.bytesRecv.Load(),
		VideoFramesSent:       r.videoSent.Load(),
		AudioFramesSent:       r.audioSent.Load(),
		BytesDistributed:      r.bytesSent.Load(),
		FailedEncodings:       r.failedEncodes.Load(),
		FramingErrors:         r.framingErrs.Load(),
		SubscribersRegistered: int(r.subCount.Load()),
		UptimeSeconds:         time.Since(r.startedAt).Seconds(),
	}
}
