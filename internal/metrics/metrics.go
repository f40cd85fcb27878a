// ABOUTME: Prometheus metrics for the playout engine and player
// ABOUTME: Engine counters are read at scrape time; player events are counted as they happen
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/pkg/engine"
)

const namespace = "playout"

// EngineSource is what the collector reads on every scrape
type EngineSource interface {
	Stats() engine.Stats
	Snapshot() engine.Snapshot
}

// engineCollector turns engine counters into metrics without keeping state
type engineCollector struct {
	src EngineSource

	callbacks     *prometheus.Desc
	underruns     *prometheus.Desc
	reopens       *prometheus.Desc
	openFailures  *prometheus.Desc
	dropped       *prometheus.Desc
	tracksStarted *prometheus.Desc
	trimmed       *prometheus.Desc
	elapsed       *prometheus.Desc
	buffered      *prometheus.Desc
	capacity      *prometheus.Desc
	streamRate    *prometheus.Desc
	trackRate     *prometheus.Desc
	running       *prometheus.Desc
	underrun      *prometheus.Desc
}

func newEngineCollector(src EngineSource) *engineCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "engine", name), help, nil, nil)
	}
	return &engineCollector{
		src:           src,
		callbacks:     desc("render_callbacks_total", "Render periods requested by the sink."),
		underruns:     desc("underruns_total", "Periods short of buffered audio."),
		reopens:       desc("sink_opens_total", "Sink sessions opened."),
		openFailures:  desc("sink_open_failures_total", "Sink sessions that failed to open."),
		dropped:       desc("dropped_requests_total", "Reopen requests dropped on a full channel."),
		tracksStarted: desc("tracks_started_total", "Track start points reached by render."),
		trimmed:       desc("trimmed_frames_total", "Frames skipped by trim requests."),
		elapsed:       desc("elapsed_frames", "Frames played or skipped."),
		buffered:      desc("buffered_bytes", "Audio waiting in the ring buffer."),
		capacity:      desc("buffer_capacity_bytes", "Ring buffer size."),
		streamRate:    desc("stream_sample_rate_hertz", "Rate of the open sink session, zero when closed."),
		trackRate:     desc("track_sample_rate_hertz", "Native rate of the current track."),
		running:       desc("running", "One while render drains the buffer."),
		underrun:      desc("underrun", "One while the last period underran."),
	}
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.callbacks, c.underruns, c.reopens, c.openFailures, c.dropped,
		c.tracksStarted, c.trimmed, c.elapsed, c.buffered, c.capacity,
		c.streamRate, c.trackRate, c.running, c.underrun,
	} {
		ch <- d
	}
}

func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.src.Stats()
	snap := c.src.Snapshot()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	flag := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}

	counter(c.callbacks, stats.Callbacks)
	counter(c.underruns, stats.Underruns)
	counter(c.reopens, stats.Reopens)
	counter(c.openFailures, stats.OpenFailures)
	counter(c.dropped, stats.DroppedRequests)
	counter(c.tracksStarted, stats.TracksStarted)
	counter(c.trimmed, stats.TrimmedFrames)
	counter(c.elapsed, snap.Elapsed)
	gauge(c.buffered, float64(snap.Buffered))
	gauge(c.capacity, float64(snap.Capacity))
	gauge(c.streamRate, float64(snap.StreamRate))
	gauge(c.trackRate, float64(snap.TrackRate))
	gauge(c.running, flag(snap.Status.Has(engine.StatusRunning)))
	gauge(c.underrun, flag(snap.Status.Has(engine.StatusUnderrun)))
}

// Metrics owns the registry served on /metrics
type Metrics struct {
	registry *prometheus.Registry

	commands     *prometheus.CounterVec
	tracks       prometheus.Counter
	decodeErrors prometheus.Counter
	clients      prometheus.Gauge
}

// New registers engine, player and runtime metrics on a fresh registry
func New(src EngineSource) (*Metrics, error) {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "player",
			Name:      "commands_total",
			Help:      "Control commands handled, by command and outcome.",
		}, []string{"command", "status"}),
		tracks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "player",
			Name:      "tracks_played_total",
			Help:      "Tracks fully enqueued.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "player",
			Name:      "decode_errors_total",
			Help:      "Tracks abandoned on a decode or open error.",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "clients",
			Help:      "Connected remote control clients.",
		}),
	}

	for _, c := range []prometheus.Collector{
		newEngineCollector(src),
		m.commands,
		m.tracks,
		m.decodeErrors,
		m.clients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, errors.New(err).
				Component("metrics").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}
	return m, nil
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// RegisterHandlers mounts /metrics on mux
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", m.Handler())
}

// RecordCommand counts a handled control command
func (m *Metrics) RecordCommand(command string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.commands.WithLabelValues(command, status).Inc()
}

// RecordTrack counts a finished track
func (m *Metrics) RecordTrack() {
	m.tracks.Inc()
}

// RecordDecodeError counts an abandoned track
func (m *Metrics) RecordDecodeError() {
	m.decodeErrors.Inc()
}

// SetClients reports connected remote clients
func (m *Metrics) SetClients(n int) {
	m.clients.Set(float64(n))
}
