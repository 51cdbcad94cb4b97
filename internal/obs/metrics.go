package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yongdono/kungfu/internal/schema"
)

const namespace = "kungfu"

// Registration outcomes.
const (
	RegistrationAccepted  = "accepted"
	RegistrationDuplicate = "duplicate"
	RegistrationStale     = "stale"
	RegistrationFailed    = "failed"
)

// Metrics collects bus and master counters. A nil *Metrics is a no-op.
type Metrics struct {
	frames          *prometheus.CounterVec
	dispatchLatency prometheus.Histogram
	idleCycles      prometheus.Counter
	segmentsGone    prometheus.Counter
	liveApps        prometheus.Gauge
	channels        prometheus.Gauge
	registrations   *prometheus.CounterVec
	deregistrations prometheus.Counter
	rejected        *prometheus.CounterVec
	timerFires      prometheus.Counter
	cacheShifts     prometheus.Counter
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dispatched_total",
			Help:      "Frames dispatched by the event bus, by message type.",
		}, []string{"msg_type"}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_latency_seconds",
			Help:      "Time spent running subscriptions for one frame.",
			Buckets:   []float64{1e-7, 5e-7, 1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 1e-3, 1e-2},
		}),
		idleCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_cycles_total",
			Help:      "Poll cycles that found no frame.",
		}),
		segmentsGone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_gone_total",
			Help:      "Joined segments dropped because they disappeared or failed validation.",
		}),
		liveApps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_apps",
			Help:      "Locations currently registered with the master.",
		}),
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels",
			Help:      "Registered source to dest channels.",
		}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Register requests seen by the master, by outcome.",
		}, []string{"result"}),
		deregistrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deregistrations_total",
			Help:      "Locations deregistered by the master.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_rejected_total",
			Help:      "Control requests dropped by the master, by request type.",
		}, []string{"msg_type"}),
		timerFires: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_fires_total",
			Help:      "Time markers written for timer tasks.",
		}),
		cacheShifts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_shifts_total",
			Help:      "CacheReset hand-offs applied.",
		}),
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	reg.MustRegister(
		m.frames,
		m.dispatchLatency,
		m.idleCycles,
		m.segmentsGone,
		m.liveApps,
		m.channels,
		m.registrations,
		m.deregistrations,
		m.rejected,
		m.timerFires,
		m.cacheShifts,
	)
	return m
}

// ObserveFrame counts one dispatched frame and its dispatch time.
func (m *Metrics) ObserveFrame(tag schema.Tag, d time.Duration) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(tag.String()).Inc()
	m.dispatchLatency.Observe(d.Seconds())
}

// IncIdle records an empty poll cycle.
func (m *Metrics) IncIdle() {
	if m == nil {
		return
	}
	m.idleCycles.Inc()
}

// IncSegmentGone records a dropped segment.
func (m *Metrics) IncSegmentGone() {
	if m == nil {
		return
	}
	m.segmentsGone.Inc()
}

// SetLiveApps records the number of live locations.
func (m *Metrics) SetLiveApps(n int) {
	if m == nil {
		return
	}
	m.liveApps.Set(float64(n))
}

// SetChannels records the size of the channel registry.
func (m *Metrics) SetChannels(n int) {
	if m == nil {
		return
	}
	m.channels.Set(float64(n))
}

// IncRegistration records a Register outcome.
func (m *Metrics) IncRegistration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

// IncDeregistration records a deregistration.
func (m *Metrics) IncDeregistration() {
	if m == nil {
		return
	}
	m.deregistrations.Inc()
}

// IncRejected records a dropped control request.
func (m *Metrics) IncRejected(tag schema.Tag) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(tag.String()).Inc()
}

// IncTimerFire records a fired timer.
func (m *Metrics) IncTimerFire() {
	if m == nil {
		return
	}
	m.timerFires.Inc()
}

// IncCacheShift records an applied CacheReset.
func (m *Metrics) IncCacheShift() {
	if m == nil {
		return
	}
	m.cacheShifts.Inc()
}
