package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NarenCandy/wild-animal-detection/internal/engine"
)

// Metrics holds all application metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Pipeline counters
	FramesSampled   atomic.Uint64
	FramesEvaluated atomic.Uint64
	DetectionErrors atomic.Uint64

	// Dispatch counters
	DispatchQueued  atomic.Uint64
	DispatchDropped atomic.Uint64
	DispatchFailed  atomic.Uint64
	AlertsStored    atomic.Uint64

	// Notification counters
	NotificationsSent   atomic.Uint64
	NotificationsFailed atomic.Uint64

	decisions *prometheus.CounterVec
	registry  *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wildwatch_decisions_total",
			Help: "Engine decisions by class, action and reason",
		}, []string{"class", "action", "reason"}),
	}
	m.registry.MustRegister(m.decisions)
	m.registerCounters()
	return m
}

func (m *Metrics) registerCounters() {
	counters := []struct {
		name string
		help string
		v    *atomic.Uint64
	}{
		{"wildwatch_frames_sampled_total", "Frames the sampler sent to detection", &m.FramesSampled},
		{"wildwatch_frames_evaluated_total", "Frames run through detection and the engine", &m.FramesEvaluated},
		{"wildwatch_detection_errors_total", "Frames whose detection failed", &m.DetectionErrors},
		{"wildwatch_dispatch_queued_total", "Alerts queued for dispatch", &m.DispatchQueued},
		{"wildwatch_dispatch_dropped_total", "Alerts dropped because the dispatch queue was full", &m.DispatchDropped},
		{"wildwatch_dispatch_failed_total", "Alerts whose delivery failed", &m.DispatchFailed},
		{"wildwatch_alerts_stored_total", "Alerts persisted", &m.AlertsStored},
		{"wildwatch_notifications_sent_total", "Push notifications delivered", &m.NotificationsSent},
		{"wildwatch_notifications_failed_total", "Push notifications that failed", &m.NotificationsFailed},
	}
	for _, c := range counters {
		v := c.v
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		))
	}
}

// RegisterGauge exposes a value read at scrape time
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

// ObserveDecisions counts one frame's decisions
func (m *Metrics) ObserveDecisions(decisions []engine.Decision) {
	if m == nil {
		return
	}
	m.FramesEvaluated.Add(1)
	for _, d := range decisions {
		m.decisions.WithLabelValues(d.Detection.Class, string(d.Action), string(d.Reason)).Inc()
	}
}

// Inc increments one of the counters, ignoring a nil receiver
func (m *Metrics) Inc(counter func(*Metrics) *atomic.Uint64) {
	if m == nil {
		return
	}
	counter(m).Add(1)
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Counter selectors for Inc
func Queued(m *Metrics) *atomic.Uint64             { return &m.DispatchQueued }
func Dropped(m *Metrics) *atomic.Uint64            { return &m.DispatchDropped }
func Failed(m *Metrics) *atomic.Uint64             { return &m.DispatchFailed }
func Stored(m *Metrics) *atomic.Uint64             { return &m.AlertsStored }
func NotificationSent(m *Metrics) *atomic.Uint64   { return &m.NotificationsSent }
func NotificationFailed(m *Metrics) *atomic.Uint64 { return &m.NotificationsFailed }
func DetectionError(m *Metrics) *atomic.Uint64     { return &m.DetectionErrors }
func FrameSampled(m *Metrics) *atomic.Uint64       { return &m.FramesSampled }
