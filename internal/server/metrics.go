package server

import (
	"codeberg.org/nexustouch/perfd/internal/perf"
	"codeberg.org/nexustouch/perfd/internal/session"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports session activity to prometheus.
type Metrics struct {
	sessions        prometheus.Gauge
	modeChanges     *prometheus.CounterVec
	activeMode      *prometheus.GaugeVec
	touchLatency    prometheus.Histogram
	malformedEvents prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perfd_sessions",
			Help: "Connected render sessions",
		}),
		modeChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perfd_mode_changes_total",
			Help: "Performance mode changes",
		}, []string{"to", "reason"}),
		activeMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perfd_active_mode",
			Help: "Sessions per active performance mode",
		}, []string{"mode"}),
		touchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perfd_touch_latency_ms",
			Help:    "Input to response latency reported by clients",
			Buckets: []float64{8, 16, 33, 50, 80, 100, 150, 200, 300, 500, 1000},
		}),
		malformedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perfd_malformed_events_total",
			Help: "Client events that could not be decoded",
		}),
	}

	for _, mode := range []perf.Mode{perf.ModeFull, perf.ModeReduced, perf.ModeMinimal} {
		m.activeMode.WithLabelValues(mode.String())
	}

	reg.MustRegister(m.sessions, m.modeChanges, m.activeMode, m.touchLatency, m.malformedEvents)
	return m
}

// Observe updates the metrics from one session message.
func (m *Metrics) Observe(msg session.Message) {
	switch msg.Type {
	case session.MessageHello:
		m.sessions.Inc()
		m.activeMode.WithLabelValues(msg.Mode.String()).Inc()

	case session.MessageMode:
		m.modeChanges.WithLabelValues(msg.Mode.String(), string(msg.Reason)).Inc()
		if msg.From != nil && *msg.From != msg.Mode {
			m.activeMode.WithLabelValues(msg.From.String()).Dec()
			m.activeMode.WithLabelValues(msg.Mode.String()).Inc()
		}

	case session.MessageSnapshot:
		if msg.Trigger == session.TriggerInteraction && msg.Snapshot != nil {
			m.touchLatency.Observe(float64(msg.Snapshot.TouchLatency.Last.Microseconds()) / 1000)
		}

	case session.MessageClosed:
		m.sessions.Dec()
		m.activeMode.WithLabelValues(msg.Mode.String()).Dec()
	}
}

func (m *Metrics) malformed() {
	m.malformedEvents.Inc()
}
