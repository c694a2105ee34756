package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "boardsync"

// Metrics groups the client side collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	PhaseTransitions  *prometheus.CounterVec
	ReconnectDelay    prometheus.Histogram
	UpgradeFailures   prometheus.Counter
	ProtocolErrors    *prometheus.CounterVec
	IntentsSent       *prometheus.CounterVec
	IntentsUnresolved *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PhaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_phase_transitions_total",
			Help:      "Connection phase transitions by target phase.",
		}, []string{"phase"}),
		ReconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay scheduled before each reconnect attempt.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32},
		}),
		UpgradeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_upgrade_failures_total",
			Help:      "Failed attempts to upgrade from polling to websocket.",
		}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Inbound payloads that were malformed or needed defaults.",
		}, []string{"event"}),
		IntentsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "move_intents_total",
			Help:      "Move intents sent to the authority by game kind.",
		}, []string{"kind"}),
		IntentsUnresolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "move_intents_unconfirmed_total",
			Help:      "Move intents that ended without an authoritative update.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.PhaseTransitions, m.ReconnectDelay, m.UpgradeFailures,
			m.ProtocolErrors, m.IntentsSent, m.IntentsUnresolved)
	}
	return m
}

func (m *Metrics) Phase(phase string) {
	if m == nil {
		return
	}
	m.PhaseTransitions.WithLabelValues(phase).Inc()
}

func (m *Metrics) Reconnect(seconds float64) {
	if m == nil {
		return
	}
	m.ReconnectDelay.Observe(seconds)
}

func (m *Metrics) UpgradeFailed() {
	if m == nil {
		return
	}
	m.UpgradeFailures.Inc()
}

func (m *Metrics) Protocol(event string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(event).Inc()
}

func (m *Metrics) Intent(kind string) {
	if m == nil {
		return
	}
	m.IntentsSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) Unconfirmed(reason string) {
	if m == nil {
		return
	}
	m.IntentsUnresolved.WithLabelValues(reason).Inc()
}
