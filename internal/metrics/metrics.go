package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics: счётчики пайплайна сессий. Регистрируются в переданном реестре,
// в тестах — в свежем prometheus.NewRegistry().
type Metrics struct {
	CandlesProcessed prometheus.Counter
	Trades           *prometheus.CounterVec // type: OPEN|CLOSED
	SessionsActive   prometheus.Gauge
	SessionStops     *prometheus.CounterVec // reason
	RecorderEvents   *prometheus.CounterVec // type, result
	Malformed        prometheus.Counter

	lastCandle atomic.Int64 // unix nano
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandlesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qbot_candles_processed_total",
			Help: "Candles consumed by decision engines",
		}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qbot_trades_total",
			Help: "Trade events emitted by decision engines",
		}, []string{"type"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qbot_sessions_active",
			Help: "Currently running sessions",
		}),
		SessionStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qbot_session_stops_total",
			Help: "Finished sessions by termination reason",
		}, []string{"reason"}),
		RecorderEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qbot_recorder_events_total",
			Help: "Trade events handled by the recorder",
		}, []string{"type", "result"}),
		Malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qbot_malformed_payloads_total",
			Help: "Undecodable payloads skipped by decision engines",
		}),
	}
	reg.MustRegister(
		m.CandlesProcessed,
		m.Trades,
		m.SessionsActive,
		m.SessionStops,
		m.RecorderEvents,
		m.Malformed,
	)
	return m
}

// ObserveCandle: +1 к счётчику и отметка времени для /healthz.
func (m *Metrics) ObserveCandle() {
	m.CandlesProcessed.Inc()
	m.lastCandle.Store(time.Now().UnixNano())
}

func (m *Metrics) LastCandle() time.Time {
	ns := m.lastCandle.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
