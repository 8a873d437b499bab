// Package metrics exposes biomirror-server's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/biomirror/biomirror/pkg/types"
)

const namespace = "biomirror"

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	relayed   prometheus.Counter
	processed prometheus.Counter
	dropped   *prometheus.CounterVec

	heartRate    prometheus.Gauge
	rateUnknown  prometheus.Gauge
	score        prometheus.Gauge
	distortion   prometheus.Gauge
	sessionState *prometheus.GaugeVec
}

// New registers every collector. observers, when non-nil, is sampled at
// scrape time for the connected WebSocket observer count.
func New(observers func() float64) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_relayed_total",
			Help:      "Samples accepted by the relay hub.",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_processed_total",
			Help:      "Samples turned into an output tuple by the running session.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_dropped_total",
			Help:      "Samples or events discarded, by reason.",
		}, []string{"reason"}),
		heartRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heart_rate_bpm",
			Help:      "Last reported heart rate; keeps its value while unavailable.",
		}),
		rateUnknown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heart_rate_unavailable",
			Help:      "1 when the last output reported the heart rate as unavailable.",
		}),
		score: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stability_score",
			Help:      "Smoothed instability score of the last output.",
		}),
		distortion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "distortion_intensity",
			Help:      "Target distortion of the last output, 0 to 20.",
		}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "1 for the current session state, 0 for the others.",
		}, []string{"state"}),
	}

	m.reg.MustRegister(
		m.relayed, m.processed, m.dropped,
		m.heartRate, m.rateUnknown, m.score, m.distortion, m.sessionState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if observers != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observers",
			Help:      "Connected WebSocket observers.",
		}, observers))
	}
	m.SetState(types.StateIdle)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// SampleRelayed counts one sample accepted by the relay.
func (m *Metrics) SampleRelayed() { m.relayed.Inc() }

// Dropped counts n discarded samples for reason.
func (m *Metrics) Dropped(reason string, n int) {
	m.dropped.WithLabelValues(reason).Add(float64(n))
}

// Record updates the output gauges. It satisfies session.Recorder.
func (m *Metrics) Record(out types.Output) {
	m.processed.Inc()
	if out.HeartRate.Available {
		m.heartRate.Set(float64(out.HeartRate.BPM))
		m.rateUnknown.Set(0)
	} else {
		m.rateUnknown.Set(1)
	}
	m.score.Set(out.StabilityScore)
	m.distortion.Set(out.DistortionIntensity)
}

// SetState marks st as the current session state.
func (m *Metrics) SetState(st types.SessionState) {
	for _, s := range []types.SessionState{types.StateIdle, types.StateCalibrating, types.StateRunning} {
		v := 0.0
		if s == st {
			v = 1
		}
		m.sessionState.WithLabelValues(string(s)).Set(v)
	}
}
