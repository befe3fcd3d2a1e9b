// Package metrics exposes relay counters on a per-server prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"ChatRelay/service/bus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_relay"

type Metrics struct {
	reg *prometheus.Registry

	Connections   prometheus.Gauge
	AuthFailures  *prometheus.CounterVec
	FramesIn      *prometheus.CounterVec
	FramesDropped prometheus.Counter
	Evictions     prometheus.Counter
	APIRequests   *prometheus.CounterVec
	APILatency    prometheus.Histogram
	busPublished  *prometheus.CounterVec
	busDropped    *prometheus.CounterVec
	busDelivered  *prometheus.CounterVec
	busDuplicates *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections",
			Help: "Live authenticated websocket connections.",
		}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "auth_failures_total",
			Help: "Rejected handshakes by close code.",
		}, []string{"code"}),
		FramesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_in_total",
			Help: "Inbound client frames by event kind.",
		}, []string{"kind"}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_dropped_total",
			Help: "Outbound frames dropped because a send queue was full.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "evictions_total",
			Help: "Connections closed to honour the per-user cap.",
		}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_requests_total",
			Help: "Calls to the API of record by outcome.",
		}, []string{"outcome"}),
		APILatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "api_request_seconds",
			Help:    "Latency of calls to the API of record.",
			Buckets: prometheus.DefBuckets,
		}),
		busPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bus", Name: "published_total",
			Help: "Envelopes handed to the transport.",
		}, []string{"topic"}),
		busDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bus", Name: "dropped_total",
			Help: "Envelopes dropped by topic and reason.",
		}, []string{"topic", "reason"}),
		busDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bus", Name: "delivered_total",
			Help: "Envelopes received from the transport.",
		}, []string{"topic"}),
		busDuplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bus", Name: "duplicates_total",
			Help: "Envelopes discarded as already seen.",
		}, []string{"topic"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections, m.AuthFailures, m.FramesIn, m.FramesDropped, m.Evictions,
		m.APIRequests, m.APILatency,
		m.busPublished, m.busDropped, m.busDelivered, m.busDuplicates,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveAPI records one call to the API of record.
func (m *Metrics) ObserveAPI(start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.APIRequests.WithLabelValues(outcome).Inc()
	m.APILatency.Observe(time.Since(start).Seconds())
}

// bus.Observer

func (m *Metrics) Published(t bus.Topic) { m.busPublished.WithLabelValues(string(t)).Inc() }
func (m *Metrics) Dropped(t bus.Topic, reason string) {
	m.busDropped.WithLabelValues(string(t), reason).Inc()
}
func (m *Metrics) Delivered(t bus.Topic) { m.busDelivered.WithLabelValues(string(t)).Inc() }
func (m *Metrics) Duplicate(t bus.Topic) { m.busDuplicates.WithLabelValues(string(t)).Inc() }

var _ bus.Observer = (*Metrics)(nil)
