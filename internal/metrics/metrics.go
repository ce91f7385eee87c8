package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marketplace"

// Metrics groups the collectors of the stock pipeline and the read path.
// All methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	cacheRequests *prometheus.CounterVec
	gatewayReads  *prometheus.CounterVec
	reservations  *prometheus.CounterVec
	online        prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache store lookups by result.",
		}, []string{"result"}),
		gatewayReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_reads_total",
			Help:      "Gateway reads by collection and the source that served them.",
		}, []string{"collection", "source"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Order placement outcomes.",
		}, []string{"outcome"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectivity_online",
			Help:      "1 while the remote store is reachable.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.cacheRequests, m.gatewayReads, m.reservations, m.online)
	}
	return m
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheRequests.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheRequests.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) GatewayRead(collection, source string) {
	if m != nil {
		m.gatewayReads.WithLabelValues(collection, source).Inc()
	}
}

func (m *Metrics) Reservation(outcome string) {
	if m != nil {
		m.reservations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}
