// README: Prometheus collectors for admissions, route lookups and HTTP traffic.
package infra

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Admissions      *prometheus.CounterVec
	RouteCache      *prometheus.CounterVec
	RouteLatency    *prometheus.HistogramVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	VoucherRedeemed prometheus.Counter
}

// NewMetrics registers collectors on reg. Pass prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curvas_booking_admissions_total",
			Help: "Booking admission attempts by outcome.",
		}, []string{"outcome"}),
		RouteCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curvas_route_cache_lookups_total",
			Help: "Route and geocode cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		RouteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curvas_maps_call_duration_seconds",
			Help:    "Latency of calls to the maps provider.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"call", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curvas_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curvas_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		VoucherRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "curvas_voucher_redemptions_total",
			Help: "Voucher usages recorded with a booking.",
		}),
	}
	reg.MustRegister(m.Admissions, m.RouteCache, m.RouteLatency, m.HTTPRequests, m.HTTPDuration, m.VoucherRedeemed)
	return m
}

// AdmissionOutcome implements booking.Observer.
func (m *Metrics) AdmissionOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(outcome).Inc()
}

// VoucherRedemption implements booking.Observer.
func (m *Metrics) VoucherRedemption() {
	if m == nil {
		return
	}
	m.VoucherRedeemed.Inc()
}

// CacheLookup implements maps.Observer.
func (m *Metrics) CacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RouteCache.WithLabelValues(kind, result).Inc()
}

// ProviderCall implements maps.Observer.
func (m *Metrics) ProviderCall(call string, seconds float64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RouteLatency.WithLabelValues(call, result).Observe(seconds)
}

// HTTPRequest implements middleware.RequestObserver.
func (m *Metrics) HTTPRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}
