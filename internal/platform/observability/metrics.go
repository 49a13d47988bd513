package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "storefront"

// Metrics exposes the Prometheus collectors recorded by the HTTP layer and services.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	ordersPlaced  *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	cartMutations *prometheus.CounterVec
}

// NewMetrics registers collectors on a dedicated registry together with the Go runtime collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "orders_placed_total",
			Help:      "Orders created at checkout.",
		}, []string{"payment_method"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "payment_webhook_events_total",
			Help:      "Payment gateway notifications by type and outcome.",
		}, []string{"type", "outcome"}),
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cart_mutations_total",
			Help:      "Cart mutations by operation.",
		}, []string{"operation"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.latency,
		m.ordersPlaced,
		m.webhookEvents,
		m.cartMutations,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records a completed HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	route = SanitizeRoute(route)
	m.requests.WithLabelValues(route, SanitizeMethod(method), strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(float64(latency.Milliseconds()))
}

// OrderPlaced counts a newly created order.
func (m *Metrics) OrderPlaced(paymentMethod string) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(paymentMethod).Inc()
}

// WebhookEvent counts a processed payment notification.
func (m *Metrics) WebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// CartMutation counts an applied cart change.
func (m *Metrics) CartMutation(operation string) {
	if m == nil {
		return
	}
	m.cartMutations.WithLabelValues(operation).Inc()
}

// MetricsMiddleware records request counts and latency per chi route pattern.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := newResponseRecorder(w)
			start := time.Now()
			next.ServeHTTP(recorder, r)
			m.ObserveRequest(routePattern(r), r.Method, recorder.Status(), time.Since(start))
		})
	}
}
