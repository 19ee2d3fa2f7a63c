// Package metrics collects Prometheus metrics for the auth lifecycle.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the rest of the service reports to.
type Recorder interface {
	RecordAuthAttempt(action, outcome string)
	RecordCookieBridgeFailure(operation string)
	RecordGuardRedirect()
	RecordSessionTransition(state string)
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

type Collector struct {
	authAttempts   *prometheus.CounterVec
	cookieFailures *prometheus.CounterVec
	guardRedirects prometheus.Counter
	sessionStates  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sidehustlers_auth_attempts_total",
			Help: "Authentication actions by outcome.",
		}, []string{"action", "outcome"}),
		cookieFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sidehustlers_cookie_bridge_failures_total",
			Help: "Session cookie writes or clears that failed.",
		}, []string{"operation"}),
		guardRedirects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sidehustlers_route_guard_redirects_total",
			Help: "Requests redirected to login by the route guard.",
		}),
		sessionStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sidehustlers_session_transitions_total",
			Help: "Session state transitions by target state.",
		}, []string{"state"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sidehustlers_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sidehustlers_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.cookieFailures,
		c.guardRedirects,
		c.sessionStates,
		c.httpRequests,
		c.httpLatency,
	)
	return c
}

func (c *Collector) RecordAuthAttempt(action, outcome string) {
	c.authAttempts.WithLabelValues(action, outcome).Inc()
}

func (c *Collector) RecordCookieBridgeFailure(operation string) {
	c.cookieFailures.WithLabelValues(operation).Inc()
}

func (c *Collector) RecordGuardRedirect() {
	c.guardRedirects.Inc()
}

func (c *Collector) RecordSessionTransition(state string) {
	c.sessionStates.WithLabelValues(state).Inc()
}

func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the registry for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordAuthAttempt(string, string)                     {}
func (Nop) RecordCookieBridgeFailure(string)                     {}
func (Nop) RecordGuardRedirect()                                 {}
func (Nop) RecordSessionTransition(string)                       {}
func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
