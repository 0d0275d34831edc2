// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values for auth events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the service counters. A nil *Metrics records nothing.
type Metrics struct {
	registry             *prometheus.Registry
	HTTPRequests         *prometheus.CounterVec
	AuthEvents           *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
}

// New creates a registry with the Go and process collectors plus the service counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		AuthEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_auth_events_total",
				Help: "Total number of account operations by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		NotificationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_notification_failures_total",
				Help: "Total number of notifications that could not be delivered",
			},
			[]string{"template"},
		),
	}
	reg.MustRegister(m.HTTPRequests, m.AuthEvents, m.NotificationFailures)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// RecordAuthEvent counts one account operation. err decides the outcome label.
func (m *Metrics) RecordAuthEvent(event string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.AuthEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) RecordNotificationFailure(template string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(template).Inc()
}
