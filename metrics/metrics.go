// Package metrics exports gridauth outcomes as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements gridauth.Observer on top of Prometheus counters.
type Collector struct {
	logins        *prometheus.CounterVec
	registrations *prometheus.CounterVec
	sessionChecks *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridauth_logins_total",
			Help: "Login attempts by provider and outcome",
		}, []string{"provider", "outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridauth_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		sessionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridauth_session_checks_total",
			Help: "Session token validations by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.logins,
		c.registrations,
		c.sessionChecks,
	)
	return c
}

// ObserveLogin counts a login attempt. outcome is "success" or an error code.
func (c *Collector) ObserveLogin(provider string, outcome string) {
	c.logins.WithLabelValues(provider, outcome).Inc()
}

// ObserveRegistration counts a registration attempt.
func (c *Collector) ObserveRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveSessionCheck(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	c.sessionChecks.WithLabelValues(result).Inc()
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
