// Package metrics exposes session lifecycle counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatbot_auth"

type Auth struct {
	registry *prometheus.Registry

	SessionsIssued  *prometheus.CounterVec
	RefreshOutcomes *prometheus.CounterVec
	ReuseDetected   prometheus.Counter
	SessionsRevoked *prometheus.CounterVec
	SessionsSwept   prometheus.Counter
	LoginFailures   prometheus.Counter
}

// New registers the auth counters on a private registry, together with the
// Go runtime and process collectors.
func New() *Auth {
	registry := prometheus.NewRegistry()

	m := &Auth{
		registry: registry,
		SessionsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_issued_total",
			Help:      "Sessions created, by flow (login, register).",
		}, []string{"flow"}),
		RefreshOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Refresh attempts, by outcome.",
		}, []string{"outcome"}),
		ReuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_reuse_detected_total",
			Help:      "Refresh tokens presented after they were rotated away or revoked.",
		}),
		SessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_revoked_total",
			Help:      "Sessions deleted, by cause (logout, logout_all, reuse, admin).",
		}, []string{"cause"}),
		SessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Expired session records removed by the sweeper.",
		}),
		LoginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_failures_total",
			Help:      "Login attempts rejected for invalid credentials.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsIssued,
		m.RefreshOutcomes,
		m.ReuseDetected,
		m.SessionsRevoked,
		m.SessionsSwept,
		m.LoginFailures,
	)

	return m
}

func (m *Auth) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
