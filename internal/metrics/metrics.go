// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginOutcomes counts login attempts by outcome.
	LoginOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blog",
		Subsystem: "auth",
		Name:      "login_outcomes_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})

	// RateLimitDenials counts throttled requests by endpoint.
	RateLimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blog",
		Subsystem: "ratelimit",
		Name:      "denials_total",
		Help:      "Requests rejected by the rate limiter.",
	}, []string{"endpoint"})

	// Alerts counts breach alerts by kind and result (sent, suppressed, fail_open, skipped, error).
	Alerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blog",
		Subsystem: "alert",
		Name:      "breach_alerts_total",
		Help:      "Rate-limit breach alerts by kind and result.",
	}, []string{"kind", "result"})

	// EmailsSent counts outbound emails by template and result.
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blog",
		Subsystem: "mail",
		Name:      "emails_total",
		Help:      "Outbound emails by template and result.",
	}, []string{"template", "result"})

	// ResetTokensCleared counts expired reset tokens removed by the sweeper.
	ResetTokensCleared = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blog",
		Subsystem: "maintenance",
		Name:      "reset_tokens_cleared_total",
		Help:      "Expired password reset tokens cleared.",
	})
)
