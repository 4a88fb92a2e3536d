// Package metrics holds the prometheus instruments for the service
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransfersTotal counts executed transfers by outcome ("executed",
	// "replayed", "rejected")
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultpay_transfers_total",
		Help: "Total transfer requests by outcome",
	}, []string{"outcome"})

	// AuthFailuresTotal counts rejected authentication attempts by surface
	// ("bearer", "merchant", "login")
	AuthFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultpay_auth_failures_total",
		Help: "Total authentication failures by surface",
	}, []string{"surface"})

	// RateLimitedTotal counts requests rejected by the rate limiter
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaultpay_rate_limited_total",
		Help: "Total requests rejected by the rate limiter",
	})
)
