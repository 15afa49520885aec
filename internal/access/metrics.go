// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package access

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for permission resolution.
var (
	checkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "galacticfy_permission_check_duration_seconds",
		Help:    "Histogram of permission check latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galacticfy_permission_checks_total",
		Help: "Total number of permission checks by result",
	}, []string{"result"})

	effectiveLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galacticfy_effective_permission_lookups_total",
		Help: "Effective permission set lookups by cache result",
	}, []string{"cache"})

	expiryResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galacticfy_role_expiry_resets_total",
		Help: "Temporary role assignments reset to the default role on read",
	})

	// persistenceFailures counts repository errors the engine absorbed or reported.
	persistenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galacticfy_persistence_failures_total",
		Help: "Total number of persistence failures by operation",
	}, []string{"operation"})
)

func recordCheck(d time.Duration, allowed bool) {
	checkDuration.Observe(d.Seconds())
	result := "deny"
	if allowed {
		result = "allow"
	}
	checksTotal.WithLabelValues(result).Inc()
}

func recordEffectiveLookup(hit bool) {
	if hit {
		effectiveLookups.WithLabelValues("hit").Inc()
		return
	}
	effectiveLookups.WithLabelValues("miss").Inc()
}

func recordExpiryReset() {
	expiryResets.Inc()
}

func recordPersistenceFailure(operation string) {
	persistenceFailures.WithLabelValues(operation).Inc()
}
