// Package metrics holds the prometheus collectors of the EMI engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "emi"

var (
	AgreementsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agreements_created_total",
		Help:      "EMI agreements created from an initial payment.",
	})

	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliations_total",
		Help:      "Payment reconciliations by outcome.",
	}, []string{"outcome"})

	AdvanceConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "advance_conflicts_total",
		Help:      "Conditional advance updates that lost a race and were retried.",
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification dispatches by template and result.",
	}, []string{"template", "result"})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_runs_total",
		Help:      "Due-date sweep runs by result.",
	}, []string{"result"})

	SweepRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_records_total",
		Help:      "Agreements evaluated by the sweep, by action taken.",
	}, []string{"action"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Wall time of a sweep run.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
