// Package metrics holds the Prometheus collectors for rule processing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Action outcome label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Rule processing metrics
var (
	RuleMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrules_rule_matches_total",
			Help: "Total number of emails matched per rule",
		},
		[]string{"rule"},
	)

	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrules_actions_total",
			Help: "Total number of actions executed on emails",
		},
		[]string{"action", "status"},
	)

	EmailsProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailrules_emails_processed_total",
			Help: "Total number of emails evaluated against the rule set",
		},
	)

	RulesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailrules_rules_loaded",
			Help: "Number of rules in the active rule set",
		},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailrules_run_duration_seconds",
			Help:    "Duration of processing runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// ObserveAction counts one executed action.
func ObserveAction(action string, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	ActionsTotal.WithLabelValues(action, status).Inc()
}
