// Package metrics holds the Prometheus collectors for sync runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RowsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sheetsync",
		Name:      "rows_classified_total",
		Help:      "Rows written from a classifier result, by kind.",
	}, []string{"kind"})

	ClassifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sheetsync",
		Name:      "classify_failures_total",
		Help:      "Rows left untouched because classification failed.",
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sheetsync",
		Name:      "notifications_total",
		Help:      "Notifications sent, by reason.",
	}, []string{"reason"})

	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sheetsync",
		Name:      "notify_failures_total",
		Help:      "Notifications that could not be delivered.",
	})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sheetsync",
		Name:      "run_duration_seconds",
		Help:      "Wall time of one sync run.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	ProcessRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sheetsync",
		Name:      "process_requests_total",
		Help:      "Classifier endpoint requests, by result kind or error.",
	}, []string{"result"})
)

// Reasons used with Notifications.
const (
	ReasonDeleted     = "deleted"
	ReasonDateChanged = "date_changed"
	ReasonReminder    = "reminder"
	ReasonClassified  = "classified"
)
