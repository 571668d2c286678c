package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vempraca",
		Name:      "webhook_events_total",
		Help:      "Billing webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})

	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vempraca",
		Name:      "webhook_duration_seconds",
		Help:      "Time spent handling a billing webhook delivery.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	VisibilityWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vempraca",
		Name:      "visibility_writes_total",
		Help:      "Listing visibility writes by resulting value.",
	}, []string{"visible"})

	CancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vempraca",
		Name:      "cancellations_total",
		Help:      "Owner-initiated subscription cancellations by mode and result.",
	}, []string{"mode", "result"})

	BackfillRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vempraca",
		Name:      "backfill_listings_total",
		Help:      "Listings visited by the visibility backfill job by outcome.",
	}, []string{"outcome"})
)
