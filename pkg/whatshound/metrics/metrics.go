// Package metrics defines the Prometheus instrumentation for the router
// and gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors updated by the router and webhook gateway.
type Metrics struct {
	// MessagesTotal counts processed inbound messages by resolved intent.
	MessagesTotal *prometheus.CounterVec

	// HandlerDuration observes end-to-end router latency per intent.
	HandlerDuration *prometheus.HistogramVec

	// PersistFailures counts store write failures surfaced as apologies.
	PersistFailures prometheus.Counter

	// RepliesTruncated counts replies cut to the transport limit.
	RepliesTruncated prometheus.Counter

	// WebhookRequests counts inbound webhook calls by outcome.
	WebhookRequests *prometheus.CounterVec
}

// New registers and returns the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whatshound",
			Name:      "messages_total",
			Help:      "Inbound messages processed, by resolved intent.",
		}, []string{"intent"}),
		HandlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "whatshound",
			Name:      "handler_duration_seconds",
			Help:      "End-to-end router latency per intent.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"intent"}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "whatshound",
			Name:      "persist_failures_total",
			Help:      "Conversation/context store write failures.",
		}),
		RepliesTruncated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "whatshound",
			Name:      "replies_truncated_total",
			Help:      "Replies truncated to the transport message limit.",
		}),
		WebhookRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whatshound",
			Name:      "webhook_requests_total",
			Help:      "Inbound webhook requests, by outcome.",
		}, []string{"outcome"}),
	}
}
