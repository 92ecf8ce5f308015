package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wa_bridge"

var (
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_requests_total",
		Help:      "Inbound webhook requests by outcome (processed, ignored, denied, rejected, delivery_failed, lookup_failed).",
	}, []string{"outcome"})

	AssistantRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "assistant_runs_total",
		Help:      "Assistant runs by terminal outcome.",
	}, []string{"outcome"})

	AssistantRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "assistant_run_duration_seconds",
		Help:      "Wall time from message append to terminal run state.",
		Buckets:   []float64{1, 2, 5, 10, 15, 20, 30, 45, 60},
	}, []string{"outcome"})

	ThreadLifecycle = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "thread_lifecycle_total",
		Help:      "Thread store transitions (reused, created, recreated, reset).",
	}, []string{"event"})

	ResponsePath = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "response_interpretations_total",
		Help:      "Assistant responses by interpretation path (structured, fallback).",
	}, []string{"path"})

	OutboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbound_messages_total",
		Help:      "Outbound messages by result.",
	}, []string{"result"})

	InteractionWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interaction_log_writes_total",
		Help:      "Interaction log writes by result (ok, failed, dropped).",
	}, []string{"result"})
)
