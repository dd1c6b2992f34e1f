// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tripbot"

var WebhookUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "telegram",
	Name:      "updates_total",
	Help:      "Telegram updates received, by kind and outcome.",
}, []string{"kind", "outcome"})

var Purchases = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "payments",
	Name:      "purchases_total",
	Help:      "Successful-payment notifications, by outcome (recorded, duplicate, failed).",
}, []string{"outcome"})

var Refunds = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "payments",
	Name:      "refunds_total",
	Help:      "Refund requests, by outcome.",
}, []string{"outcome"})

var CreditsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "credits",
	Name:      "granted_total",
	Help:      "Credits added to balances, by source.",
}, []string{"source"})

var Tasks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "tasks",
	Name:      "processed_total",
	Help:      "Background tasks processed, by kind and outcome.",
}, []string{"kind", "outcome"})

var QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "tasks",
	Name:      "queue_depth",
	Help:      "Tasks waiting in the local worker pool.",
})
