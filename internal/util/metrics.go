package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_created_total",
		Help: "Total number of checkout sessions created",
	})

	CheckoutsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_rejected_total",
		Help: "Total number of checkouts rejected before payment",
	}, []string{"reason"})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_completed_total",
		Help: "Total number of orders fulfilled",
	})

	FulfillmentReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_replays_total",
		Help: "Total number of payment confirmations short-circuited as already processed",
	})

	FulfillmentFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_failures_total",
		Help: "Payment confirmations that captured money without fulfilling the order",
	}, []string{"reason"})

	FulfillmentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fulfillment_latency_seconds",
		Help:    "Latency of the fulfillment transaction",
		Buckets: prometheus.DefBuckets,
	})

	TicketsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_issued_total",
		Help: "Total number of tickets issued",
	})

	CheckInsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkins_total",
		Help: "Scan outcomes at the door",
	}, []string{"result"})

	TransfersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticket_transfers_total",
		Help: "Total number of ticket transfers",
	})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Refund attempts by outcome",
	}, []string{"result"})

	RefundedAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refunded_amount_minor_total",
		Help: "Sum of refunded amounts in minor units",
	})

	ProcessorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_processor_latency_seconds",
		Help:    "Latency of payment processor calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	PayoutsRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payouts_requested_total",
		Help: "Total number of payouts requested",
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notification deliveries by type and outcome",
	}, []string{"type", "result"})

	EventsPublishFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "domain_events_publish_failed_total",
		Help: "Domain events that could not be published",
	}, []string{"type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
