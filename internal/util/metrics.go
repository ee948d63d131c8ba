package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_checkouts_total",
		Help: "Total number of committed checkouts",
	})

	CheckoutReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_checkout_replays_total",
		Help: "Total number of checkouts answered from an earlier idempotent result",
	})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkouts_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_checkout_latency_seconds",
		Help:    "Latency of the checkout unit of work",
		Buckets: prometheus.DefBuckets,
	})

	StockReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_stock_reserve_latency_seconds",
		Help:    "Latency of stock reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	StockReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_stock_reservations_failed_total",
		Help: "Total number of rejected stock reservations",
	}, []string{"reason"})

	StockReleasedUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_stock_released_units_total",
		Help: "Units returned to stock by cancellation or deletion",
	})

	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_status_transitions_total",
		Help: "Accepted transaction status transitions",
	}, []string{"from", "to"})

	ResellerLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_reseller_lookups_total",
		Help: "Reseller resolutions by outcome",
	}, []string{"outcome"})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_notifications_total",
		Help: "Notifications written by the worker",
	}, []string{"event_type"})

	LiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_live_clients",
		Help: "Connected live feed clients",
	})

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
