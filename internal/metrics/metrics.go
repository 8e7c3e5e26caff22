package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "localmart_orders_placed_total",
		Help: "Total number of orders materialized from carts.",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "localmart_order_transitions_total",
		Help: "Total number of applied order status transitions.",
	},
		[]string{"action"},
	)

	OrderRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "localmart_order_rejections_total",
		Help: "Total number of rejected order operations by error kind.",
	},
		[]string{"operation", "kind"},
	)

	EventPublishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "localmart_event_publish_failures_total",
		Help: "Events committed to the store that could not be published to Kafka.",
	})

	ProjectionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "localmart_projection_errors_total",
		Help: "Events the projector failed to apply.",
	},
		[]string{"event_type"},
	)

	TrackingSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "localmart_tracking_sessions_active",
		Help: "Currently running delivery tracking sessions.",
	})

	TrackingSessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "localmart_tracking_sessions_started_total",
		Help: "Total number of delivery tracking sessions opened.",
	})

	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "localmart_feed_subscribers",
		Help: "Current number of order feed subscribers.",
	})

	FeedDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "localmart_feed_dropped_total",
		Help: "Order updates dropped because a subscriber was not keeping up.",
	})

	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "localmart_order_cache_requests_total",
		Help: "Order cache lookups by result.",
	},
		[]string{"result"},
	)
)
