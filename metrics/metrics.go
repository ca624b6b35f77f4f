package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	ordersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "orders_total",
		Help:      "Order lifecycle events",
	}, []string{"event"}) // created|paid|shipped|delivered|cancelled

	revenueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "order_revenue_total",
		Help:      "Sum of order totals at creation, in minor currency units",
	})

	cartMerges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "cart_merges_total",
		Help:      "Anonymous carts merged into user carts",
	})

	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "import_rows_total",
		Help:      "CSV product import rows by outcome",
	}, []string{"outcome"}) // created|updated|skipped

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "events_dropped_total",
		Help:      "Order events dropped because the publish buffer was full",
	})

	loginThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "login_throttled_total",
		Help:      "Login attempts rejected by the rate limiter",
	})

	productCacheRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "product_cache_rebuilds_total",
		Help:      "Product list cache rebuilds from the database",
	})
)

func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func RecordOrder(event string) {
	ordersTotal.WithLabelValues(event).Inc()
}

func RecordRevenue(total uint) {
	revenueTotal.Add(float64(total))
}

func RecordCartMerge() {
	cartMerges.Inc()
}

func RecordImportRows(outcome string, n int) {
	if n > 0 {
		importRows.WithLabelValues(outcome).Add(float64(n))
	}
}

func RecordEventDropped() {
	eventsDropped.Inc()
}

func RecordLoginThrottled() {
	loginThrottled.Inc()
}

func RecordProductCacheRebuild() {
	productCacheRebuilds.Inc()
}
