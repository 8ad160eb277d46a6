package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reghook_deliveries_total",
		Help: "Delivery attempts by result and event type",
	}, []string{"result", "event"})

	deliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reghook_delivery_duration_seconds",
		Help:    "Time spent on a single delivery attempt",
		Buckets: prometheus.DefBuckets,
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reghook_queue_depth",
		Help: "Deliveries waiting in the dispatch queue",
	})

	queueDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reghook_queue_dropped_total",
		Help: "Deliveries dropped because the queue was full",
	})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reghook_delivery_retries_total",
		Help: "Retry attempts scheduled after failed deliveries",
	})

	autoDisabledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reghook_webhooks_auto_disabled_total",
		Help: "Webhooks disabled after consecutive delivery failures",
	})

	cacheWebhooks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reghook_cache_webhooks",
		Help: "Webhooks held in the cache snapshot",
	})

	cacheRefreshErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reghook_cache_refresh_errors_total",
		Help: "Cache refreshes that failed and kept the previous snapshot",
	})
)

func observeResult(result DispatchResult) {
	outcome := "failure"
	if result.Success {
		outcome = "success"
	}
	deliveriesTotal.WithLabelValues(outcome, string(result.EventType)).Inc()
	deliveryDuration.Observe(float64(result.ResponseTimeMS) / 1000.0)
}
