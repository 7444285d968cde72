package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for WarrantyOperationsTotal.
const (
	OutcomeSuccess      = "success"
	OutcomeValidation   = "validation_error"
	OutcomeInvalidDate  = "invalid_date"
	OutcomeNotFound     = "not_found"
	OutcomeRemoteFailed = "remote_error"
)

var (
	WarrantyOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warranty_operations_total",
		Help: "Warranty operations by operation and outcome.",
	},
		[]string{"operation", "outcome"},
	)

	ShopifyRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warranty_shopify_request_duration_seconds",
		Help:    "Latency of Shopify Admin API calls.",
		Buckets: prometheus.DefBuckets,
	},
		[]string{"operation", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warranty_http_requests_total",
		Help: "HTTP requests served, by route and status code.",
	},
		[]string{"method", "route", "status"},
	)

	SideEffectErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warranty_side_effect_errors_total",
		Help: "Failed best-effort side effects (audit, events) after a successful write.",
	},
		[]string{"kind"},
	)

	WarrantyListSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "warranty_list_size",
		Help:    "Number of records in a customer's warranty list after a write.",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})
)
