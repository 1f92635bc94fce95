package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DuplicateChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duplicate_checks_total",
		Help: "Total number of duplicate checks by outcome",
	}, []string{"outcome"})

	DuplicateGateFailOpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_gate_fail_open_total",
		Help: "Total number of submissions accepted because the fingerprint index was unavailable",
	})

	DuplicateCheckLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duplicate_check_latency_seconds",
		Help:    "Latency of fingerprint comparison against the index",
		Buckets: prometheus.DefBuckets,
	})

	ListingsApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listings_approved_total",
		Help: "Total number of listings approved for sale",
	})

	SalesRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_recorded_total",
		Help: "Total number of ledger records written",
	}, []string{"kind", "tier"})

	SalesDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_duplicate_total",
		Help: "Total number of sale requests answered from an existing record",
	})

	DesignerEarningsMinor = promauto.NewCounter(prometheus.CounterOpts{
		Name: "designer_earnings_minor_units_total",
		Help: "Sum of designer earnings recorded, in minor currency units",
	})

	LedgerArithmeticErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_arithmetic_errors_total",
		Help: "Total number of sales refused because earnings came out negative",
	})

	SaleRecordLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sale_record_latency_seconds",
		Help:    "Latency of the sale recording transaction",
		Buckets: prometheus.DefBuckets,
	})

	StorageRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_retries_total",
		Help: "Total number of retried storage operations",
	}, []string{"op"})

	PayoutBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_batches_total",
		Help: "Total number of payout batches settled",
	})

	PayoutDeferredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_deferred_total",
		Help: "Total number of designer payouts deferred below the minimum",
	})

	PayoutFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_failures_total",
		Help: "Total number of designer settlements that failed",
	})

	PayoutRunLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payout_run_latency_seconds",
		Help:    "Latency of a full payout run",
		Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
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
