package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Total number of ledger operations by type and outcome",
	}, []string{"type", "outcome"})

	InsufficientStockTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_insufficient_stock_total",
		Help: "Total number of mutations rejected for insufficient stock",
	}, []string{"source"})

	LedgerConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_conflicts_total",
		Help: "Total number of atomic units aborted by a concurrent writer",
	})

	LedgerOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_latency_seconds",
		Help:    "Latency of ledger operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	InvoicesCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoices_created_total",
		Help: "Total number of invoices created",
	}, []string{"status"})

	InvoicesSettledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoices_settled_total",
		Help: "Total number of invoices settled against stock",
	})

	InvoiceSettlementsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_settlements_failed_total",
		Help: "Total number of failed invoice settlements",
	}, []string{"reason"})

	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "invoice_settlement_latency_seconds",
		Help:    "Latency of invoice settlement",
		Buckets: prometheus.DefBuckets,
	})

	AlertsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_opened_total",
		Help: "Total number of low-stock alerts opened",
	})

	AlertsResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_resolved_total",
		Help: "Total number of low-stock alerts resolved",
	})

	NotificationsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_dropped_total",
		Help: "Total number of post-commit notifications that were not delivered",
	}, []string{"reason"})

	StockCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_commands_total",
		Help: "Total number of inbound stock commands by type and outcome",
	}, []string{"type", "outcome"})

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
