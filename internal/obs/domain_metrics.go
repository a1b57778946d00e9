package obs

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// InvoicesGeneratedTotal counts invoice computations by outcome.
	InvoicesGeneratedTotal *prometheus.CounterVec
	// ReconciliationCorrectionsTotal counts invoices whose total had to be
	// corrected to match the platform total.
	ReconciliationCorrectionsTotal prometheus.Counter
	// OrderSyncTotal counts end-to-end order sync outcomes.
	OrderSyncTotal *prometheus.CounterVec
	// OrderSyncDuration records full sync latency in milliseconds.
	OrderSyncDuration prometheus.Histogram
	// UpstreamRequestTotal counts requests to external APIs by service and outcome.
	UpstreamRequestTotal *prometheus.CounterVec
	// WebhookReceivedTotal counts inbound platform webhooks by outcome.
	WebhookReceivedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		InvoicesGeneratedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_generated_total",
			Help:      "Count of invoice computations by outcome.",
		}, []string{"mode", "result"})
		ReconciliationCorrectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_corrections_total",
			Help:      "Invoices whose discount was adjusted to absorb rounding drift.",
		})
		OrderSyncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_sync_total",
			Help:      "Count of order sync outcomes.",
		}, []string{"result"})
		OrderSyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_sync_duration_ms",
			Help:      "End-to-end order sync latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		})
		UpstreamRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_request_total",
			Help:      "Requests to external APIs by service and outcome.",
		}, []string{"service", "result"})
		WebhookReceivedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_received_total",
			Help:      "Inbound platform webhooks by outcome.",
		}, []string{"topic", "result"})

		mustRegisterCollector(reg, InvoicesGeneratedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				InvoicesGeneratedTotal = v
			}
		})
		mustRegisterCollector(reg, ReconciliationCorrectionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				ReconciliationCorrectionsTotal = v
			}
		})
		mustRegisterCollector(reg, OrderSyncTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrderSyncTotal = v
			}
		})
		mustRegisterCollector(reg, OrderSyncDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				OrderSyncDuration = v
			}
		})
		mustRegisterCollector(reg, UpstreamRequestTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				UpstreamRequestTotal = v
			}
		})
		mustRegisterCollector(reg, WebhookReceivedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				WebhookReceivedTotal = v
			}
		})
	})
}

// RecordInvoiceGenerated increments the invoice counter by discount mode and
// outcome.
func RecordInvoiceGenerated(mode, result string) {
	if InvoicesGeneratedTotal != nil {
		InvoicesGeneratedTotal.WithLabelValues(mode, result).Inc()
	}
}

// RecordReconciliationCorrection counts a corrected invoice total.
func RecordReconciliationCorrection() {
	if ReconciliationCorrectionsTotal != nil {
		ReconciliationCorrectionsTotal.Inc()
	}
}

// RecordOrderSync increments the sync outcome counter.
func RecordOrderSync(result string) {
	if OrderSyncTotal != nil {
		OrderSyncTotal.WithLabelValues(result).Inc()
	}
}

// ObserveOrderSyncDuration records a full sync duration.
func ObserveOrderSyncDuration(d time.Duration) {
	if OrderSyncDuration != nil {
		OrderSyncDuration.Observe(DurationMillis(d))
	}
}

// RecordUpstreamRequest increments the upstream counter when metrics are
// registered. Callers never need to nil-check.
func RecordUpstreamRequest(service, result string) {
	if UpstreamRequestTotal != nil {
		UpstreamRequestTotal.WithLabelValues(service, result).Inc()
	}
}

// RecordWebhookReceived increments the inbound webhook counter.
func RecordWebhookReceived(topic, result string) {
	if WebhookReceivedTotal != nil {
		WebhookReceivedTotal.WithLabelValues(topic, result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
