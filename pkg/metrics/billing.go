package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Deduction outcomes recorded by RecordDeduction.
const (
	DeductionApplied        = "applied"
	DeductionAlreadyApplied = "already_applied"
	DeductionRejected       = "rejected"
)

// BillingMetrics records order, subscription and invoicing activity. A nil
// receiver is a no-op so callers never need to guard.
type BillingMetrics struct {
	statusTransitions *prometheus.CounterVec
	deductions        *prometheus.CounterVec
	invoicesIssued    *prometheus.CounterVec
	issueDuration     *prometheus.HistogramVec
	outboxPublished   *prometheus.CounterVec
}

// NewBillingMetrics registers the billing metrics on the provided registerer.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	statusTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Order status transitions by from/to status.",
	}, []string{"from", "to"})
	deductions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_deductions_total",
		Help: "Subscription deduction attempts by outcome.",
	}, []string{"outcome", "code"})
	invoicesIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoices_issued_total",
		Help: "Invoices issued by type.",
	}, []string{"type"})
	issueDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invoice_issue_duration_seconds",
		Help:    "Duration of invoice issuance including PDF generation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	outboxPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Outbox events published by result.",
	}, []string{"result"})
	reg.MustRegister(statusTransitions, deductions, invoicesIssued, issueDuration, outboxPublished)
	return &BillingMetrics{
		statusTransitions: statusTransitions,
		deductions:        deductions,
		invoicesIssued:    invoicesIssued,
		issueDuration:     issueDuration,
		outboxPublished:   outboxPublished,
	}
}

// RecordStatusTransition counts one applied transition.
func (m *BillingMetrics) RecordStatusTransition(from, to string) {
	if m == nil || m.statusTransitions == nil {
		return
	}
	m.statusTransitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// RecordDeduction counts one deduction attempt. The code label carries the
// rejection code and is empty for the success outcomes.
func (m *BillingMetrics) RecordDeduction(outcome, code string) {
	if m == nil || m.deductions == nil {
		return
	}
	m.deductions.WithLabelValues(normalizeLabel(outcome), code).Inc()
}

// RecordInvoiceIssued counts one first-time issuance.
func (m *BillingMetrics) RecordInvoiceIssued(invoiceType string) {
	if m == nil || m.invoicesIssued == nil {
		return
	}
	m.invoicesIssued.WithLabelValues(normalizeLabel(invoiceType)).Inc()
}

// ObserveIssueDuration records how long an issuance took.
func (m *BillingMetrics) ObserveIssueDuration(invoiceType string, duration time.Duration) {
	if m == nil || m.issueDuration == nil {
		return
	}
	m.issueDuration.WithLabelValues(normalizeLabel(invoiceType)).Observe(duration.Seconds())
}

// RecordOutboxPublish counts one publish attempt result.
func (m *BillingMetrics) RecordOutboxPublish(result string) {
	if m == nil || m.outboxPublished == nil {
		return
	}
	m.outboxPublished.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
