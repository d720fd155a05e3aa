package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}

func labelValue(metric *dto.Metric, name string) string {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}

func TestBillingMetricsRecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBillingMetrics(reg)

	m.RecordStatusTransition("booking_confirmed", "pickup_scheduled")
	m.RecordStatusTransition("booking_confirmed", "pickup_scheduled")
	m.RecordDeduction(DeductionRejected, "EXCEEDED_LIMIT")
	m.RecordInvoiceIssued("final")
	m.ObserveIssueDuration("final", 120*time.Millisecond)
	m.RecordOutboxPublish("published")

	transitions := gatherFamily(t, reg, "order_status_transitions_total")
	require.NotNil(t, transitions)
	require.Len(t, transitions.GetMetric(), 1)
	metric := transitions.GetMetric()[0]
	assert.Equal(t, "booking_confirmed", labelValue(metric, "from"))
	assert.Equal(t, "pickup_scheduled", labelValue(metric, "to"))
	assert.Equal(t, float64(2), metric.GetCounter().GetValue())

	deductions := gatherFamily(t, reg, "subscription_deductions_total")
	require.NotNil(t, deductions)
	require.Len(t, deductions.GetMetric(), 1)
	assert.Equal(t, "EXCEEDED_LIMIT", labelValue(deductions.GetMetric()[0], "code"))

	durations := gatherFamily(t, reg, "invoice_issue_duration_seconds")
	require.NotNil(t, durations)
	require.Len(t, durations.GetMetric(), 1)
	assert.Equal(t, uint64(1), durations.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestBillingMetricsNormalizesEmptyLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBillingMetrics(reg)

	m.RecordOutboxPublish("")

	published := gatherFamily(t, reg, "outbox_events_published_total")
	require.NotNil(t, published)
	require.Len(t, published.GetMetric(), 1)
	assert.Equal(t, "unknown", labelValue(published.GetMetric()[0], "result"))
}

func TestBillingMetricsNilReceiverIsNoOp(t *testing.T) {
	var m *BillingMetrics
	m.RecordStatusTransition("a", "b")
	m.RecordDeduction(DeductionApplied, "")
	m.RecordInvoiceIssued("acknowledgement")
	m.ObserveIssueDuration("acknowledgement", time.Second)
	m.RecordOutboxPublish("retry")

	unregistered := NewBillingMetrics(nil)
	unregistered.RecordStatusTransition("a", "b")
}
