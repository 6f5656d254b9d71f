package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 10)
	c.Collect(ch)
	close(ch)
	var total float64
	for m := range ch {
		var d dto.Metric
		require.NoError(t, m.Write(&d))
		if d.Counter != nil {
			total += d.Counter.GetValue()
		}
	}
	return total
}

func TestRecordHTTPRequestIncrementsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordHTTPRequest("GET", "/system/status", "200", 10*time.Millisecond)

	require.Equal(t, float64(1), counterValue(t, m.RequestsTotal))
}

func TestRecordTokenUsageAccumulatesPerProvider(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordTokenUsage("anthropic", 1000, 500, 0.02)
	m.RecordTokenUsage("anthropic", 1000, 500, 0.02)

	require.Equal(t, float64(3000), counterValue(t, m.GovernorTokensTotal))
	require.InDelta(t, 0.04, counterValue(t, m.GovernorCostUSDTotal), 0.0001)
}

func TestRecordQuotaExceededTracksReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordQuotaExceeded("Session token limit exceeded")

	require.Equal(t, float64(1), counterValue(t, m.GovernorQuotaExceeded))
}

func TestRecordWebhookDeliveryTracksOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordWebhookDelivery("wh1", "delivered", 50*time.Millisecond)
	m.RecordWebhookDelivery("wh1", "dlq", 50*time.Millisecond)

	require.Equal(t, float64(2), counterValue(t, m.WebhookDeliveriesTotal))
}
