package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorderWith(reg)

	rec.IncCounter(SettlementDelivered, map[string]string{"token": "WEGLD-bd4d79"})
	rec.IncCounter(SettlementDelivered, map[string]string{"token": "WEGLD-bd4d79"})
	rec.IncCounter(SettlementRefunded, map[string]string{"token": "WEGLD-bd4d79"})

	delivered := testutil.ToFloat64(rec.counters.WithLabelValues(SettlementDelivered, "WEGLD-bd4d79"))
	assert.Equal(t, 2.0, delivered)

	refunded := testutil.ToFloat64(rec.counters.WithLabelValues(SettlementRefunded, "WEGLD-bd4d79"))
	assert.Equal(t, 1.0, refunded)
}

func TestPrometheusRecorder_Latency(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorderWith(reg)

	rec.ObserveLatency(LatencyRoundTrip, 150*time.Millisecond, map[string]string{"token": "USDC-c76f1f"})

	n, err := testutil.GatherAndCount(reg, "tokensale_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOrNoop(t *testing.T) {
	assert.IsType(t, NoopRecorder{}, OrNoop(nil))
}
