package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())
	r.RecordTrade("BTCUSDT", "late")
	r.RecordTrade("BTCUSDT", "late")
	r.RecordCandle("BTCUSDT", 60)
	r.RecordQueueDepth("inference", 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.trades.WithLabelValues("BTCUSDT", "late")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.candles.WithLabelValues("BTCUSDT", "60")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.queueDepth.WithLabelValues("inference")))
}
