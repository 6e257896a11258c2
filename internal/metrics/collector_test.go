/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"gotest.tools/v3/assert"
)

func TestCollectorCountsExchanges(t *testing.T) {
	c := New(prometheus.Labels{"target": "/dev/ttyACM0"})

	c.ExchangeStarted()
	c.ExchangeStarted()
	c.Retransmit()
	c.Timeout()
	c.ExchangeDone()

	assert.Equal(t, counterValue(t, c.exchangesSent), 2.0)
	assert.Equal(t, counterValue(t, c.retransmits), 1.0)
	assert.Equal(t, counterValue(t, c.timeouts), 1.0)
	assert.Equal(t, gaugeValue(t, c.pendingExchanges), 1.0)
}

func TestCollectorCollectEmitsEveryMetric(t *testing.T) {
	c := New(nil)
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)

	n := 0
	for range ch {
		n++
	}
	assert.Equal(t, n, 8)
}

func counterValue(t *testing.T, m prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	assert.NilError(t, m.Write(&pb))
	return pb.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, m prometheus.Gauge) float64 {
	t.Helper()
	var pb dto.Metric
	assert.NilError(t, m.Write(&pb))
	return pb.GetGauge().GetValue()
}
