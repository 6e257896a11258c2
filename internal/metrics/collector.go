/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package metrics exposes the protocol-level counters and gauges that
// matter for running velctl unattended against a device: checksum
// errors at the framing layer, retransmits and timeouts at the
// exchange layer, completed block transfers, and in-flight exchanges.
// It is built the same
// way pkg/exporter's TCPInfoCollector is: a prometheus.Collector that
// owns its own prometheus.Desc values and answers Collect on demand,
// rather than registering individual metrics with the default
// registry at package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector tracks counters and gauges for one velctl session. All
// methods are safe to call concurrently; Prometheus pulls the current
// values on Collect.
type Collector struct {
	checksumErrors   prometheus.Counter
	framesDecoded    prometheus.Counter
	exchangesSent    prometheus.Counter
	retransmits      prometheus.Counter
	timeouts         prometheus.Counter
	resets           prometheus.Counter
	blockTransfers   prometheus.Counter
	pendingExchanges prometheus.Gauge
}

// New builds a Collector with the given constant labels (e.g. the
// target device address or serial path), mirroring the constLabels
// parameter on exporter.NewTCPInfoCollector.
func New(constLabels prometheus.Labels) *Collector {
	mk := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "velctl",
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	return &Collector{
		checksumErrors: mk("mup1_checksum_errors_total", "MUP1 frames discarded for a bad checksum."),
		framesDecoded:  mk("mup1_frames_decoded_total", "MUP1 frames successfully decoded."),
		exchangesSent:  mk("coap_exchanges_total", "CoAP request/response exchanges initiated."),
		retransmits:    mk("coap_retransmits_total", "CON message retransmissions sent."),
		timeouts:       mk("coap_timeouts_total", "Exchanges that exhausted their retry budget."),
		resets:         mk("coap_resets_total", "RST messages received from the peer."),
		blockTransfers: mk("coap_block_transfers_total", "Block1/Block2 sub-exchanges completed."),
		pendingExchanges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "velctl",
			Name:        "coap_pending_exchanges",
			Help:        "Exchanges currently awaiting a response or retransmission.",
			ConstLabels: constLabels,
		}),
	}
}

func (c *Collector) ChecksumError()   { c.checksumErrors.Inc() }
func (c *Collector) FrameDecoded()    { c.framesDecoded.Inc() }
func (c *Collector) ExchangeStarted() { c.exchangesSent.Inc(); c.pendingExchanges.Inc() }
func (c *Collector) ExchangeDone()    { c.pendingExchanges.Dec() }
func (c *Collector) Retransmit()      { c.retransmits.Inc() }
func (c *Collector) Timeout()         { c.timeouts.Inc() }
func (c *Collector) Reset()           { c.resets.Inc() }
func (c *Collector) BlockTransfer()   { c.blockTransfers.Inc() }

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, descs)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	for _, m := range []prometheus.Metric{
		c.checksumErrors,
		c.framesDecoded,
		c.exchangesSent,
		c.retransmits,
		c.timeouts,
		c.resets,
		c.blockTransfers,
		c.pendingExchanges,
	} {
		metrics <- m
	}
}
