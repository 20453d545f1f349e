package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hay-kot/perch/internal/broker"
)

// statsCollector exposes broker.Stats to Prometheus. Values are read at
// scrape time, so the broker keeps no Prometheus state of its own.
type statsCollector struct {
	source StatsSource

	messages  *prometheus.Desc
	channels  *prometheus.Desc
	pending   *prometheus.Desc
	claims    *prometheus.Desc
	published *prometheus.Desc
	resolved  *prometheus.Desc
	timedOut  *prometheus.Desc
	cancelled *prometheus.Desc
	delivered *prometheus.Desc
	drained   *prometheus.Desc
}

// StatsSource provides broker statistics.
type StatsSource interface {
	Stats() broker.Stats
}

func newStatsCollector(source StatsSource) *statsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("perch", "", name), help, nil, nil)
	}

	return &statsCollector{
		source:    source,
		messages:  desc("messages", "Messages currently retained."),
		channels:  desc("channels", "Channels holding at least one message."),
		pending:   desc("pending_requests", "Subscription requests waiting for a response."),
		claims:    desc("claims", "Delivery claims currently tracked."),
		published: desc("published_total", "Messages published."),
		resolved:  desc("resolved_total", "Requests resolved, including timeouts."),
		timedOut:  desc("timed_out_total", "Requests resolved empty at the request timeout."),
		cancelled: desc("cancelled_total", "Requests cancelled by the subscriber."),
		delivered: desc("delivered_total", "Messages delivered across all responses."),
		drained:   desc("drained_total", "Requests resolved by broker shutdown."),
	}
}

// Describe implements prometheus.Collector.
func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.messages
	ch <- c.channels
	ch <- c.pending
	ch <- c.claims
	ch <- c.published
	ch <- c.resolved
	ch <- c.timedOut
	ch <- c.cancelled
	ch <- c.delivered
	ch <- c.drained
}

// Collect implements prometheus.Collector.
func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()

	gauge := func(d *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}

	gauge(c.messages, s.Messages)
	gauge(c.channels, s.Channels)
	gauge(c.pending, s.Pending)
	gauge(c.claims, s.Claims)
	counter(c.published, s.Published)
	counter(c.resolved, s.Resolved)
	counter(c.timedOut, s.TimedOut)
	counter(c.cancelled, s.Cancelled)
	counter(c.delivered, s.Delivered)
	counter(c.drained, s.Drained)
}

// newRegistry returns a registry holding the broker collector plus the
// standard Go runtime and process collectors.
func newRegistry(source StatsSource) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		newStatsCollector(source),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
