// Package metrics exposes playout worker metrics for Prometheus.
//
// Metrics owns a private registry so tests and multiple workers in one
// process never collide on the default one.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nebula_playout"

// ChannelStats is a point-in-time view of a channel's device counters.
type ChannelStats struct {
	Connected        bool
	LastTelemetry    time.Time
	Queries          uint64
	Errors           uint64
	Reconnects       uint64
	TelemetryPackets uint64
	TelemetryDropped uint64
}

// Metrics holds the worker's Prometheus collectors.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry
	now      func() time.Time

	queries      *prometheus.CounterVec
	queryLatency *prometheus.HistogramVec
	advances     *prometheus.CounterVec
	cueFailures  *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers the collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		now:      time.Now,
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "amcp_queries_total",
			Help:      "Device commands sent, by channel and result.",
		}, []string{"id_channel", "result"}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "amcp_query_duration_seconds",
			Help:      "Device command round trip time.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		}, []string{"id_channel", "result"}),
		advances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advances_total",
			Help:      "Confirmed on-air advances.",
		}, []string{"id_channel"}),
		cueFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cue_failures_total",
			Help:      "Cue commands the device rejected or never received.",
		}, []string{"id_channel"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Control API requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Control API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.queries,
		m.queryLatency,
		m.advances,
		m.cueFailures,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func channelLabel(channelID int) string {
	return strconv.Itoa(channelID)
}

// QueryDone records one device command.
func (m *Metrics) QueryDone(channelID int, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ch := channelLabel(channelID)
	m.queries.WithLabelValues(ch, result).Inc()
	m.queryLatency.WithLabelValues(ch, result).Observe(d.Seconds())
}

// Advanced records a confirmed advance.
func (m *Metrics) Advanced(channelID int) {
	m.advances.WithLabelValues(channelLabel(channelID)).Inc()
}

// CueFailed records a failed cue command.
func (m *Metrics) CueFailed(channelID int) {
	m.cueFailures.WithLabelValues(channelLabel(channelID)).Inc()
}

// ObserveRequest records one control API request.
func (m *Metrics) ObserveRequest(method, route string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// WatchChannel registers collectors that read a channel's device counters
// at scrape time.
//
// Returns:
//   - error: if the channel is already watched
func (m *Metrics) WatchChannel(channelID int, stats func() ChannelStats) error {
	labels := prometheus.Labels{"id_channel": channelLabel(channelID)}

	counter := func(name, help string, value func(ChannelStats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(value(stats())) })
	}

	cs := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "device_connected",
			Help:        "1 while the device control connection is up.",
			ConstLabels: labels,
		}, func() float64 {
			if stats().Connected {
				return 1
			}
			return 0
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "telemetry_age_seconds",
			Help:        "Time since the last telemetry packet, -1 before the first.",
			ConstLabels: labels,
		}, func() float64 {
			last := stats().LastTelemetry
			if last.IsZero() {
				return -1
			}
			return m.now().Sub(last).Seconds()
		}),
		counter("device_queries_total", "Device commands sent by the protocol client.",
			func(s ChannelStats) uint64 { return s.Queries }),
		counter("device_errors_total", "Device commands that failed.",
			func(s ChannelStats) uint64 { return s.Errors }),
		counter("device_reconnects_total", "Device control reconnects.",
			func(s ChannelStats) uint64 { return s.Reconnects }),
		counter("telemetry_packets_total", "Telemetry datagrams decoded.",
			func(s ChannelStats) uint64 { return s.TelemetryPackets }),
		counter("telemetry_dropped_total", "Telemetry datagrams dropped as malformed or foreign.",
			func(s ChannelStats) uint64 { return s.TelemetryDropped }),
	}

	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return fmt.Errorf("watching channel %d: %w", channelID, err)
		}
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
