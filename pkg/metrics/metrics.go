// Package metrics exposes Prometheus instrumentation for the ByteBlaster
// client's core pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a private prometheus.Registry with the named
// counters/gauges the core pipeline reports against. Constructing more
// than one Registry in a process is safe; each uses its own collector
// registry.
type Registry struct {
	reg *prometheus.Registry

	FramesDecoded      *prometheus.CounterVec
	ChecksumFailures   prometheus.Counter
	ProtocolResyncs    prometheus.Counter
	ReconnectAttempts  prometheus.Counter
	CompletedFiles     prometheus.Counter
	WatchdogTrips      prometheus.Counter
	SubscriberFailures prometheus.Counter
}

// New constructs a Registry and registers every collector.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "byteblaster",
			Name:      "frames_decoded_total",
			Help:      "Frames decoded from the QBT stream, by frame type.",
		}, []string{"type"}),
		ChecksumFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "byteblaster",
			Name:      "checksum_failures_total",
			Help:      "Data blocks emitted with a failed checksum validation.",
		}),
		ProtocolResyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "byteblaster",
			Name:      "protocol_resyncs_total",
			Help:      "Times the decoder reset to RESYNC after a structural error.",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "byteblaster",
			Name:      "reconnect_attempts_total",
			Help:      "Connection attempts made by the supervisor's reconnect loop.",
		}),
		CompletedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "byteblaster",
			Name:      "completed_files_total",
			Help:      "Files successfully reassembled and dispatched.",
		}),
		WatchdogTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "byteblaster",
			Name:      "watchdog_trips_total",
			Help:      "Times the watchdog forced a connection close.",
		}),
		SubscriberFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "byteblaster",
			Name:      "subscriber_failures_total",
			Help:      "Subscriber invocations that returned an error or panicked.",
		}),
	}

	reg.MustRegister(
		m.FramesDecoded,
		m.ChecksumFailures,
		m.ProtocolResyncs,
		m.ReconnectAttempts,
		m.CompletedFiles,
		m.WatchdogTrips,
		m.SubscriberFailures,
	)
	return m
}

// Handler returns an http.Handler serving this registry's metrics in the
// Prometheus text exposition format. The embedding program mounts it, e.g.
// at "/metrics"; metrics.Registry itself never listens on a socket.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
