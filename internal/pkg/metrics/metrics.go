package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vda5050_bridge"

// Frame kinds used as the "kind" label of FramesReceived.
const (
	FrameStatus    = "status"
	FrameResponse  = "response"
	FrameHeartbeat = "heartbeat"
	FrameUnknown   = "unknown"
)

// Metrics holds the bridge collectors and the private registry they are
// registered on.
type Metrics struct {
	registry *prometheus.Registry

	// FramesReceived counts inbound vendor frames by port and kind.
	FramesReceived *prometheus.CounterVec

	// UnknownCodes counts dropped frames whose message type is not recognized.
	UnknownCodes *prometheus.CounterVec

	// Commands counts dispatch outcomes: sent, completed, failed, timed_out, dropped.
	Commands *prometheus.CounterVec

	// Rejections counts downlink actions that never reached a queue, by error kind.
	Rejections *prometheus.CounterVec

	QueueDepth *prometheus.GaugeVec
	QueueDrops *prometheus.CounterVec

	// ConnectionTransitions counts health state changes.
	ConnectionTransitions *prometheus.CounterVec

	// ConnectionState is 1 for the current state of each vehicle and 0 otherwise.
	ConnectionState *prometheus.GaugeVec

	DocumentsPublished *prometheus.CounterVec

	// CommandLatency observes the time from command creation to its final outcome.
	CommandLatency *prometheus.HistogramVec
}

// New creates and registers all bridge collectors, plus the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tcp_frames_received_total",
				Help:      "Total number of vendor frames received, by port and kind.",
			},
			[]string{"port", "kind"},
		),
		UnknownCodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tcp_unknown_codes_total",
				Help:      "Total number of frames dropped because of an unknown message type.",
			},
			[]string{"port", "message_type"},
		),
		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of outbound commands by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejections_total",
				Help:      "Total number of downlink units rejected before dispatch, by error kind.",
			},
			[]string{"kind"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Number of commands waiting in a vehicle queue.",
			},
			[]string{"vehicle"},
		),
		QueueDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_drops_total",
				Help:      "Total number of commands dropped because a vehicle queue was full.",
			},
			[]string{"vehicle"},
		),
		ConnectionTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connection_transitions_total",
				Help:      "Total number of connection state transitions.",
			},
			[]string{"vehicle", "from", "to"},
		),
		ConnectionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connection_state",
				Help:      "Current connection state of a vehicle (1 for the active state).",
			},
			[]string{"vehicle", "state"},
		),
		DocumentsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_published_total",
				Help:      "Total number of VDA5050 documents published, by subtopic and result.",
			},
			[]string{"subtopic", "result"},
		),
		CommandLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_latency_seconds",
				Help:      "Latency from command creation to its final outcome.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FramesReceived,
		m.UnknownCodes,
		m.Commands,
		m.Rejections,
		m.QueueDepth,
		m.QueueDrops,
		m.ConnectionTransitions,
		m.ConnectionState,
		m.DocumentsPublished,
		m.CommandLatency,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveFrame counts one inbound frame.
func (m *Metrics) ObserveFrame(port int, kind string) {
	m.FramesReceived.WithLabelValues(strconv.Itoa(port), kind).Inc()
}

// ObserveUnknown counts one dropped frame with an unrecognized code.
func (m *Metrics) ObserveUnknown(port int, messageType uint16) {
	m.ObserveFrame(port, FrameUnknown)
	m.UnknownCodes.WithLabelValues(strconv.Itoa(port), strconv.Itoa(int(messageType))).Inc()
}

// ObserveCommand records a command outcome and, when latency is positive, its latency.
func (m *Metrics) ObserveCommand(action, outcome string, latency time.Duration) {
	m.Commands.WithLabelValues(action, outcome).Inc()
	if latency > 0 {
		m.CommandLatency.WithLabelValues(action).Observe(latency.Seconds())
	}
}

// ObserveTransition counts a transition and flips the state gauge.
func (m *Metrics) ObserveTransition(vehicle, from, to string) {
	m.ConnectionTransitions.WithLabelValues(vehicle, from, to).Inc()
	if from != "" {
		m.ConnectionState.WithLabelValues(vehicle, from).Set(0)
	}
	m.ConnectionState.WithLabelValues(vehicle, to).Set(1)
}

// ObservePublish counts one publish attempt.
func (m *Metrics) ObservePublish(subtopic string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.DocumentsPublished.WithLabelValues(subtopic, result).Inc()
}
