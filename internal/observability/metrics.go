package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "extpipe"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests on the admin endpoint.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	packagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipe",
			Name:      "packages_sent_total",
			Help:      "Packages sent to the host by outcome.",
		},
		[]string{"client", "kind", "success"},
	)
	packageSendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipe",
			Name:      "package_send_duration_seconds",
			Help:      "Full package send handshake duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"client", "kind"},
	)
	packagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipe",
			Name:      "packages_received_total",
			Help:      "Inbound package headers by handshake result.",
		},
		[]string{"client", "result"},
	)
	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipe",
			Name:      "messages_received_total",
			Help:      "Control messages routed to callers.",
		},
		[]string{"client"},
	)
	sessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipe",
			Name:      "sessions_closed_total",
			Help:      "Session teardowns by exit code.",
		},
		[]string{"client", "exit_code"},
	)
	commandsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "dispatched_total",
			Help:      "Command dispatches by result.",
		},
		[]string{"command", "result"},
	)
)

// Inbound package results.
const (
	ReceiveAccepted    = "accepted"
	ReceiveMalformed   = "malformed"
	ReceiveInvalidSize = "invalid_size"
	ReceiveUntrusted   = "untrusted"
	ReceiveIncomplete  = "incomplete"
	ReceiveUndecodable = "undecodable"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			packagesSent,
			packageSendDuration,
			packagesReceived,
			messagesReceived,
			sessionsClosed,
			commandsDispatched,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPackageSent(client, kind string, success bool, duration time.Duration) {
	RegisterMetrics()
	packagesSent.WithLabelValues(client, kind, strconv.FormatBool(success)).Inc()
	packageSendDuration.WithLabelValues(client, kind).Observe(duration.Seconds())
}

func RecordPackageReceived(client, result string) {
	RegisterMetrics()
	packagesReceived.WithLabelValues(client, result).Inc()
}

func RecordMessage(client string) {
	RegisterMetrics()
	messagesReceived.WithLabelValues(client).Inc()
}

func RecordSessionClosed(client string, exitCode int) {
	RegisterMetrics()
	sessionsClosed.WithLabelValues(client, strconv.Itoa(exitCode)).Inc()
}

func RecordDispatch(command, result string) {
	RegisterMetrics()
	commandsDispatched.WithLabelValues(command, result).Inc()
}
