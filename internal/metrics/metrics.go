// Package metrics exports engine counters to Prometheus.
//
// Each [Recorder] owns its registry, so several servers can run in one
// process. All methods are safe on a nil *Recorder and do nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aether"

// Command outcomes used as the outcome label of commands_total.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Recorder holds the collectors of one server instance.
type Recorder struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	sessions        prometheus.Gauge
	deliveries      prometheus.Counter
	dropped         prometheus.Counter
	decodeErrors    prometheus.Counter
	expiredKeys     prometheus.Counter
}

// New creates a Recorder with its collectors registered, together with the
// Go runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Commands executed, by command and outcome.",
			},
			[]string{"command", "outcome"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Command execution time in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"command"},
		),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Connected client sessions.",
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Broadcast messages queued for a subscriber.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Broadcast messages dropped because a subscriber queue was full.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound frames that could not be decoded.",
		}),
		expiredKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_keys_total",
			Help:      "Expired keys removed by the background sweeper.",
		}),
	}

	r.registry.MustRegister(
		r.commands,
		r.commandDuration,
		r.sessions,
		r.deliveries,
		r.dropped,
		r.decodeErrors,
		r.expiredKeys,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry the collectors are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveCommand records one executed command.
func (r *Recorder) ObserveCommand(command string, err error, d time.Duration) {
	if r == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.commands.WithLabelValues(command, outcome).Inc()
	r.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// ObserveBroadcast records the fan-out of one broadcast.
func (r *Recorder) ObserveBroadcast(recipients, dropped int) {
	if r == nil {
		return
	}
	r.deliveries.Add(float64(recipients))
	r.dropped.Add(float64(dropped))
}

// SessionOpened increments the active session gauge.
func (r *Recorder) SessionOpened() {
	if r == nil {
		return
	}
	r.sessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (r *Recorder) SessionClosed() {
	if r == nil {
		return
	}
	r.sessions.Dec()
}

// DecodeError records a frame that failed to decode.
func (r *Recorder) DecodeError() {
	if r == nil {
		return
	}
	r.decodeErrors.Inc()
}

// ExpiredKeys records keys removed by the sweeper.
func (r *Recorder) ExpiredKeys(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.expiredKeys.Add(float64(n))
}
