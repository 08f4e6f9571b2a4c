package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	eventsTracked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackwire",
			Subsystem: "engine",
			Name:      "events_tracked_total",
			Help:      "Number of records captured via the track surface.",
		}, []string{"event"},
	)
	flushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackwire",
			Subsystem: "engine",
			Name:      "flushes_total",
			Help:      "Number of flush cycles started, by trigger.",
		}, []string{"trigger"},
	)
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackwire",
			Subsystem: "engine",
			Name:      "deliveries_total",
			Help:      "Number of records accepted by a collector endpoint.",
		}, []string{"endpoint"},
	)
	deliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackwire",
			Subsystem: "engine",
			Name:      "delivery_failures_total",
			Help:      "Number of failed endpoint attempts.",
		}, []string{"endpoint"},
	)
	retries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trackwire",
			Subsystem: "engine",
			Name:      "retry_ticks_total",
			Help:      "Number of backoff retry ticks executed.",
		},
	)
	requeued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trackwire",
			Subsystem: "engine",
			Name:      "requeued_total",
			Help:      "Number of records pushed back to the queue tail after failure.",
		},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trackwire",
			Subsystem: "engine",
			Name:      "queue_depth",
			Help:      "Current number of pending records in the queue.",
		},
	)
	persistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trackwire",
			Subsystem: "engine",
			Name:      "persist_failures_total",
			Help:      "Number of swallowed state persistence failures.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{eventsTracked, flushes, deliveries, deliveryFailures, retries, requeued, queueDepth, persistFailures}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller wires it into a server.
func Handler() http.Handler { return promhttp.Handler() }

func IncTracked(eventName string)         { eventsTracked.WithLabelValues(eventName).Inc() }
func IncFlush(trigger string)             { flushes.WithLabelValues(trigger).Inc() }
func AddDelivered(endpoint string, n int) { deliveries.WithLabelValues(endpoint).Add(float64(n)) }
func IncDeliveryFailure(endpoint string)  { deliveryFailures.WithLabelValues(endpoint).Inc() }
func IncRetryTick()                       { retries.Inc() }
func AddRequeued(n int)                   { requeued.Add(float64(n)) }
func SetQueueDepth(n int)                 { queueDepth.Set(float64(n)) }
func IncPersistFailure()                  { persistFailures.Inc() }
