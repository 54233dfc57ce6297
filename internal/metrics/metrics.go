package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modnet",
			Subsystem: "stack",
			Name:      "service_starts_total",
			Help:      "Number of successful service starts.",
		}, []string{"service"},
	)
	serviceStartFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modnet",
			Subsystem: "stack",
			Name:      "service_start_failures_total",
			Help:      "Number of failed service starts by failure reason.",
		}, []string{"service", "reason"},
	)
	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modnet",
			Subsystem: "stack",
			Name:      "service_stops_total",
			Help:      "Number of service stops, split by graceful vs forced.",
		}, []string{"service", "mode"},
	)
	staleLocksRecovered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modnet",
			Subsystem: "stack",
			Name:      "stale_locks_recovered_total",
			Help:      "Number of stale singleton lock markers removed.",
		}, []string{"service"},
	)
	lockEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modnet",
			Subsystem: "stack",
			Name:      "lock_holder_evictions_total",
			Help:      "Number of live lock holders terminated to free the resource.",
		}, []string{"service", "mode"},
	)
	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modnet",
			Subsystem: "stack",
			Name:      "probe_duration_seconds",
			Help:      "Wall time spent polling a readiness check.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "target", "healthy"},
	)
	serviceState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "modnet",
			Subsystem: "stack",
			Name:      "service_state",
			Help:      "Current state of services (1 = active state, 0 = inactive).",
		}, []string{"service", "state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		serviceStarts, serviceStartFailures, serviceStops,
		staleLocksRecovered, lockEvictions, probeDuration, serviceState,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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

// Handler serves Prometheus metrics for the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

func IncServiceStart(service string) { serviceStarts.WithLabelValues(service).Inc() }

func IncServiceStartFailure(service, reason string) {
	serviceStartFailures.WithLabelValues(service, reason).Inc()
}

func IncServiceStop(service string, forced bool) {
	serviceStops.WithLabelValues(service, stopMode(forced)).Inc()
}

func IncStaleLockRecovered(service string) { staleLocksRecovered.WithLabelValues(service).Inc() }

func IncLockEviction(service string, forced bool) {
	lockEvictions.WithLabelValues(service, stopMode(forced)).Inc()
}

func ObserveProbe(kind, target string, d time.Duration, healthy bool) {
	h := "false"
	if healthy {
		h = "true"
	}
	probeDuration.WithLabelValues(kind, target, h).Observe(d.Seconds())
}

// SetServiceState records the active state for a service, clearing the
// other known states so at most one gauge is 1 at a time.
func SetServiceState(service, state string) {
	for _, s := range []string{"stopped", "starting", "running", "stopping", "failed"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		serviceState.WithLabelValues(service, s).Set(v)
	}
}

func stopMode(forced bool) string {
	if forced {
		return "forced"
	}
	return "graceful"
}
