// Package metrics contains the prometheus collectors exposed by the
// check scheduler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts scheduler ticks, by outcome of the due scan.
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "critic_ticks_total",
		Help: "Number of scheduler ticks executed.",
	}, []string{"result"})

	// ChecksTotal counts processed checks by resulting monitor state.
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "critic_checks_total",
		Help: "Number of monitor checks processed, by resulting state.",
	}, []string{"state"})

	// PreconditionLostTotal counts conditional updates lost to a
	// concurrent scheduler run.
	PreconditionLostTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "critic_precondition_lost_total",
		Help: "Number of monitor updates dropped because another run already advanced the monitor.",
	})

	// AlertsDispatchedTotal counts alert events handed to the dispatcher.
	AlertsDispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "critic_alerts_dispatched_total",
		Help: "Number of alert events dispatched.",
	})

	// CheckLatencySeconds observes probe latency for checks that got a
	// response.
	CheckLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "critic_check_latency_seconds",
		Help:    "Probe latency of responded checks.",
		Buckets: prometheus.DefBuckets,
	})
)
