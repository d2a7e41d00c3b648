// Package telemetry holds the edge device's Prometheus collectors and
// tracing setup.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decisions counts dispatch outcomes by kind (assign, risky, maintenance, idle).
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgefleet",
		Name:      "dispatch_decisions_total",
		Help:      "Dispatch decisions taken for RUNNABLE machines.",
	}, []string{"decision"})

	Repairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgefleet",
		Name:      "repairs_total",
		Help:      "Repair commands sent, by severity (normal, total_damage, preventive).",
	}, []string{"severity"})

	JobsFinished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "edgefleet",
		Name:      "jobs_finished_total",
		Help:      "Jobs acknowledged as finished.",
	})

	// ExternalErrors counts failed job store, model, transport and upload calls.
	ExternalErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgefleet",
		Name:      "external_errors_total",
		Help:      "Failed calls to external collaborators.",
	}, []string{"op"})

	RejectedSnapshots = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "edgefleet",
		Name:      "rejected_snapshots_total",
		Help:      "Machine snapshots rejected as malformed.",
	})

	Machines = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "edgefleet",
		Name:      "machines",
		Help:      "Registered machines by last reported status.",
	}, []string{"status"})

	OutstandingJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "edgefleet",
		Name:      "outstanding_jobs",
		Help:      "Jobs not yet finished, as of the last tick.",
	})

	Uploads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "edgefleet",
		Name:      "training_uploads_total",
		Help:      "Training data uploads triggered by batch completion.",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "edgefleet",
		Name:      "tick_duration_seconds",
		Help:      "Wall time of one coordinator tick.",
		Buckets:   prometheus.DefBuckets,
	})
)
