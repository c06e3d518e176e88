package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthDecisions counts every authorization decision. The reason label
	// is empty for allows.
	AuthDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipforge_auth_decisions_total",
		Help: "Authorization decisions by result and deny reason.",
	}, []string{"result", "reason"})

	// ProvisionStepDuration observes the wall time of each provisioning
	// step's external call.
	ProvisionStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clipforge_provision_step_duration_seconds",
		Help:    "Duration of tenant provisioning steps.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"step"})

	// ProvisionRuns counts orchestrator runs by terminal status.
	ProvisionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipforge_provision_runs_total",
		Help: "Provisioning runs by outcome.",
	}, []string{"status"})

	// ClipJobsActive tracks clip extractions currently running.
	ClipJobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipforge_clip_jobs_active",
		Help: "Clip extraction jobs currently executing.",
	})
)
