package loop

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// trialsTotal counts trials whose note was persisted
	trialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brewtune_trials_completed_total",
		Help: "Trials issued, sampled and annotated by the loop",
	})

	// gatePollsTotal counts generation gate checks by result
	gatePollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brewtune_gate_polls_total",
		Help: "Generation gate checks by result",
	}, []string{"result"})

	// errorsTotal counts loop failures by stage
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brewtune_loop_errors_total",
		Help: "Loop failures by stage",
	}, []string{"stage"})

	// trialDuration tracks time from issue to persisted note
	trialDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "brewtune_trial_duration_seconds",
		Help:    "Time from issuing a trial to persisting its note",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	})
)
