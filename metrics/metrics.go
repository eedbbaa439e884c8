// Package metrics exposes pipeline run instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ledgerline/ledgerline/models"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgerline",
		Name:      "runs_total",
		Help:      "Pipeline runs started, by trigger event kind.",
	}, []string{"event"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledgerline",
		Name:      "stage_duration_seconds",
		Help:      "Stage execution time.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"stage"})

	stageResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgerline",
		Name:      "stage_results_total",
		Help:      "Stage outcomes, by terminal status.",
	}, []string{"stage", "status"})
)

// ObserveRun counts a started run.
func ObserveRun(event models.EventKind) {
	runsTotal.WithLabelValues(string(event)).Inc()
}

// Listener returns an event listener that records stage outcomes, suitable
// for attaching to a pipeline.
func Listener() models.EventListener {
	return models.EventListenerFunc(func(ev models.Event) {
		stage, _ := ev.Data["stage_id"].(string)
		if stage == "" {
			return
		}
		switch ev.Type {
		case models.EventStageCompleted:
			stageResults.WithLabelValues(stage, string(models.StatusSucceeded)).Inc()
			if d, ok := ev.Data["duration"].(interface{ Seconds() float64 }); ok {
				stageDuration.WithLabelValues(stage).Observe(d.Seconds())
			}
		case models.EventStageError:
			stageResults.WithLabelValues(stage, string(models.StatusFailed)).Inc()
		case models.EventStageSkipped:
			stageResults.WithLabelValues(stage, string(models.StatusSkipped)).Inc()
		case models.EventStageBlocked:
			stageResults.WithLabelValues(stage, string(models.StatusBlocked)).Inc()
		}
	})
}
