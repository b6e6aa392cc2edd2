package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	cvMatcher = "cv_matcher"

	// Labels
	outcomeLabel  = "outcome"
	stageLabel    = "stage"
	providerLabel = "provider"
)

const (
	OutcomeMatched = "matched"
	OutcomeFailed  = "failed"
)

/**
* Metrics definition
**/
var pipelineRunsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: cvMatcher,
		Name:      "pipeline_runs_total",
		Help:      "number of per-CV pipeline runs by outcome",
	},
	[]string{outcomeLabel},
)

var stageFailuresTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: cvMatcher,
		Name:      "stage_failures_total",
		Help:      "number of pipeline stage failures",
	},
	[]string{stageLabel},
)

var degradedJudgmentsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: cvMatcher,
		Name:      "degraded_judgments_total",
		Help:      "number of LLM replies that could not be parsed and fell back to the default judgment",
	},
	[]string{providerLabel},
)

var batchDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: cvMatcher,
		Name:      "batch_duration_seconds",
		Help:      "duration of a batch match request",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	},
	[]string{providerLabel},
)

func IncreasePipelineRunsMetric(outcome string) {
	pipelineRunsTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func IncreaseStageFailuresMetric(stage string) {
	stageFailuresTotalMetric.With(prometheus.Labels{stageLabel: stage}).Inc()
}

func IncreaseDegradedJudgmentsMetric(provider string) {
	degradedJudgmentsTotalMetric.With(prometheus.Labels{providerLabel: provider}).Inc()
}

func ObserveBatchDuration(provider string, d time.Duration) {
	batchDurationMetric.With(prometheus.Labels{providerLabel: provider}).Observe(d.Seconds())
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(pipelineRunsTotalMetric)
	prometheus.MustRegister(stageFailuresTotalMetric)
	prometheus.MustRegister(degradedJudgmentsTotalMetric)
	prometheus.MustRegister(batchDurationMetric)
}
