package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlpilot_pipeline_runs_total",
			Help: "Total number of pipeline invocations by terminal outcome.",
		},
		[]string{"outcome"},
	)
	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlpilot_pipeline_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlpilot_llm_requests_total",
			Help: "Total number of chat completion calls by purpose and result.",
		},
		[]string{"purpose", "result"},
	)
	fallbackResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlpilot_fallback_responses_total",
			Help: "Total number of degraded responses served without a configured model.",
		},
		[]string{"purpose"},
	)
	queryRowsReturnedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlpilot_query_rows_returned_total",
			Help: "Total number of rows materialized by row-returning statements.",
		},
	)
	queryRowsAffectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlpilot_query_rows_affected_total",
			Help: "Total number of rows changed by mutation statements.",
		},
	)
	historyArchivedEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlpilot_history_archived_entries_total",
			Help: "Total number of history entries written to the archive by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRunsTotal,
		pipelineStageDurationSeconds,
		llmRequestsTotal,
		fallbackResponsesTotal,
		queryRowsReturnedTotal,
		queryRowsAffectedTotal,
		historyArchivedEntriesTotal,
	)
}

func ObservePipelineRun(outcome string) {
	pipelineRunsTotal.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func ObserveLLMRequest(purpose string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	llmRequestsTotal.WithLabelValues(purpose, result).Inc()
}

func IncrementFallback(purpose string) {
	fallbackResponsesTotal.WithLabelValues(purpose).Inc()
}

func ObserveQueryRows(returned int, affected int64) {
	if returned > 0 {
		queryRowsReturnedTotal.Add(float64(returned))
	}
	if affected > 0 {
		queryRowsAffectedTotal.Add(float64(affected))
	}
}

func ObserveHistoryArchive(entries int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	historyArchivedEntriesTotal.WithLabelValues(result).Add(float64(entries))
}
