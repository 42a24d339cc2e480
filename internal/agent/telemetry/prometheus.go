package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes the pipeline counters on the registry behind
// /metrics. It reads a snapshot per scrape, so it never holds the
// telemetry lock across serialization.
type Collector struct {
	tele *Telemetry

	runsStarted    *prometheus.Desc
	runsSucceeded  *prometheus.Desc
	runsFailed     *prometheus.Desc
	runsCancelled  *prometheus.Desc
	searchesRun    *prometheus.Desc
	searchesFailed *prometheus.Desc
	modelCalls     *prometheus.Desc
	modelCallFails *prometheus.Desc
	modelTokens    *prometheus.Desc
	modelCost      *prometheus.Desc
}

func NewCollector(tele *Telemetry) *Collector {
	return &Collector{
		tele:           tele,
		runsStarted:    prometheus.NewDesc("scout_runs_started_total", "Research runs started.", nil, nil),
		runsSucceeded:  prometheus.NewDesc("scout_runs_succeeded_total", "Research runs that produced a report.", nil, nil),
		runsFailed:     prometheus.NewDesc("scout_runs_failed_total", "Research runs that ended in error.", nil, nil),
		runsCancelled:  prometheus.NewDesc("scout_runs_cancelled_total", "Research runs cancelled by the caller.", nil, nil),
		searchesRun:    prometheus.NewDesc("scout_searches_total", "Search tasks executed.", nil, nil),
		searchesFailed: prometheus.NewDesc("scout_searches_failed_total", "Search tasks that fell back to a placeholder.", nil, nil),
		modelCalls:     prometheus.NewDesc("scout_model_calls_total", "LLM calls by pipeline stage.", []string{"stage"}, nil),
		modelCallFails: prometheus.NewDesc("scout_model_call_failures_total", "Failed LLM calls by pipeline stage.", []string{"stage"}, nil),
		modelTokens:    prometheus.NewDesc("scout_model_tokens_total", "Tokens consumed per model.", []string{"model"}, nil),
		modelCost:      prometheus.NewDesc("scout_model_cost_usd_total", "Estimated spend per model in USD.", []string{"model"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runsStarted
	ch <- c.runsSucceeded
	ch <- c.runsFailed
	ch <- c.runsCancelled
	ch <- c.searchesRun
	ch <- c.searchesFailed
	ch <- c.modelCalls
	ch <- c.modelCallFails
	ch <- c.modelTokens
	ch <- c.modelCost
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	metrics, costs := c.tele.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.runsStarted, prometheus.CounterValue, float64(metrics.RunsStarted))
	ch <- prometheus.MustNewConstMetric(c.runsSucceeded, prometheus.CounterValue, float64(metrics.RunsSucceeded))
	ch <- prometheus.MustNewConstMetric(c.runsFailed, prometheus.CounterValue, float64(metrics.RunsFailed))
	ch <- prometheus.MustNewConstMetric(c.runsCancelled, prometheus.CounterValue, float64(metrics.RunsCancelled))
	ch <- prometheus.MustNewConstMetric(c.searchesRun, prometheus.CounterValue, float64(metrics.SearchesRun))
	ch <- prometheus.MustNewConstMetric(c.searchesFailed, prometheus.CounterValue, float64(metrics.SearchesFailed))
	for stage, n := range metrics.ModelCalls {
		ch <- prometheus.MustNewConstMetric(c.modelCalls, prometheus.CounterValue, float64(n), stage)
	}
	for stage, n := range metrics.ModelCallFails {
		ch <- prometheus.MustNewConstMetric(c.modelCallFails, prometheus.CounterValue, float64(n), stage)
	}
	for model, n := range costs.ModelTokens {
		ch <- prometheus.MustNewConstMetric(c.modelTokens, prometheus.CounterValue, float64(n), model)
	}
	for model, cost := range costs.ModelCosts {
		ch <- prometheus.MustNewConstMetric(c.modelCost, prometheus.CounterValue, cost, model)
	}
}
