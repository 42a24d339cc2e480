package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scouthq/scout/config"
)

func TestCollectorExportsCounters(t *testing.T) {
	tele := NewTelemetry(config.TelemetryConfig{Enabled: true, CostTracking: true})
	tele.RecordRunStart()
	tele.RecordModelCall(ModelCallEvent{Stage: "plan", Model: "m1", Duration: time.Second, Success: true, Tokens: 100, Cost: 0.5})
	tele.RecordRunEvent(RunEvent{RunID: "r", Duration: time.Minute, Succeeded: true, Searches: 2, Failures: 1})

	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(tele)); err != nil {
		t.Fatalf("register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	got := map[string]float64{}
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			key := fam.GetName()
			for _, l := range m.GetLabel() {
				key += "{" + l.GetName() + "=" + l.GetValue() + "}"
			}
			got[key] = m.GetCounter().GetValue()
		}
	}

	want := map[string]float64{
		"scout_runs_started_total":             1,
		"scout_runs_succeeded_total":           1,
		"scout_searches_total":                 2,
		"scout_searches_failed_total":          1,
		"scout_model_calls_total{stage=plan}":  1,
		"scout_model_tokens_total{model=m1}":   100,
		"scout_model_cost_usd_total{model=m1}": 0.5,
	}
	for name, value := range want {
		if got[name] != value {
			t.Fatalf("%s = %v, want %v (all: %v)", name, got[name], value, got)
		}
	}
}
