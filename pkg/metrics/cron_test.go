package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func cronRuns(mfs []*dto.MetricFamily, job, outcome string) float64 {
	mf := findMetricFamily(mfs, "sherlocker_cron_job_runs_total")
	if mf == nil {
		return 0
	}
	for _, m := range mf.GetMetric() {
		if matchesLabel(m.GetLabel(), "job", job) && matchesLabel(m.GetLabel(), "outcome", outcome) {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestCronJobMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "recurring-charges"
	finished := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)

	m.Record(job, 250*time.Millisecond, finished, nil)
	m.Record(job, time.Second, finished.Add(time.Hour), errors.New("gateway down"))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got := cronRuns(mfs, job, "success"); got != 1 {
		t.Fatalf("expected 1 success, got %f", got)
	}
	if got := cronRuns(mfs, job, "failure"); got != 1 {
		t.Fatalf("expected 1 failure, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "sherlocker_cron_job_duration_seconds", "job", job); err != nil || got != 1.25 {
		t.Fatalf("expected duration sum 1.25, got %f (%v)", got, err)
	}

	// A failed run must not advance the last-success stamp.
	gauge := findMetricFamily(mfs, "sherlocker_cron_job_last_success_timestamp_seconds")
	if gauge == nil || len(gauge.GetMetric()) != 1 {
		t.Fatalf("expected one last-success series")
	}
	if got := gauge.GetMetric()[0].GetGauge().GetValue(); got != float64(finished.Unix()) {
		t.Fatalf("expected last success %d, got %f", finished.Unix(), got)
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.Record("job", time.Second, time.Now(), nil)

	NewCronJobMetrics(nil).Record("", time.Second, time.Now(), errors.New("x"))
}
