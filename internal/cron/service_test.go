package cron

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stampbook/stampbook-backend/pkg/metrics"
	"go.uber.org/multierr"
)

type fakeLock struct {
	acquired bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name     string
	affected int64
	err      error
	runs     int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) (int64, error) {
	t.runs++
	return t.affected, t.err
}

func TestServiceRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "reward-expiry", affected: 4}
	broken := &testJob{name: "qr-code-retention", err: errors.New("boom")}
	last := &testJob{name: "notification-cleanup"}
	registry, err := NewRegistry(ok, broken, last)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	reg := prometheus.NewRegistry()
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	ran, err := service.RunOnce(context.Background())
	if !ran {
		t.Fatal("expected cycle to run")
	}
	if err == nil || !strings.Contains(err.Error(), "qr-code-retention") {
		t.Fatalf("expected failure of qr-code-retention, got %v", err)
	}
	if len(multierr.Errors(err)) != 1 {
		t.Fatalf("expected a single failure, got %v", multierr.Errors(err))
	}
	for _, job := range []*testJob{ok, broken, last} {
		if job.runs != 1 {
			t.Fatalf("job %s ran %d times", job.name, job.runs)
		}
	}
	if lock.releases != 1 || lock.acquired {
		t.Fatal("expected lock to be released")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got := counterValue(families, "stampbook_job_rows_affected_total", "reward-expiry"); got != 4 {
		t.Fatalf("expected 4 affected rows, got %v", got)
	}
	if got := counterValue(families, "stampbook_job_failure_total", "qr-code-retention"); got != 1 {
		t.Fatalf("expected one failure, got %v", got)
	}
}

func TestServiceSkipsWhenLocked(t *testing.T) {
	job := &testJob{name: "reward-expiry"}
	registry, _ := NewRegistry(job)
	service, err := NewService(ServiceParams{Registry: registry, Lock: &fakeLock{acquired: true}})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ran, err := service.RunOnce(context.Background())
	if err != nil || ran {
		t.Fatalf("expected skipped cycle, ran=%v err=%v", ran, err)
	}
	if job.runs != 0 {
		t.Fatal("job must not run without the lock")
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error without lock")
	}
}

func counterValue(families []*dto.MetricFamily, name, job string) float64 {
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "job" && label.GetValue() == job {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
