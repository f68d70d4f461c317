package offline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stampbook/stampbook-backend/internal/stamps"
	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"github.com/stretchr/testify/require"
)

type countingDrainer struct {
	calls int
	due   bool
}

func (d *countingDrainer) Due(context.Context) (bool, error) {
	return d.due, nil
}

func (d *countingDrainer) Drain(context.Context) (*DrainReport, error) {
	d.calls++
	return &DrainReport{Replayed: d.calls}, nil
}

func TestMonitorDrainsOncePerReconnect(t *testing.T) {
	results := []error{
		errors.New("down"),
		nil,
		nil,
		errors.New("down"),
		errors.New("down"),
		nil,
		nil,
	}
	step := 0
	probe := func(context.Context) error {
		err := results[step]
		step++
		return err
	}
	drainer := &countingDrainer{}
	var reports []*DrainReport
	mon, err := NewMonitor(MonitorParams{
		Probe:   probe,
		Queue:   drainer,
		OnDrain: func(r *DrainReport) { reports = append(reports, r) },
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	var drained []int
	for i := range results {
		if mon.Check(context.Background()) {
			drained = append(drained, i)
		}
	}
	if drainer.calls != 2 || len(reports) != 2 {
		t.Fatalf("expected two drains, got %d (%d reports)", drainer.calls, len(reports))
	}
	if drained[0] != 1 || drained[1] != 5 {
		t.Fatalf("drains ran at unexpected probes %v", drained)
	}
	if !mon.Online() {
		t.Fatal("expected monitor to report online")
	}
}

func TestMonitorStartsOffline(t *testing.T) {
	mon, err := NewMonitor(MonitorParams{
		Probe: func(context.Context) error { return errors.New("down") },
		Queue: &countingDrainer{},
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	if mon.Online() {
		t.Fatal("monitor must start offline")
	}
	mon.Check(context.Background())
	if mon.Online() {
		t.Fatal("failed probe keeps the monitor offline")
	}
}

func TestMonitorRequiresDependencies(t *testing.T) {
	if _, err := NewMonitor(MonitorParams{Queue: &countingDrainer{}}); err == nil {
		t.Fatal("expected error without probe")
	}
	if _, err := NewMonitor(MonitorParams{Probe: func(context.Context) error { return nil }}); err == nil {
		t.Fatal("expected error without queue")
	}
}

func TestMonitorDrainsWhileOnlineWhenDue(t *testing.T) {
	drainer := &countingDrainer{}
	mon, err := NewMonitor(MonitorParams{Probe: func(context.Context) error { return nil }, Queue: drainer})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	if !mon.Check(context.Background()) {
		t.Fatal("first successful probe drains")
	}
	if mon.Check(context.Background()) {
		t.Fatal("nothing due, no drain expected")
	}
	drainer.due = true
	if !mon.Check(context.Background()) || drainer.calls != 2 {
		t.Fatalf("expected a drain once work is due, got %d drains", drainer.calls)
	}
}

func TestMonitorReplaysOperationQueuedWhileOnline(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	repo := newTestRepo(t)

	replays := 0
	failNext := true
	q := newTestQueue(t, repo, clk, config.OfflineConfig{}, func(context.Context, models.OfflineOperation) error {
		if failNext {
			failNext = false
			return &TransportError{Op: "issue stamps", Err: errors.New("i/o timeout")}
		}
		replays++
		return nil
	})
	mon, err := NewMonitor(MonitorParams{Probe: func(context.Context) error { return nil }, Queue: q})
	require.NoError(t, err)
	mon.Check(ctx)
	require.True(t, mon.Online())

	api := stubAPI{issueFn: func(context.Context, stamps.IssueRequest, string) (*IssueResponse, error) {
		return nil, &TransportError{Op: "issue stamps", Err: errors.New("connection refused")}
	}}
	sub, err := NewSubmitter(SubmitterParams{API: api, Queue: q, Connectivity: mon})
	require.NoError(t, err)
	out, err := sub.IssueStamps(ctx, issueRequest("a"))
	require.NoError(t, err)
	require.True(t, out.Provisional)
	require.False(t, mon.Online())

	// The reconnect drain fails in transit and schedules a retry.
	require.True(t, mon.Check(ctx))
	require.Zero(t, replays)
	require.False(t, mon.Check(ctx), "retry is still backing off")

	clk.now = clk.now.Add(10 * time.Minute)
	require.True(t, mon.Check(ctx))
	require.Equal(t, 1, replays)

	pending, err := q.Pending(ctx, enums.OperationIssueStamp)
	require.NoError(t, err)
	require.Empty(t, pending)
	require.False(t, mon.Check(ctx))
}
