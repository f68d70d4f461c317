package offline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/stampbook/stampbook-backend/pkg/logger"
)

const defaultProbeInterval = 10 * time.Second

type drainer interface {
	Drain(ctx context.Context) (*DrainReport, error)
	Due(ctx context.Context) (bool, error)
}

type MonitorParams struct {
	Probe    func(ctx context.Context) error
	Queue    drainer
	Interval time.Duration
	Logger   *logger.Logger
	// OnDrain receives the report of every drain the monitor triggers.
	OnDrain func(*DrainReport)
}

// Monitor tracks API reachability and drains the queue on every offline to
// online transition. While online it also drains whenever a queued operation
// is due, which covers calls queued after a failed request and replays
// waiting out their backoff. It starts offline so the first successful probe
// flushes anything left over from a previous run.
type Monitor struct {
	probe    func(ctx context.Context) error
	queue    drainer
	interval time.Duration
	logg     *logger.Logger
	onDrain  func(*DrainReport)
	online   atomic.Bool
}

func NewMonitor(params MonitorParams) (*Monitor, error) {
	switch {
	case params.Probe == nil:
		return nil, errors.New("probe required")
	case params.Queue == nil:
		return nil, errors.New("offline queue required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Monitor{
		probe:    params.Probe,
		queue:    params.Queue,
		interval: interval,
		logg:     logg,
		onDrain:  params.OnDrain,
	}, nil
}

// Online reports the result of the latest probe.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// MarkOffline records a transport failure seen outside the probe, so the next
// successful probe counts as a reconnect.
func (m *Monitor) MarkOffline() {
	if m.online.Swap(false) {
		m.logg.Warn(context.Background(), "offline.monitor.marked_offline")
	}
}

// Check probes once and drains when the API just came back or a queued
// operation is due. It reports whether a drain ran.
func (m *Monitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	err := m.probe(probeCtx)
	cancel()

	if err != nil {
		if m.online.Swap(false) {
			m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "offline.monitor.went_offline")
		}
		return false
	}
	if !m.online.Swap(true) {
		m.logg.Info(ctx, "offline.monitor.back_online")
		m.drain(ctx)
		return true
	}

	due, err := m.queue.Due(ctx)
	if err != nil {
		m.logg.Error(ctx, "offline.monitor.due_check_failed", err)
		return false
	}
	if !due {
		return false
	}
	m.drain(ctx)
	return true
}

func (m *Monitor) drain(ctx context.Context) {
	report, err := m.queue.Drain(ctx)
	if err != nil {
		m.logg.Error(ctx, "offline.monitor.drain_failed", err)
		return
	}
	if m.onDrain != nil {
		m.onDrain(report)
	}
}

// Run probes on a fixed interval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
