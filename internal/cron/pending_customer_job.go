package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stampbook/stampbook-backend/internal/customers"
	"github.com/stampbook/stampbook-backend/pkg/logger"
)

const pendingCustomerStaleAfter = 90 * 24 * time.Hour

type pendingCustomerCounter interface {
	CountPending(ctx context.Context, cutoff time.Time) (customers.PendingCounts, error)
}

type PendingCustomerJobParams struct {
	Logger     *logger.Logger
	Repository pendingCustomerCounter
	StaleAfter time.Duration
}

// NewPendingCustomerJob only reports. Pending customers are kept after a
// merge because ledger rows still carry their id.
func NewPendingCustomerJob(params PendingCustomerJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, errors.New("customers repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = pendingCustomerStaleAfter
	}
	return &pendingCustomerJob{logg: logg, repo: params.Repository, staleAfter: staleAfter, now: time.Now}, nil
}

type pendingCustomerJob struct {
	logg       *logger.Logger
	repo       pendingCustomerCounter
	staleAfter time.Duration
	now        func() time.Time
}

func (j *pendingCustomerJob) Name() string { return "pending-customer-retention" }

func (j *pendingCustomerJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	counts, err := j.repo.CountPending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pending customer report: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"stale_cutoff":   cutoff,
		"stale_unmerged": counts.StaleUnmerged,
		"merged":         counts.Merged,
	})
	if counts.StaleUnmerged > 0 {
		j.logg.Warn(logCtx, "cron.pending_customers.stale")
	} else {
		j.logg.Info(logCtx, "cron.pending_customers.done")
	}
	return 0, nil
}
