package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stampbook/stampbook-backend/pkg/logger"
)

const defaultQRRetention = 30 * 24 * time.Hour

type qrCodeCleanupRepo interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type QRRetentionJobParams struct {
	Logger     *logger.Logger
	Repository qrCodeCleanupRepo
	Retention  time.Duration
}

// NewQRRetentionJob deletes QR codes whose expiry is older than the retention.
// Ledger rows keep the qr_code_id in their metadata only, so nothing
// references the deleted rows.
func NewQRRetentionJob(params QRRetentionJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, errors.New("qr code repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultQRRetention
	}
	return &qrRetentionJob{logg: logg, repo: params.Repository, retention: retention, now: time.Now}, nil
}

type qrRetentionJob struct {
	logg      *logger.Logger
	repo      qrCodeCleanupRepo
	retention time.Duration
	now       func() time.Time
}

func (j *qrRetentionJob) Name() string { return "qr-code-retention" }

func (j *qrRetentionJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("qr code retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "cron.qr_retention.done")
	return deleted, nil
}
