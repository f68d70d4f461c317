package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/stampbook/stampbook-backend/pkg/logger"
)

type rewardExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

type RewardExpiryJobParams struct {
	Logger  *logger.Logger
	Rewards rewardExpirer
}

// NewRewardExpiryJob flips earned reward grants past their validity window
// to expired. Redemption rejects them on its own as well; the job keeps the
// stored state honest for listings and reports.
func NewRewardExpiryJob(params RewardExpiryJobParams) (Job, error) {
	if params.Rewards == nil {
		return nil, errors.New("rewards service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &rewardExpiryJob{logg: logg, rewards: params.Rewards}, nil
}

type rewardExpiryJob struct {
	logg    *logger.Logger
	rewards rewardExpirer
}

func (j *rewardExpiryJob) Name() string { return "reward-expiry" }

func (j *rewardExpiryJob) Run(ctx context.Context) (int64, error) {
	expired, err := j.rewards.ExpireStale(ctx)
	if err != nil {
		return 0, fmt.Errorf("reward expiry: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "grants_expired", expired), "cron.reward_expiry.done")
	return expired, nil
}
