package jobs

import (
	"context"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/logger"
)

// retentionSweep pays the retention bonus for invitations accepted inside the
// configured window whose recipient is still active.
func (jr *JobRunner) retentionSweep(ctx context.Context) (*Report, error) {
	res, err := jr.services.Bonuses.RunRetentionSweep(ctx)
	if err != nil {
		return nil, err
	}
	logSweep(JobRetentionSweep, res)
	return &Report{Sweep: res}, nil
}

// reconcileRewards re-issues acceptance rewards whose inline append failed.
func (jr *JobRunner) reconcileRewards(ctx context.Context) (*Report, error) {
	res, err := jr.services.Bonuses.ReconcileAcceptanceRewards(ctx)
	if err != nil {
		return nil, err
	}
	logSweep(JobReconcileRewards, res)
	return &Report{Sweep: res}, nil
}

func (jr *JobRunner) reconcileVerification(ctx context.Context) (*Report, error) {
	res, err := jr.services.Bonuses.ReconcileVerificationBonuses(ctx)
	if err != nil {
		return nil, err
	}
	logSweep(JobReconcileVerification, res)
	return &Report{Sweep: res}, nil
}

func (jr *JobRunner) reconcileAchievements(ctx context.Context) (*Report, error) {
	res, err := jr.services.Achievements.ReconcileAll(ctx)
	if err != nil {
		return nil, err
	}
	logSweep(JobReconcileAchievements, res)
	return &Report{Sweep: res}, nil
}

func logSweep(job string, res *domain.SweepResult) {
	log := logger.WithJob(job)
	if res.Failed > 0 {
		log.Warn("Sweep finished with failures",
			"candidates", res.Candidates, "awarded", res.Awarded, "skipped", res.Skipped, "failed", res.Failed)
		return
	}
	log.Info("Sweep finished", "candidates", res.Candidates, "awarded", res.Awarded, "skipped", res.Skipped)
}
