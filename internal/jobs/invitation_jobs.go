package jobs

import (
	"context"

	"referral-ledger-backend/internal/logger"
)

// expireInvitations moves PENDING invitations past their expiry to EXPIRED.
func (jr *JobRunner) expireInvitations(ctx context.Context) (*Report, error) {
	n, err := jr.services.Invitations.ExpireStale(ctx)
	if err != nil {
		return nil, err
	}
	logger.WithJob(JobExpireInvitations).Info("Expired stale invitations", "count", n)
	return &Report{Expired: n}, nil
}
