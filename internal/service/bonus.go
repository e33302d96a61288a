package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"referral-ledger-backend/internal/config"
	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/logger"
	"referral-ledger-backend/internal/repository"
)

type bonusService struct {
	invitationRepo repository.InvitationRepository
	accounts       repository.AccountDirectory
	activity       repository.ActivityLog
	points         PointsService
	clock          clockwork.Clock
	rewards        config.RewardsConfig
}

func NewBonusService(
	invitationRepo repository.InvitationRepository,
	accounts repository.AccountDirectory,
	activity repository.ActivityLog,
	points PointsService,
	clock clockwork.Clock,
	rewards config.RewardsConfig,
) BonusService {
	return &bonusService{
		invitationRepo: invitationRepo,
		accounts:       accounts,
		activity:       activity,
		points:         points,
		clock:          clock,
		rewards:        rewards,
	}
}

// RetentionWindow returns the acceptedAt range the sweep at now covers:
// [now-delay-window, now-delay].
func RetentionWindow(now time.Time, rewards config.RewardsConfig) (from, to time.Time) {
	to = now.AddDate(0, 0, -rewards.RetentionDelayDays)
	from = to.Add(-time.Duration(rewards.RetentionWindowHours) * time.Hour)
	return from, to
}

func (s *bonusService) RunRetentionSweep(ctx context.Context) (*domain.SweepResult, error) {
	now := s.clock.Now().UTC()
	from, to := RetentionWindow(now, s.rewards)

	candidates, err := s.invitationRepo.ListAcceptedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list retention candidates: %w", err)
	}

	res := &domain.SweepResult{Candidates: len(candidates)}
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		inv := &candidates[i]
		awarded, err := s.retentionBonus(ctx, inv, now)
		switch {
		case err != nil:
			res.Failed++
			logger.Warn("Retention bonus failed", "invitation_id", inv.ID, "account_id", inv.SenderID, "error", err)
		case awarded:
			res.Awarded++
		default:
			res.Skipped++
		}
	}

	logger.Info("Retention sweep finished", "from", from, "to", to,
		"candidates", res.Candidates, "awarded", res.Awarded, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func (s *bonusService) retentionBonus(ctx context.Context, inv *domain.Invitation, now time.Time) (bool, error) {
	paid, err := s.points.HasEntry(ctx, inv.SenderID, domain.PointTypeBonusRetention, inv.ID)
	if err != nil || paid {
		return false, err
	}

	sender, err := s.accounts.GetByID(ctx, inv.SenderID)
	if err != nil {
		return false, ignoreNotFound(err)
	}
	if !sender.IsTrainer() || inv.ReceiverID == nil {
		return false, nil
	}

	recipient, err := s.accounts.GetByID(ctx, *inv.ReceiverID)
	if err != nil {
		return false, ignoreNotFound(err)
	}
	if recipient.Status != domain.AccountStatusActive {
		return false, nil
	}

	since := now.AddDate(0, 0, -s.rewards.ActivityLookbackDays)
	active, err := s.activity.HasRecentActivity(ctx, recipient.ID, since)
	if err != nil || !active {
		return false, err
	}

	source := inv.ID
	_, created, err := s.points.Append(ctx, domain.AppendRequest{
		AccountID:   sender.ID,
		PointType:   domain.PointTypeBonusRetention,
		Points:      s.rewards.RetentionBonusPoints,
		Description: fmt.Sprintf("Retention bonus: %s still active %d days after joining", inv.Email, s.rewards.RetentionDelayDays),
		SourceID:    &source,
	})
	return created, err
}

func (s *bonusService) OnTrainerVerified(ctx context.Context, trainerID string) (bool, error) {
	trainer, err := s.accounts.GetByID(ctx, trainerID)
	if err != nil {
		return false, err
	}
	if !trainer.IsTrainer() || !trainer.TrainerVerified {
		return false, fmt.Errorf("account %s is not a verified trainer: %w", trainerID, domain.ErrInvalidState)
	}

	inv, err := s.invitationRepo.FindAcceptedByReceiver(ctx, trainerID, domain.InvitationRoleTrainer)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.verificationBonus(ctx, inv)
}

func (s *bonusService) verificationBonus(ctx context.Context, inv *domain.Invitation) (bool, error) {
	sender, err := s.accounts.GetByID(ctx, inv.SenderID)
	if err != nil {
		return false, ignoreNotFound(err)
	}
	if !sender.IsTrainer() {
		return false, nil
	}
	paid, err := s.points.HasEntry(ctx, sender.ID, domain.PointTypeBonusTrainerVerification, inv.ID)
	if err != nil || paid {
		return false, err
	}

	source := inv.ID
	_, created, err := s.points.Append(ctx, domain.AppendRequest{
		AccountID:   sender.ID,
		PointType:   domain.PointTypeBonusTrainerVerification,
		Points:      s.rewards.VerificationBonusPoints,
		Description: "Invited trainer verified: " + inv.Email,
		SourceID:    &source,
	})
	if created {
		logger.Info("Verification bonus awarded", "invitation_id", inv.ID, "account_id", sender.ID)
	}
	return created, err
}

// ReconcileAcceptanceRewards re-issues acceptance rewards that a failed
// side effect left out, within the reconcile lookback.
func (s *bonusService) ReconcileAcceptanceRewards(ctx context.Context) (*domain.SweepResult, error) {
	now := s.clock.Now().UTC()
	candidates, err := s.invitationRepo.ListAcceptedBetween(ctx, now.AddDate(0, 0, -s.rewards.ReconcileLookbackDays), now)
	if err != nil {
		return nil, fmt.Errorf("list accepted invitations: %w", err)
	}

	res := &domain.SweepResult{Candidates: len(candidates)}
	senders := make(map[string]*domain.Account)
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		inv := &candidates[i]
		sender, ok := senders[inv.SenderID]
		if !ok {
			sender, err = s.accounts.GetByID(ctx, inv.SenderID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				res.Failed++
				logger.Warn("Acceptance reward reconciliation failed", "invitation_id", inv.ID, "error", err)
				continue
			}
			senders[inv.SenderID] = sender
		}
		if sender == nil || !sender.IsTrainer() {
			res.Skipped++
			continue
		}

		_, created, err := s.points.Append(ctx, acceptanceReward(inv, s.rewards))
		switch {
		case err != nil:
			res.Failed++
			logger.Warn("Acceptance reward reconciliation failed", "invitation_id", inv.ID, "error", err)
		case created:
			res.Awarded++
			logger.Info("Missing acceptance reward issued", "invitation_id", inv.ID, "account_id", sender.ID)
		default:
			res.Skipped++
		}
	}
	return res, nil
}

// ReconcileVerificationBonuses scans every accepted trainer invitation, since
// verification can happen long after acceptance.
func (s *bonusService) ReconcileVerificationBonuses(ctx context.Context) (*domain.SweepResult, error) {
	now := s.clock.Now().UTC()
	accepted, err := s.invitationRepo.ListAcceptedBetween(ctx, time.Time{}, now)
	if err != nil {
		return nil, fmt.Errorf("list accepted invitations: %w", err)
	}

	res := &domain.SweepResult{}
	for i := range accepted {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		inv := &accepted[i]
		if inv.Role != domain.InvitationRoleTrainer || inv.ReceiverID == nil {
			continue
		}
		res.Candidates++

		receiver, err := s.accounts.GetByID(ctx, *inv.ReceiverID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				res.Skipped++
				continue
			}
			res.Failed++
			logger.Warn("Verification bonus reconciliation failed", "invitation_id", inv.ID, "error", err)
			continue
		}
		if !receiver.TrainerVerified {
			res.Skipped++
			continue
		}

		awarded, err := s.verificationBonus(ctx, inv)
		switch {
		case err != nil:
			res.Failed++
			logger.Warn("Verification bonus reconciliation failed", "invitation_id", inv.ID, "error", err)
		case awarded:
			res.Awarded++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

// ignoreNotFound turns a missing account into a skip rather than a failure.
func ignoreNotFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}
