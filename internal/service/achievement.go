package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/logger"
	"referral-ledger-backend/internal/repository"
)

type achievementService struct {
	invitationRepo  repository.InvitationRepository
	achievementRepo repository.AchievementRepository
	accounts        repository.AccountDirectory
	clock           clockwork.Clock
}

func NewAchievementService(invitationRepo repository.InvitationRepository, achievementRepo repository.AchievementRepository, accounts repository.AccountDirectory, clock clockwork.Clock) AchievementService {
	return &achievementService{
		invitationRepo:  invitationRepo,
		achievementRepo: achievementRepo,
		accounts:        accounts,
		clock:           clock,
	}
}

func (s *achievementService) unlockedSet(ctx context.Context, accountID string) (map[domain.AchievementType]domain.Achievement, error) {
	existing, err := s.achievementRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	set := make(map[domain.AchievementType]domain.Achievement, len(existing))
	for _, a := range existing {
		set[a.Type] = a
	}
	return set, nil
}

func (s *achievementService) Evaluate(ctx context.Context, accountID string) ([]domain.AchievementType, error) {
	stats, err := s.invitationRepo.CountAcceptedBySender(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("count accepted invitations: %w", err)
	}
	unlocked, err := s.unlockedSet(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}

	var newly []domain.AchievementType
	var errs []error
	for _, rule := range domain.AchievementCatalog {
		if _, ok := unlocked[rule.Type]; ok {
			continue
		}
		if stats.Value(rule.Metric) < rule.Threshold {
			continue
		}

		now := s.clock.Now().UTC()
		source := string(rule.Type)
		achievement := &domain.Achievement{
			AccountID:     accountID,
			Type:          rule.Type,
			UnlockedAt:    now,
			PointsAwarded: rule.Points,
		}
		entry := &domain.PointsEntry{
			ID:          uuid.NewString(),
			AccountID:   accountID,
			PointType:   domain.PointTypeAchievementUnlock,
			Points:      rule.Points,
			Description: "Achievement unlocked: " + rule.Title,
			SourceID:    &source,
			CreatedAt:   now,
		}
		ok, err := s.achievementRepo.Unlock(ctx, achievement, entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("unlock %s: %w", rule.Type, err))
			continue
		}
		if ok {
			logger.Info("Achievement unlocked", "account_id", accountID, "achievement", rule.Type, "points", rule.Points)
			newly = append(newly, rule.Type)
		}
	}
	return newly, errors.Join(errs...)
}

func (s *achievementService) ListAchievements(ctx context.Context, accountID string) ([]domain.Achievement, error) {
	return s.achievementRepo.ListByAccount(ctx, accountID)
}

func (s *achievementService) Progress(ctx context.Context, accountID string) ([]domain.AchievementProgress, error) {
	stats, err := s.invitationRepo.CountAcceptedBySender(ctx, accountID)
	if err != nil {
		return nil, err
	}
	unlocked, err := s.unlockedSet(ctx, accountID)
	if err != nil {
		return nil, err
	}

	progress := make([]domain.AchievementProgress, 0, len(domain.AchievementCatalog))
	for _, rule := range domain.AchievementCatalog {
		p := domain.AchievementProgress{AchievementRule: rule, Current: stats.Value(rule.Metric)}
		if a, ok := unlocked[rule.Type]; ok {
			at := a.UnlockedAt
			p.Unlocked = true
			p.UnlockedAt = &at
		}
		progress = append(progress, p)
	}
	return progress, nil
}

// ReconcileAll re-evaluates every trainer that has at least one accepted
// invitation. Unlocks are idempotent so overlapping runs are harmless.
func (s *achievementService) ReconcileAll(ctx context.Context) (*domain.SweepResult, error) {
	senders, err := s.invitationRepo.ListSendersWithAccepted(ctx)
	if err != nil {
		return nil, fmt.Errorf("list senders: %w", err)
	}

	res := &domain.SweepResult{Candidates: len(senders)}
	for _, senderID := range senders {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sender, err := s.accounts.GetByID(ctx, senderID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				res.Skipped++
				continue
			}
			res.Failed++
			logger.Warn("Achievement reconciliation failed", "account_id", senderID, "error", err)
			continue
		}
		if !sender.IsTrainer() {
			res.Skipped++
			continue
		}

		newly, err := s.Evaluate(ctx, senderID)
		res.Awarded += len(newly)
		if err != nil {
			res.Failed++
			logger.Warn("Achievement reconciliation failed", "account_id", senderID, "error", err)
			continue
		}
		if len(newly) == 0 {
			res.Skipped++
		}
	}
	return res, nil
}
