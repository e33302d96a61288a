package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/logger"
	"referral-ledger-backend/internal/repository"
)

const maxPageSize = 100

type pointsService struct {
	pointsRepo repository.PointsRepository
	accounts   repository.AccountDirectory
	clock      clockwork.Clock
}

func NewPointsService(pointsRepo repository.PointsRepository, accounts repository.AccountDirectory, clock clockwork.Clock) PointsService {
	return &pointsService{
		pointsRepo: pointsRepo,
		accounts:   accounts,
		clock:      clock,
	}
}

func validateAppend(req domain.AppendRequest) error {
	if req.AccountID == "" {
		return fmt.Errorf("account id is required: %w", domain.ErrValidation)
	}
	if !req.PointType.Valid() {
		return fmt.Errorf("unknown point type %q: %w", req.PointType, domain.ErrValidation)
	}
	if req.Points == 0 {
		return fmt.Errorf("points must be non-zero: %w", domain.ErrValidation)
	}
	if strings.TrimSpace(req.Description) == "" {
		return fmt.Errorf("description is required: %w", domain.ErrValidation)
	}
	if req.PointType.Keyed() && (req.SourceID == nil || *req.SourceID == "") {
		return fmt.Errorf("%s entries need a source id: %w", req.PointType, domain.ErrValidation)
	}
	return nil
}

func (s *pointsService) Append(ctx context.Context, req domain.AppendRequest) (*domain.PointsEntry, bool, error) {
	if err := validateAppend(req); err != nil {
		return nil, false, err
	}
	entry := &domain.PointsEntry{
		ID:          uuid.NewString(),
		AccountID:   req.AccountID,
		PointType:   req.PointType,
		Points:      req.Points,
		Description: strings.TrimSpace(req.Description),
		SourceID:    req.SourceID,
		CreatedAt:   s.clock.Now().UTC(),
	}
	created, err := s.pointsRepo.Append(ctx, entry)
	if err != nil {
		return nil, false, fmt.Errorf("append %s for %s: %w", req.PointType, req.AccountID, err)
	}
	if !created {
		logger.Debug("Ledger entry already recorded", "account_id", req.AccountID, "point_type", req.PointType, "source_id", deref(req.SourceID))
		return nil, false, nil
	}
	logger.Info("Ledger entry appended", "account_id", entry.AccountID, "point_type", entry.PointType, "points", entry.Points)
	return entry, true, nil
}

func (s *pointsService) HasEntry(ctx context.Context, accountID string, pointType domain.PointType, sourceID string) (bool, error) {
	return s.pointsRepo.Exists(ctx, accountID, pointType, sourceID)
}

func (s *pointsService) BalanceOf(ctx context.Context, accountID string) (int64, error) {
	return s.pointsRepo.Balance(ctx, accountID)
}

func (s *pointsService) ListEntries(ctx context.Context, accountID string, page, pageSize int) ([]domain.PointsEntry, int, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.pointsRepo.ListEntries(ctx, accountID, page, pageSize)
}

func (s *pointsService) Summary(ctx context.Context, accountID string) (*domain.PointsSummary, error) {
	return s.pointsRepo.Summary(ctx, accountID)
}

func (s *pointsService) AdminAdjust(ctx context.Context, actorID string, req domain.AppendRequest) (*domain.PointsEntry, error) {
	logger.EnterMethod("pointsService.AdminAdjust", "actorID", actorID, "accountID", req.AccountID, "pointType", req.PointType)

	actor, err := s.accounts.GetByID(ctx, actorID)
	if err != nil {
		logger.ExitMethodWithError("pointsService.AdminAdjust", err)
		return nil, err
	}
	if !actor.IsAdmin() {
		err := fmt.Errorf("manual ledger entries require an admin: %w", domain.ErrForbidden)
		logger.ExitMethodWithError("pointsService.AdminAdjust", err)
		return nil, err
	}
	if !req.PointType.Manual() {
		err := fmt.Errorf("%s cannot be appended manually: %w", req.PointType, domain.ErrValidation)
		logger.ExitMethodWithError("pointsService.AdminAdjust", err)
		return nil, err
	}
	if _, err := s.accounts.GetByID(ctx, req.AccountID); err != nil {
		logger.ExitMethodWithError("pointsService.AdminAdjust", err)
		return nil, err
	}

	entry, _, err := s.Append(ctx, req)
	if err != nil {
		logger.ExitMethodWithError("pointsService.AdminAdjust", err)
		return nil, err
	}
	logger.ExitMethod("pointsService.AdminAdjust", "entryID", entry.ID)
	return entry, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
