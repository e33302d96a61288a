package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"referral-ledger-backend/internal/config"
	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/logger"
	"referral-ledger-backend/internal/repository"
)

type invitationService struct {
	invitationRepo repository.InvitationRepository
	teamRepo       repository.TeamRepository
	accounts       repository.AccountDirectory
	points         PointsService
	achievements   AchievementService
	email          EmailService
	clock          clockwork.Clock
	settings       config.InvitationsConfig
	rewards        config.RewardsConfig
}

func NewInvitationService(
	invitationRepo repository.InvitationRepository,
	teamRepo repository.TeamRepository,
	accounts repository.AccountDirectory,
	points PointsService,
	achievements AchievementService,
	email EmailService,
	clock clockwork.Clock,
	settings config.InvitationsConfig,
	rewards config.RewardsConfig,
) InvitationService {
	return &invitationService{
		invitationRepo: invitationRepo,
		teamRepo:       teamRepo,
		accounts:       accounts,
		points:         points,
		achievements:   achievements,
		email:          email,
		clock:          clock,
		settings:       settings,
		rewards:        rewards,
	}
}

func newInvitationCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func (s *invitationService) CreateInvitations(ctx context.Context, req domain.InviteRequest) (*domain.BulkInviteResult, error) {
	logger.EnterMethod("invitationService.CreateInvitations", "senderID", req.SenderID, "count", len(req.Emails), "role", req.Role)

	if err := s.validateInviteRequest(req); err != nil {
		logger.ExitMethodWithError("invitationService.CreateInvitations", err)
		return nil, err
	}
	sender, err := s.accounts.GetByID(ctx, req.SenderID)
	if err != nil {
		logger.ExitMethodWithError("invitationService.CreateInvitations", err)
		return nil, err
	}
	if sender.Status != domain.AccountStatusActive {
		err := fmt.Errorf("sender %s is %s: %w", sender.ID, sender.Status, domain.ErrForbidden)
		logger.ExitMethodWithError("invitationService.CreateInvitations", err)
		return nil, err
	}
	if req.TeamID != nil && *req.TeamID != "" {
		if err := s.authorizeTeamInvite(ctx, sender, *req.TeamID); err != nil {
			logger.ExitMethodWithError("invitationService.CreateInvitations", err)
			return nil, err
		}
	} else {
		req.TeamID = nil
	}

	result := &domain.BulkInviteResult{Results: make([]domain.InviteResult, 0, len(req.Emails))}
	for _, raw := range req.Emails {
		res, err := s.inviteOne(ctx, sender, req, raw)
		if err != nil {
			logger.ExitMethodWithError("invitationService.CreateInvitations", err, "email", raw)
			return nil, err
		}
		result.Add(res)
	}

	logger.Info("Invitations processed", "sender_id", sender.ID, "created", result.Created, "skipped", result.Skipped, "invalid", result.Invalid)
	logger.ExitMethod("invitationService.CreateInvitations", "created", result.Created)
	return result, nil
}

func (s *invitationService) validateInviteRequest(req domain.InviteRequest) error {
	if !req.Role.Valid() {
		return fmt.Errorf("invalid role %q: %w", req.Role, domain.ErrValidation)
	}
	if req.TTLDays <= 0 {
		return fmt.Errorf("ttl must be a positive number of days: %w", domain.ErrValidation)
	}
	if len(req.Emails) == 0 {
		return fmt.Errorf("at least one email is required: %w", domain.ErrValidation)
	}
	if s.settings.MaxBatch > 0 && len(req.Emails) > s.settings.MaxBatch {
		return fmt.Errorf("at most %d emails per request: %w", s.settings.MaxBatch, domain.ErrValidation)
	}
	return nil
}

func (s *invitationService) authorizeTeamInvite(ctx context.Context, sender *domain.Account, teamID string) error {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		return err
	}
	if team.OwnerID != sender.ID && !sender.IsAdmin() {
		return fmt.Errorf("only the team owner can invite to team %s: %w", teamID, domain.ErrForbidden)
	}
	return nil
}

// inviteOne returns an error only for store failures; every per-email
// rejection is reported as an outcome.
func (s *invitationService) inviteOne(ctx context.Context, sender *domain.Account, req domain.InviteRequest, raw string) (domain.InviteResult, error) {
	email := domain.NormalizeEmail(raw)
	res := domain.InviteResult{Email: email}
	if !domain.ValidEmail(email) {
		res.Email = raw
		res.Outcome = domain.InviteOutcomeInvalidEmail
		return res, nil
	}

	existing, err := s.accounts.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return res, err
	}
	if req.TeamID == nil && existing != nil {
		res.Outcome = domain.InviteOutcomeSkippedAlreadyRegistered
		return res, nil
	}
	if req.TeamID != nil && existing != nil {
		m, err := s.teamRepo.GetMembership(ctx, *req.TeamID, existing.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return res, err
		}
		if m != nil && m.Status == domain.MembershipStatusActive {
			res.Outcome = domain.InviteOutcomeSkippedAlreadyMember
			return res, nil
		}
	}

	now := s.clock.Now().UTC()
	if _, err := s.invitationRepo.FindPending(ctx, email, req.TeamID, now); err == nil {
		res.Outcome = domain.InviteOutcomeSkippedAlreadyInvited
		return res, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return res, err
	}

	inv := &domain.Invitation{
		ID:        uuid.NewString(),
		Code:      newInvitationCode(),
		Email:     email,
		Role:      req.Role,
		TeamID:    req.TeamID,
		SenderID:  sender.ID,
		Message:   strings.TrimSpace(req.Message),
		Status:    domain.InvitationStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.AddDate(0, 0, req.TTLDays),
	}
	if err := s.invitationRepo.Create(ctx, inv); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			res.Outcome = domain.InviteOutcomeSkippedAlreadyInvited
			return res, nil
		}
		return res, err
	}

	if err := s.email.SendInvitation(ctx, inv, sender); err != nil {
		logger.SideEffectFailed("invitation_email", err, "invitation_id", inv.ID)
	}
	res.Outcome = domain.InviteOutcomeCreated
	res.Invitation = inv
	return res, nil
}

func (s *invitationService) Accept(ctx context.Context, invitationID, accountID string) (*domain.AcceptResult, error) {
	inv, err := s.invitationRepo.GetByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	return s.accept(ctx, inv, accountID)
}

func (s *invitationService) AcceptByCode(ctx context.Context, code, accountID string) (*domain.AcceptResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("invitation code is required: %w", domain.ErrValidation)
	}
	inv, err := s.invitationRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.accept(ctx, inv, accountID)
}

func (s *invitationService) accept(ctx context.Context, inv *domain.Invitation, accountID string) (*domain.AcceptResult, error) {
	logger.EnterMethod("invitationService.accept", "invitationID", inv.ID, "accountID", accountID)

	if accountID == "" {
		return nil, fmt.Errorf("accepting account is required: %w", domain.ErrValidation)
	}
	if accountID == inv.SenderID {
		return nil, fmt.Errorf("cannot accept your own invitation: %w", domain.ErrForbidden)
	}

	switch inv.Status {
	case domain.InvitationStatusAccepted:
		res, err := alreadyAccepted(inv, accountID)
		if err != nil {
			logger.ExitMethodWithError("invitationService.accept", err)
			return nil, err
		}
		logger.ExitMethod("invitationService.accept", "alreadyAccepted", true)
		return res, nil
	case domain.InvitationStatusPending:
	default:
		err := fmt.Errorf("invitation %s is %s: %w", inv.ID, inv.Status, domain.ErrInvalidState)
		logger.ExitMethodWithError("invitationService.accept", err)
		return nil, err
	}

	now := s.clock.Now().UTC()
	if inv.IsExpired(now) {
		if _, err := s.invitationRepo.MarkExpired(ctx, inv.ID, now); err != nil {
			logger.ExitMethodWithError("invitationService.accept", err)
			return nil, err
		}
		err := fmt.Errorf("invitation %s expired at %s: %w", inv.ID, inv.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"), domain.ErrExpired)
		logger.ExitMethodWithError("invitationService.accept", err)
		return nil, err
	}

	won, err := s.markAccepted(ctx, inv, accountID, now)
	if err != nil {
		logger.ExitMethodWithError("invitationService.accept", err)
		return nil, err
	}
	if !won {
		return s.lostAcceptRace(ctx, inv.ID, accountID)
	}

	receiver := accountID
	at := now
	inv.Status = domain.InvitationStatusAccepted
	inv.ReceiverID = &receiver
	inv.AcceptedAt = &at
	inv.UpdatedAt = now

	result := &domain.AcceptResult{Invitation: inv}
	result.Reward, result.Unlocked = s.rewardAcceptance(ctx, inv)

	logger.Info("Invitation accepted", "invitation_id", inv.ID, "receiver_id", accountID, "role", inv.Role)
	logger.ExitMethod("invitationService.accept", "invitationID", inv.ID)
	return result, nil
}

// markAccepted runs the PENDING to ACCEPTED transition. Team-scoped
// invitations join the team in the same unit, so a full team leaves the
// invitation PENDING and a lost race adds no member.
func (s *invitationService) markAccepted(ctx context.Context, inv *domain.Invitation, accountID string, now time.Time) (bool, error) {
	if !inv.IsTeamScoped() {
		return s.invitationRepo.MarkAccepted(ctx, inv.ID, accountID, now)
	}
	sender := inv.SenderID
	return s.teamRepo.JoinByInvitation(ctx, inv.ID, *inv.TeamID, accountID, &sender, now)
}

// alreadyAccepted is a no-op only for the account that accepted.
func alreadyAccepted(inv *domain.Invitation, accountID string) (*domain.AcceptResult, error) {
	if inv.ReceiverID == nil || *inv.ReceiverID != accountID {
		return nil, fmt.Errorf("invitation %s was accepted by another account: %w", inv.ID, domain.ErrInvalidState)
	}
	return &domain.AcceptResult{Invitation: inv, AlreadyAccepted: true}, nil
}

// lostAcceptRace resolves a conditional update that matched no row by looking
// at the state the winner left behind.
func (s *invitationService) lostAcceptRace(ctx context.Context, invitationID, accountID string) (*domain.AcceptResult, error) {
	current, err := s.invitationRepo.GetByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case domain.InvitationStatusAccepted:
		return alreadyAccepted(current, accountID)
	case domain.InvitationStatusExpired:
		return nil, fmt.Errorf("invitation %s: %w", invitationID, domain.ErrExpired)
	default:
		return nil, fmt.Errorf("invitation %s is %s: %w", invitationID, current.Status, domain.ErrInvalidState)
	}
}

// rewardAcceptance credits a trainer sender and re-evaluates achievements.
// Failures are logged only; reconciliation jobs pick up what is missed.
func (s *invitationService) rewardAcceptance(ctx context.Context, inv *domain.Invitation) (*domain.PointsEntry, []domain.AchievementType) {
	sender, err := s.accounts.GetByID(ctx, inv.SenderID)
	if err != nil {
		logger.SideEffectFailed("acceptance_reward", err, "invitation_id", inv.ID, "account_id", inv.SenderID)
		return nil, nil
	}
	if !sender.IsTrainer() {
		return nil, nil
	}

	entry, _, err := s.points.Append(ctx, acceptanceReward(inv, s.rewards))
	if err != nil {
		logger.SideEffectFailed("acceptance_reward", err, "invitation_id", inv.ID, "account_id", sender.ID)
	}

	unlocked, err := s.achievements.Evaluate(ctx, sender.ID)
	if err != nil {
		logger.SideEffectFailed("achievement_evaluation", err, "invitation_id", inv.ID, "account_id", sender.ID)
	}
	return entry, unlocked
}

// acceptanceReward builds the ledger entry for an accepted invitation. The
// amount follows the role the invitation was issued for.
func acceptanceReward(inv *domain.Invitation, rewards config.RewardsConfig) domain.AppendRequest {
	source := inv.ID
	req := domain.AppendRequest{
		AccountID:   inv.SenderID,
		PointType:   domain.PointTypeClientAccepted,
		Points:      rewards.ClientAcceptedPoints,
		Description: "Client invitation accepted: " + inv.Email,
		SourceID:    &source,
	}
	if inv.Role == domain.InvitationRoleTrainer {
		req.PointType = domain.PointTypeTrainerAccepted
		req.Points = rewards.TrainerAcceptedPoints
		req.Description = "Trainer invitation accepted: " + inv.Email
	}
	return req
}

// authorizeSender allows the original sender or an admin.
func (s *invitationService) authorizeSender(ctx context.Context, inv *domain.Invitation, actorID string) (*domain.Account, error) {
	actor, err := s.accounts.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.ID != inv.SenderID && !actor.IsAdmin() {
		return nil, fmt.Errorf("invitation %s belongs to another sender: %w", inv.ID, domain.ErrForbidden)
	}
	return actor, nil
}

func (s *invitationService) Revoke(ctx context.Context, invitationID, actorID string) (*domain.Invitation, error) {
	inv, err := s.invitationRepo.GetByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeSender(ctx, inv, actorID); err != nil {
		return nil, err
	}
	if inv.Status != domain.InvitationStatusPending {
		return nil, fmt.Errorf("invitation %s is %s: %w", inv.ID, inv.Status, domain.ErrInvalidState)
	}

	revoked, err := s.invitationRepo.MarkRevoked(ctx, inv.ID, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	current, err := s.invitationRepo.GetByID(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	if !revoked {
		return nil, fmt.Errorf("invitation %s is %s: %w", inv.ID, current.Status, domain.ErrInvalidState)
	}
	logger.Info("Invitation revoked", "invitation_id", inv.ID, "actor_id", actorID)
	return current, nil
}

func (s *invitationService) Extend(ctx context.Context, invitationID, actorID string, days int) (*domain.Invitation, error) {
	if days <= 0 {
		return nil, fmt.Errorf("extension must be a positive number of days: %w", domain.ErrValidation)
	}
	inv, _, err := s.reopen(ctx, invitationID, actorID, days)
	return inv, err
}

func (s *invitationService) Resend(ctx context.Context, invitationID, actorID string) (*domain.Invitation, error) {
	inv, actor, err := s.reopen(ctx, invitationID, actorID, s.settings.DefaultTTLDays)
	if err != nil {
		return nil, err
	}

	sender := actor
	if actor.ID != inv.SenderID {
		if sender, err = s.accounts.GetByID(ctx, inv.SenderID); err != nil {
			logger.SideEffectFailed("invitation_email", err, "invitation_id", inv.ID)
			return inv, nil
		}
	}
	if err := s.email.SendInvitation(ctx, inv, sender); err != nil {
		logger.SideEffectFailed("invitation_email", err, "invitation_id", inv.ID)
	}
	return inv, nil
}

// reopen moves any non-ACCEPTED invitation back to PENDING with a fresh expiry.
func (s *invitationService) reopen(ctx context.Context, invitationID, actorID string, days int) (*domain.Invitation, *domain.Account, error) {
	inv, err := s.invitationRepo.GetByID(ctx, invitationID)
	if err != nil {
		return nil, nil, err
	}
	actor, err := s.authorizeSender(ctx, inv, actorID)
	if err != nil {
		return nil, nil, err
	}
	if inv.Status == domain.InvitationStatusAccepted {
		return nil, nil, fmt.Errorf("invitation %s is already accepted: %w", inv.ID, domain.ErrInvalidState)
	}

	now := s.clock.Now().UTC()
	reopened, err := s.invitationRepo.Reopen(ctx, inv.ID, now.AddDate(0, 0, days), now)
	if err != nil {
		return nil, nil, err
	}
	if !reopened {
		return nil, nil, fmt.Errorf("invitation %s was accepted concurrently: %w", inv.ID, domain.ErrInvalidState)
	}
	current, err := s.invitationRepo.GetByID(ctx, inv.ID)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Invitation reopened", "invitation_id", inv.ID, "actor_id", actorID, "expires_at", current.ExpiresAt)
	return current, actor, nil
}

func (s *invitationService) GetInvitation(ctx context.Context, invitationID, actorID string) (*domain.Invitation, error) {
	inv, err := s.invitationRepo.GetByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.ReceiverID != nil && *inv.ReceiverID == actorID {
		return inv, nil
	}
	if _, err := s.authorizeSender(ctx, inv, actorID); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invitationService) ListSent(ctx context.Context, senderID string, status domain.InvitationStatus, page, pageSize int) ([]domain.Invitation, int, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.invitationRepo.ListBySender(ctx, senderID, status, page, pageSize)
}

func (s *invitationService) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.invitationRepo.ExpireStale(ctx, s.clock.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("Expired stale invitations", "count", n)
	}
	return n, nil
}
