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

type teamService struct {
	teamRepo repository.TeamRepository
	accounts repository.AccountDirectory
	clock    clockwork.Clock
}

func NewTeamService(teamRepo repository.TeamRepository, accounts repository.AccountDirectory, clock clockwork.Clock) TeamService {
	return &teamService{
		teamRepo: teamRepo,
		accounts: accounts,
		clock:    clock,
	}
}

func (s *teamService) CreateTeam(ctx context.Context, ownerID, name string, maxMembers int) (*domain.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("team name is required: %w", domain.ErrValidation)
	}
	if maxMembers <= 0 {
		return nil, fmt.Errorf("max members must be positive: %w", domain.ErrValidation)
	}
	owner, err := s.accounts.GetByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !owner.IsTrainer() && !owner.IsAdmin() {
		return nil, fmt.Errorf("only trainers can own teams: %w", domain.ErrForbidden)
	}

	team := &domain.Team{
		ID:         uuid.NewString(),
		Name:       name,
		OwnerID:    owner.ID,
		MaxMembers: maxMembers,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if err := s.teamRepo.Create(ctx, team); err != nil {
		return nil, err
	}
	logger.Info("Team created", "team_id", team.ID, "owner_id", owner.ID, "max_members", maxMembers)
	return team, nil
}

func (s *teamService) GetTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	return s.teamRepo.GetByID(ctx, teamID)
}

func (s *teamService) ListMembers(ctx context.Context, teamID string, status domain.MembershipStatus) ([]domain.TeamMembership, error) {
	if _, err := s.teamRepo.GetByID(ctx, teamID); err != nil {
		return nil, err
	}
	return s.teamRepo.ListMembers(ctx, teamID, status)
}

// authorizeManager allows the team owner or an admin.
func (s *teamService) authorizeManager(ctx context.Context, actorID, teamID string) error {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		return err
	}
	if team.OwnerID == actorID {
		return nil
	}
	actor, err := s.accounts.GetByID(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return fmt.Errorf("only the owner can manage team %s: %w", teamID, domain.ErrForbidden)
	}
	return nil
}

func (s *teamService) AddMember(ctx context.Context, actorID, teamID, userID string) (*domain.TeamMembership, error) {
	if err := s.authorizeManager(ctx, actorID, teamID); err != nil {
		return nil, err
	}
	if _, err := s.accounts.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	inviter := actorID
	m, err := s.teamRepo.AddMember(ctx, teamID, userID, &inviter, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	logger.Info("Team member added", "team_id", teamID, "user_id", userID, "actor_id", actorID)
	return m, nil
}

func (s *teamService) KickMember(ctx context.Context, actorID, teamID, userID string) (*domain.TeamMembership, error) {
	if err := s.authorizeManager(ctx, actorID, teamID); err != nil {
		return nil, err
	}
	m, err := s.teamRepo.RemoveMember(ctx, teamID, userID, domain.MembershipStatusKicked, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	logger.Info("Team member kicked", "team_id", teamID, "user_id", userID, "actor_id", actorID)
	return m, nil
}

func (s *teamService) Leave(ctx context.Context, teamID, userID string) (*domain.TeamMembership, error) {
	m, err := s.teamRepo.RemoveMember(ctx, teamID, userID, domain.MembershipStatusLeft, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	logger.Info("Team member left", "team_id", teamID, "user_id", userID)
	return m, nil
}
