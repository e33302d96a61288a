package service

import (
	"context"

	"referral-ledger-backend/internal/domain"
)

type PointsService interface {
	// Append validates and writes one ledger entry. created is false when a
	// keyed entry for the same (account, type, source) already exists.
	Append(ctx context.Context, req domain.AppendRequest) (entry *domain.PointsEntry, created bool, err error)
	HasEntry(ctx context.Context, accountID string, pointType domain.PointType, sourceID string) (bool, error)
	BalanceOf(ctx context.Context, accountID string) (int64, error)
	ListEntries(ctx context.Context, accountID string, page, pageSize int) ([]domain.PointsEntry, int, error)
	Summary(ctx context.Context, accountID string) (*domain.PointsSummary, error)
	AdminAdjust(ctx context.Context, actorID string, req domain.AppendRequest) (*domain.PointsEntry, error)
}

type InvitationService interface {
	CreateInvitations(ctx context.Context, req domain.InviteRequest) (*domain.BulkInviteResult, error)
	Accept(ctx context.Context, invitationID, accountID string) (*domain.AcceptResult, error)
	AcceptByCode(ctx context.Context, code, accountID string) (*domain.AcceptResult, error)
	Revoke(ctx context.Context, invitationID, actorID string) (*domain.Invitation, error)
	Extend(ctx context.Context, invitationID, actorID string, days int) (*domain.Invitation, error)
	Resend(ctx context.Context, invitationID, actorID string) (*domain.Invitation, error)
	GetInvitation(ctx context.Context, invitationID, actorID string) (*domain.Invitation, error)
	ListSent(ctx context.Context, senderID string, status domain.InvitationStatus, page, pageSize int) ([]domain.Invitation, int, error)
	ExpireStale(ctx context.Context) (int64, error)
}

type AchievementService interface {
	// Evaluate unlocks every achievement the account qualifies for and
	// returns the ones unlocked by this call.
	Evaluate(ctx context.Context, accountID string) ([]domain.AchievementType, error)
	ListAchievements(ctx context.Context, accountID string) ([]domain.Achievement, error)
	Progress(ctx context.Context, accountID string) ([]domain.AchievementProgress, error)
	ReconcileAll(ctx context.Context) (*domain.SweepResult, error)
}

type BonusService interface {
	RunRetentionSweep(ctx context.Context) (*domain.SweepResult, error)
	OnTrainerVerified(ctx context.Context, trainerID string) (bool, error)
	ReconcileAcceptanceRewards(ctx context.Context) (*domain.SweepResult, error)
	ReconcileVerificationBonuses(ctx context.Context) (*domain.SweepResult, error)
}

type TeamService interface {
	CreateTeam(ctx context.Context, ownerID, name string, maxMembers int) (*domain.Team, error)
	GetTeam(ctx context.Context, teamID string) (*domain.Team, error)
	ListMembers(ctx context.Context, teamID string, status domain.MembershipStatus) ([]domain.TeamMembership, error)
	AddMember(ctx context.Context, actorID, teamID, userID string) (*domain.TeamMembership, error)
	KickMember(ctx context.Context, actorID, teamID, userID string) (*domain.TeamMembership, error)
	Leave(ctx context.Context, teamID, userID string) (*domain.TeamMembership, error)
}

type EmailService interface {
	SendInvitation(ctx context.Context, inv *domain.Invitation, sender *domain.Account) error
}

// Mailer delivers one message. Implementations: SendGridMailer, LogMailer and
// the asynchronous EmailQueue wrapping either.
type Mailer interface {
	Send(ctx context.Context, msg domain.EmailMessage) error
}
