package repository

import (
	"context"
	"time"

	"referral-ledger-backend/internal/domain"
)

// InvitationRepository persists invitations. Every status change is a
// conditional update: the bool result reports whether this caller won the
// transition.
type InvitationRepository interface {
	// Create inserts a PENDING invitation. Stale PENDING rows for the same
	// (email, scope) are expired first; a live one yields domain.ErrConflict.
	Create(ctx context.Context, inv *domain.Invitation) error
	GetByID(ctx context.Context, id string) (*domain.Invitation, error)
	GetByCode(ctx context.Context, code string) (*domain.Invitation, error)
	FindPending(ctx context.Context, email string, teamID *string, now time.Time) (*domain.Invitation, error)
	ListBySender(ctx context.Context, senderID string, status domain.InvitationStatus, page, pageSize int) ([]domain.Invitation, int, error)

	MarkAccepted(ctx context.Context, id, receiverID string, now time.Time) (bool, error)
	MarkExpired(ctx context.Context, id string, now time.Time) (bool, error)
	MarkRevoked(ctx context.Context, id string, now time.Time) (bool, error)
	// Reopen forces a non-ACCEPTED invitation back to PENDING with a new expiry.
	Reopen(ctx context.Context, id string, expiresAt, now time.Time) (bool, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)

	CountAcceptedBySender(ctx context.Context, senderID string) (domain.InvitationStats, error)
	ListAcceptedBetween(ctx context.Context, from, to time.Time) ([]domain.Invitation, error)
	FindAcceptedByReceiver(ctx context.Context, receiverID string, role domain.InvitationRole) (*domain.Invitation, error)
	ListSendersWithAccepted(ctx context.Context) ([]string, error)
}

// PointsRepository is the append-only points ledger.
type PointsRepository interface {
	// Append inserts the entry. For keyed point types an existing
	// (account, type, source) row makes it a no-op reporting false.
	Append(ctx context.Context, entry *domain.PointsEntry) (bool, error)
	Exists(ctx context.Context, accountID string, pointType domain.PointType, sourceID string) (bool, error)
	Balance(ctx context.Context, accountID string) (int64, error)
	ListEntries(ctx context.Context, accountID string, page, pageSize int) ([]domain.PointsEntry, int, error)
	Summary(ctx context.Context, accountID string) (*domain.PointsSummary, error)
}

type AchievementRepository interface {
	ListByAccount(ctx context.Context, accountID string) ([]domain.Achievement, error)
	// Unlock inserts the achievement row and its ledger entry atomically.
	// It reports false when the achievement was already unlocked.
	Unlock(ctx context.Context, achievement *domain.Achievement, entry *domain.PointsEntry) (bool, error)
}

// TeamRepository keeps member_count equal to the number of ACTIVE memberships
// by changing both in one transaction.
type TeamRepository interface {
	Create(ctx context.Context, team *domain.Team) error
	GetByID(ctx context.Context, id string) (*domain.Team, error)
	GetMembership(ctx context.Context, teamID, userID string) (*domain.TeamMembership, error)
	ListMembers(ctx context.Context, teamID string, status domain.MembershipStatus) ([]domain.TeamMembership, error)
	AddMember(ctx context.Context, teamID, userID string, invitedBy *string, now time.Time) (*domain.TeamMembership, error)
	// JoinByInvitation moves a PENDING, unexpired invitation to ACCEPTED and
	// adds userID to the team as one unit. It reports false, changing
	// nothing, when the invitation is no longer acceptable. An existing
	// ACTIVE membership is kept; a full team fails the whole unit.
	JoinByInvitation(ctx context.Context, invitationID, teamID, userID string, invitedBy *string, now time.Time) (bool, error)
	RemoveMember(ctx context.Context, teamID, userID string, status domain.MembershipStatus, now time.Time) (*domain.TeamMembership, error)
	CountActive(ctx context.Context, teamID string) (int, error)
}

// AccountDirectory is a read-only view over the external account service.
type AccountDirectory interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
}

// ActivityLog answers whether an account logged a workout since a point in time.
type ActivityLog interface {
	HasRecentActivity(ctx context.Context, accountID string, since time.Time) (bool, error)
}
