package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/repository"
	"referral-ledger-backend/internal/service"
)

func TestInvitationService_CreateInvitations(t *testing.T) {
	ctx := context.Background()

	t.Run("ReportsPerEmailOutcomes", func(t *testing.T) {
		f := newFixture(t)
		f.account("trainer", domain.AccountRoleTrainer)
		f.account("member", domain.AccountRoleClient)
		f.invite(t, "trainer", "pending@example.com", domain.InvitationRoleClient, 7, nil)

		res, err := f.invitations.CreateInvitations(ctx, domain.InviteRequest{
			SenderID: "trainer",
			Emails:   []string{"  New@Example.COM ", "pending@example.com", "member@example.com", "not-an-email", "new@example.com"},
			Role:     domain.InvitationRoleClient,
			TTLDays:  7,
		})
		require.NoError(t, err)

		require.Len(t, res.Results, 5)
		assert.Equal(t, domain.InviteOutcomeCreated, res.Results[0].Outcome)
		assert.Equal(t, "new@example.com", res.Results[0].Email)
		assert.Equal(t, domain.InviteOutcomeSkippedAlreadyInvited, res.Results[1].Outcome)
		assert.Equal(t, domain.InviteOutcomeSkippedAlreadyRegistered, res.Results[2].Outcome)
		assert.Equal(t, domain.InviteOutcomeInvalidEmail, res.Results[3].Outcome)
		assert.Equal(t, domain.InviteOutcomeSkippedAlreadyInvited, res.Results[4].Outcome)
		assert.Equal(t, 1, res.Created)
		assert.Equal(t, 3, res.Skipped)
		assert.Equal(t, 1, res.Invalid)

		inv := res.Results[0].Invitation
		assert.Equal(t, domain.InvitationStatusPending, inv.Status)
		assert.True(t, inv.ExpiresAt.Equal(t0.AddDate(0, 0, 7)))
		assert.NotEmpty(t, inv.Code)

		sent := f.mailer.messages()
		require.Len(t, sent, 2)
		assert.Equal(t, "new@example.com", sent[1].To)
		assert.Contains(t, sent[1].Text, "https://coach.example.com/invitations/accept?code="+inv.Code)
	})

	t.Run("ValidationErrors", func(t *testing.T) {
		f := newFixture(t)
		f.account("trainer", domain.AccountRoleTrainer)

		cases := []domain.InviteRequest{
			{SenderID: "trainer", Emails: []string{"a@example.com"}, Role: "COACH", TTLDays: 7},
			{SenderID: "trainer", Emails: []string{"a@example.com"}, Role: domain.InvitationRoleClient, TTLDays: 0},
			{SenderID: "trainer", Emails: nil, Role: domain.InvitationRoleClient, TTLDays: 7},
			{SenderID: "trainer", Emails: emails("bulk", 51), Role: domain.InvitationRoleClient, TTLDays: 7},
		}
		for i, req := range cases {
			_, err := f.invitations.CreateInvitations(ctx, req)
			assert.ErrorIs(t, err, domain.ErrValidation, "case %d", i)
		}
	})

	t.Run("EmailFailureDoesNotFailCreate", func(t *testing.T) {
		f := newFixture(t)
		f.account("trainer", domain.AccountRoleTrainer)
		mailer := new(MockMailer)
		mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down"))
		f.rewireMailer(mailer)

		res, err := f.invitations.CreateInvitations(ctx, domain.InviteRequest{
			SenderID: "trainer", Emails: []string{"a@example.com"}, Role: domain.InvitationRoleClient, TTLDays: 7,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Created)
		mailer.AssertExpectations(t)
	})

	t.Run("TeamScope", func(t *testing.T) {
		f := newFixture(t)
		f.account("owner", domain.AccountRoleTrainer)
		f.account("stranger", domain.AccountRoleTrainer)
		athlete := f.account("athlete", domain.AccountRoleClient)
		team, err := f.teams.CreateTeam(ctx, "owner", "Morning Crew", 10)
		require.NoError(t, err)

		// A registered account can still be invited to a team.
		inv := f.invite(t, "owner", athlete.Email, domain.InvitationRoleClient, 7, &team.ID)
		assert.True(t, inv.IsTeamScoped())
		_, err = f.invitations.AcceptByCode(ctx, inv.Code, athlete.ID)
		require.NoError(t, err)

		res, err := f.invitations.CreateInvitations(ctx, domain.InviteRequest{
			SenderID: "owner", Emails: []string{athlete.Email}, Role: domain.InvitationRoleClient, TeamID: &team.ID, TTLDays: 7,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.InviteOutcomeSkippedAlreadyMember, res.Results[0].Outcome)

		_, err = f.invitations.CreateInvitations(ctx, domain.InviteRequest{
			SenderID: "stranger", Emails: []string{"x@example.com"}, Role: domain.InvitationRoleClient, TeamID: &team.ID, TTLDays: 7,
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

// Five accepted client invitations pay 5x10 and unlock Rookie Recruiter (+50).
func TestInvitationService_FiveAcceptedUnlocksRookieRecruiter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account("T", domain.AccountRoleTrainer)

	var last *domain.AcceptResult
	for i, email := range emails("client", 5) {
		inv := f.invite(t, "T", email, domain.InvitationRoleClient, 7, nil)
		f.clock.Advance(time.Hour)
		res, err := f.invitations.Accept(ctx, inv.ID, fmt.Sprintf("client-%d", i))
		require.NoError(t, err)
		require.NotNil(t, res.Reward)
		assert.Equal(t, domain.PointTypeClientAccepted, res.Reward.PointType)
		last = res
	}

	assert.Equal(t, []domain.AchievementType{domain.AchievementRookieRecruiter}, last.Unlocked)
	assert.Equal(t, 5, f.countEntries("T", domain.PointTypeClientAccepted))
	assert.Equal(t, 1, f.countEntries("T", domain.PointTypeAchievementUnlock))

	balance, err := f.points.BalanceOf(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
	assert.Equal(t, f.ledgerSum("T"), balance)
}

func TestInvitationService_AcceptAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account("T", domain.AccountRoleTrainer)
	inv := f.invite(t, "T", "late@example.com", domain.InvitationRoleClient, 1, nil)

	f.clock.Advance(48 * time.Hour)
	_, err := f.invitations.Accept(ctx, inv.ID, "late-user")
	assert.ErrorIs(t, err, domain.ErrExpired)

	stored, err := f.store.InvitationRepository.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationStatusExpired, stored.Status)
	assert.Empty(t, f.store.Entries())

	// A second attempt sees the terminal state.
	_, err = f.invitations.Accept(ctx, inv.ID, "late-user")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestInvitationService_ConcurrentAcceptPaysOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account("T", domain.AccountRoleTrainer)
	inv := f.invite(t, "T", "race@example.com", domain.InvitationRoleTrainer, 7, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*domain.AcceptResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.invitations.Accept(ctx, inv.ID, "receiver")
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if !results[i].AlreadyAccepted {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, f.countEntries("T", domain.PointTypeTrainerAccepted))

	balance, err := f.points.BalanceOf(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance)

	// Sequential retries are benign too.
	again, err := f.invitations.Accept(ctx, inv.ID, "receiver")
	require.NoError(t, err)
	assert.True(t, again.AlreadyAccepted)
	assert.Nil(t, again.Reward)
}

func TestInvitationService_NonTrainerSenderEarnsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account("C", domain.AccountRoleClient)
	inv := f.invite(t, "C", "friend@example.com", domain.InvitationRoleClient, 7, nil)

	res, err := f.invitations.Accept(ctx, inv.ID, "friend")
	require.NoError(t, err)
	assert.Nil(t, res.Reward)
	assert.Empty(t, f.store.Entries())
}

func TestInvitationService_RewardFailureKeepsAcceptance(t *testing.T) {
	repo := new(MockPointsRepo)
	repo.On("Append", mock.Anything, mock.Anything).Return(false, errors.New("connection reset")).Once()
	f := newFixtureWithPoints(t, repo)
	ctx := context.Background()
	f.account("T", domain.AccountRoleTrainer)
	inv := f.invite(t, "T", "a@example.com", domain.InvitationRoleClient, 7, nil)

	res, err := f.invitations.Accept(ctx, inv.ID, "receiver")
	require.NoError(t, err)
	assert.Nil(t, res.Reward)
	assert.Equal(t, domain.InvitationStatusAccepted, res.Invitation.Status)

	stored, err := f.store.InvitationRepository.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationStatusAccepted, stored.Status)

	// Reconciliation issues the missing reward.
	repo.On("Append", mock.Anything, mock.MatchedBy(func(e *domain.PointsEntry) bool {
		return e.PointType == domain.PointTypeClientAccepted && *e.SourceID == inv.ID
	})).Return(true, nil).Once()
	sweep, err := f.bonuses.ReconcileAcceptanceRewards(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Awarded)
	repo.AssertExpectations(t)
}

func TestInvitationService_TeamInvitationRespectsCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account("owner", domain.AccountRoleTrainer)
	team, err := f.teams.CreateTeam(ctx, "owner", "Duo", 1)
	require.NoError(t, err)

	first := f.invite(t, "owner", "one@example.com", domain.InvitationRoleClient, 7, &team.ID)
	second := f.invite(t, "owner", "two@example.com", domain.InvitationRoleClient, 7, &team.ID)

	_, err = f.invitations.Accept(ctx, first.ID, "user-1")
	require.NoError(t, err)

	_, err = f.invitations.Accept(ctx, second.ID, "user-2")
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	stored, err := f.store.InvitationRepository.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationStatusPending, stored.Status)

	got, err := f.teams.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MemberCount)
}

// gatedInvitations holds the first n GetByID callers until all n arrived, so
// concurrent accepts all observe the PENDING invitation.
type gatedInvitations struct {
	repository.InvitationRepository
	mu      sync.Mutex
	waiting int
	release chan struct{}
}

func newGatedInvitations(repo repository.InvitationRepository, n int) *gatedInvitations {
	return &gatedInvitations{InvitationRepository: repo, waiting: n, release: make(chan struct{})}
}

func (g *gatedInvitations) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	g.mu.Lock()
	hold := g.waiting > 0
	if hold {
		g.waiting--
		if g.waiting == 0 {
			close(g.release)
		}
	}
	g.mu.Unlock()
	if hold {
		<-g.release
	}
	return g.InvitationRepository.GetByID(ctx, id)
}

func TestInvitationService_TeamAcceptRaceAddsOneMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account("owner", domain.AccountRoleTrainer)
	team, err := f.teams.CreateTeam(ctx, "owner", "Squad", 5)
	require.NoError(t, err)
	inv := f.invite(t, "owner", "alice@example.com", domain.InvitationRoleClient, 7, &team.ID)

	gated := newGatedInvitations(f.store.InvitationRepository, 2)
	invitations := service.NewInvitationService(gated, f.store.TeamRepository, f.store.AccountDirectory,
		f.points, f.achievements, service.NewEmailService(f.mailer, testApp), f.clock, testInvitations, testRewards)

	accounts := []string{"alice", "mallory"}
	errs := make([]error, len(accounts))
	var wg sync.WaitGroup
	for i, id := range accounts {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = invitations.Accept(ctx, inv.ID, id)
		}(i, id)
	}
	wg.Wait()

	stored, err := f.store.InvitationRepository.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InvitationStatusAccepted, stored.Status)
	require.NotNil(t, stored.ReceiverID)
	winner := *stored.ReceiverID

	for i, id := range accounts {
		if id == winner {
			assert.NoError(t, errs[i])
		} else {
			assert.ErrorIs(t, errs[i], domain.ErrInvalidState)
		}
	}

	members, err := f.store.TeamRepository.ListMembers(ctx, team.ID, domain.MembershipStatusActive)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, winner, members[0].UserID)

	active, err := f.store.TeamRepository.CountActive(ctx, team.ID)
	require.NoError(t, err)
	got, err := f.teams.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
	assert.Equal(t, active, got.MemberCount)
	assert.Equal(t, 1, f.countEntries("owner", domain.PointTypeClientAccepted))
}

func TestInvitationService_AcceptedByAnotherAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account("T", domain.AccountRoleTrainer)
	inv := f.invite(t, "T", "alice@example.com", domain.InvitationRoleClient, 7, nil)

	_, err := f.invitations.Accept(ctx, inv.ID, "alice")
	require.NoError(t, err)

	_, err = f.invitations.Accept(ctx, inv.ID, "eve")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.invitations.AcceptByCode(ctx, inv.Code, "eve")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	again, err := f.invitations.Accept(ctx, inv.ID, "alice")
	require.NoError(t, err)
	assert.True(t, again.AlreadyAccepted)
	assert.Equal(t, 1, f.countEntries("T", domain.PointTypeClientAccepted))
}

func TestInvitationService_RevokeExtendResend(t *testing.T) {
	ctx := context.Background()

	t.Run("RevokeBySenderOnly", func(t *testing.T) {
		f := newFixture(t)
		f.account("T", domain.AccountRoleTrainer)
		f.account("other", domain.AccountRoleTrainer)
		inv := f.invite(t, "T", "a@example.com", domain.InvitationRoleClient, 7, nil)

		_, err := f.invitations.Revoke(ctx, inv.ID, "other")
		assert.ErrorIs(t, err, domain.ErrForbidden)

		revoked, err := f.invitations.Revoke(ctx, inv.ID, "T")
		require.NoError(t, err)
		assert.Equal(t, domain.InvitationStatusRevoked, revoked.Status)

		_, err = f.invitations.Revoke(ctx, inv.ID, "T")
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		_, err = f.invitations.Accept(ctx, inv.ID, "receiver")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		assert.Empty(t, f.store.Entries())
	})

	t.Run("AdminMayRevoke", func(t *testing.T) {
		f := newFixture(t)
		f.account("T", domain.AccountRoleTrainer)
		f.account("admin", domain.AccountRoleAdmin)
		inv := f.invite(t, "T", "a@example.com", domain.InvitationRoleClient, 7, nil)

		_, err := f.invitations.Revoke(ctx, inv.ID, "admin")
		assert.NoError(t, err)
	})

	t.Run("ExtendReopensExpired", func(t *testing.T) {
		f := newFixture(t)
		f.account("T", domain.AccountRoleTrainer)
		inv := f.invite(t, "T", "a@example.com", domain.InvitationRoleClient, 1, nil)
		f.clock.Advance(72 * time.Hour)
		n, err := f.invitations.ExpireStale(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = f.invitations.Extend(ctx, inv.ID, "T", 0)
		assert.ErrorIs(t, err, domain.ErrValidation)

		extended, err := f.invitations.Extend(ctx, inv.ID, "T", 3)
		require.NoError(t, err)
		assert.Equal(t, domain.InvitationStatusPending, extended.Status)
		assert.True(t, extended.ExpiresAt.Equal(f.clock.Now().UTC().AddDate(0, 0, 3)))

		_, err = f.invitations.Accept(ctx, inv.ID, "receiver")
		require.NoError(t, err)

		_, err = f.invitations.Extend(ctx, inv.ID, "T", 3)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("ResendRevokedSendsEmail", func(t *testing.T) {
		f := newFixture(t)
		f.account("T", domain.AccountRoleTrainer)
		inv := f.invite(t, "T", "a@example.com", domain.InvitationRoleClient, 7, nil)
		_, err := f.invitations.Revoke(ctx, inv.ID, "T")
		require.NoError(t, err)

		resent, err := f.invitations.Resend(ctx, inv.ID, "T")
		require.NoError(t, err)
		assert.Equal(t, domain.InvitationStatusPending, resent.Status)
		assert.Len(t, f.mailer.messages(), 2)
	})

	t.Run("ResendBlockedByNewerPending", func(t *testing.T) {
		f := newFixture(t)
		f.account("T", domain.AccountRoleTrainer)
		inv := f.invite(t, "T", "a@example.com", domain.InvitationRoleClient, 7, nil)
		_, err := f.invitations.Revoke(ctx, inv.ID, "T")
		require.NoError(t, err)
		f.invite(t, "T", "a@example.com", domain.InvitationRoleClient, 7, nil)

		_, err = f.invitations.Resend(ctx, inv.ID, "T")
		assert.ErrorIs(t, err, domain.ErrConflict)
	})
}

func TestInvitationService_AcceptValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account("T", domain.AccountRoleTrainer)
	inv := f.invite(t, "T", "a@example.com", domain.InvitationRoleClient, 7, nil)

	_, err := f.invitations.Accept(ctx, "missing", "receiver")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.invitations.AcceptByCode(ctx, "", "receiver")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.invitations.Accept(ctx, inv.ID, "T")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	res, err := f.invitations.AcceptByCode(ctx, inv.Code, "receiver")
	require.NoError(t, err)
	require.NotNil(t, res.Invitation.ReceiverID)
	assert.Equal(t, "receiver", *res.Invitation.ReceiverID)
}

func TestInvitationService_ListSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account("T", domain.AccountRoleTrainer)
	for _, email := range emails("list", 3) {
		f.invite(t, "T", email, domain.InvitationRoleClient, 7, nil)
		f.clock.Advance(time.Minute)
	}

	invs, total, err := f.invitations.ListSent(ctx, "T", domain.InvitationStatusPending, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, invs, 2)
	assert.Equal(t, "list2@example.com", invs[0].Email)
}
