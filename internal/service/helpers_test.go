package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"referral-ledger-backend/internal/config"
	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/repository"
	"referral-ledger-backend/internal/repository/memory"
	"referral-ledger-backend/internal/service"
)

var t0 = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

var testRewards = config.RewardsConfig{
	ClientAcceptedPoints:    10,
	TrainerAcceptedPoints:   25,
	RetentionBonusPoints:    25,
	VerificationBonusPoints: 50,
	RetentionDelayDays:      30,
	RetentionWindowHours:    24,
	ActivityLookbackDays:    7,
	ReconcileLookbackDays:   30,
}

var testInvitations = config.InvitationsConfig{DefaultTTLDays: 7, MaxBatch: 50}

var testApp = config.AppConfig{BaseURL: "https://coach.example.com/", Name: "Coachboard"}

type fixture struct {
	store        *memory.Store
	clock        *clockwork.FakeClock
	mailer       *recordingMailer
	points       service.PointsService
	achievements service.AchievementService
	invitations  service.InvitationService
	bonuses      service.BonusService
	teams        service.TeamService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithPoints(t, nil)
}

// newFixtureWithPoints swaps the ledger repository, for failure injection.
func newFixtureWithPoints(t *testing.T, pointsRepo repository.PointsRepository) *fixture {
	t.Helper()
	store := memory.NewStore()
	if pointsRepo == nil {
		pointsRepo = store.PointsRepository
	}
	clock := clockwork.NewFakeClockAt(t0)
	mailer := &recordingMailer{}

	points := service.NewPointsService(pointsRepo, store.AccountDirectory, clock)
	achievements := service.NewAchievementService(store.InvitationRepository, store.AchievementRepository, store.AccountDirectory, clock)
	f := &fixture{
		store:        store,
		clock:        clock,
		mailer:       mailer,
		points:       points,
		achievements: achievements,
		bonuses:      service.NewBonusService(store.InvitationRepository, store.AccountDirectory, store.ActivityLog, points, clock, testRewards),
		teams:        service.NewTeamService(store.TeamRepository, store.AccountDirectory, clock),
	}
	f.rewireMailer(mailer)
	return f
}

// rewireMailer rebuilds the invitation service around a different mailer.
func (f *fixture) rewireMailer(m service.Mailer) {
	email := service.NewEmailService(m, testApp)
	f.invitations = service.NewInvitationService(f.store.InvitationRepository, f.store.TeamRepository, f.store.AccountDirectory,
		f.points, f.achievements, email, f.clock, testInvitations, testRewards)
}

func (f *fixture) account(id string, role domain.AccountRole) domain.Account {
	a := domain.Account{ID: id, Email: id + "@example.com", Name: id, Role: role, Status: domain.AccountStatusActive}
	f.store.PutAccount(a)
	return a
}

// invite creates one invitation and returns it, failing the test otherwise.
func (f *fixture) invite(t *testing.T, senderID, email string, role domain.InvitationRole, ttlDays int, teamID *string) *domain.Invitation {
	t.Helper()
	res, err := f.invitations.CreateInvitations(context.Background(), domain.InviteRequest{
		SenderID: senderID,
		Emails:   []string{email},
		Role:     role,
		TeamID:   teamID,
		TTLDays:  ttlDays,
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	require.Equal(t, domain.InviteOutcomeCreated, res.Results[0].Outcome, "invite %s", email)
	return res.Results[0].Invitation
}

func (f *fixture) ledgerSum(accountID string) int64 {
	var sum int64
	for _, e := range f.store.Entries() {
		if e.AccountID == accountID {
			sum += int64(e.Points)
		}
	}
	return sum
}

func (f *fixture) countEntries(accountID string, pt domain.PointType) int {
	n := 0
	for _, e := range f.store.Entries() {
		if e.AccountID == accountID && e.PointType == pt {
			n++
		}
	}
	return n
}

func emails(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d@example.com", prefix, i)
	}
	return out
}
