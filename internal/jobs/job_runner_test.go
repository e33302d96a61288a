package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referral-ledger-backend/internal/config"
	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/jobs"
	"referral-ledger-backend/internal/repository/memory"
	"referral-ledger-backend/internal/service"
)

var t0 = time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)

var rewards = config.RewardsConfig{
	ClientAcceptedPoints:    10,
	TrainerAcceptedPoints:   25,
	RetentionBonusPoints:    25,
	VerificationBonusPoints: 50,
	RetentionDelayDays:      30,
	RetentionWindowHours:    24,
	ActivityLookbackDays:    7,
	ReconcileLookbackDays:   30,
}

type harness struct {
	store  *memory.Store
	clock  *clockwork.FakeClock
	runner *jobs.JobRunner
	svc    *jobs.Services
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	clock := clockwork.NewFakeClockAt(t0)
	points := service.NewPointsService(store.PointsRepository, store.AccountDirectory, clock)
	achievements := service.NewAchievementService(store.InvitationRepository, store.AchievementRepository, store.AccountDirectory, clock)
	email := service.NewEmailService(service.LogMailer{}, config.AppConfig{BaseURL: "http://localhost", Name: "Test"})
	svc := &jobs.Services{
		Invitations: service.NewInvitationService(store.InvitationRepository, store.TeamRepository, store.AccountDirectory,
			points, achievements, email, clock, config.InvitationsConfig{DefaultTTLDays: 7, MaxBatch: 10}, rewards),
		Bonuses:      service.NewBonusService(store.InvitationRepository, store.AccountDirectory, store.ActivityLog, points, clock, rewards),
		Achievements: achievements,
	}
	return &harness{
		store:  store,
		clock:  clock,
		svc:    svc,
		runner: jobs.NewJobRunner(svc, &config.Config{Rewards: rewards}, clock),
	}
}

func (h *harness) inviteAndAccept(t *testing.T, sender, email, receiver string) {
	t.Helper()
	ctx := context.Background()
	res, err := h.svc.Invitations.CreateInvitations(ctx, domain.InviteRequest{
		SenderID: sender, Emails: []string{email}, Role: domain.InvitationRoleClient, TTLDays: 7,
	})
	require.NoError(t, err)
	require.Equal(t, domain.InviteOutcomeCreated, res.Results[0].Outcome)
	_, err = h.svc.Invitations.Accept(ctx, res.Results[0].Invitation.ID, receiver)
	require.NoError(t, err)
}

func TestJobRunner_Names(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []string{
		jobs.JobExpireInvitations,
		jobs.JobReconcileAchievements,
		jobs.JobReconcileRewards,
		jobs.JobReconcileVerification,
		jobs.JobRetentionSweep,
	}, h.runner.Names())
}

func TestJobRunner_RunUnknownJob(t *testing.T) {
	h := newHarness(t)
	_, err := h.runner.Run(context.Background(), "bill_splitting")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestJobRunner_RetentionSweep(t *testing.T) {
	h := newHarness(t)
	h.store.PutAccount(domain.Account{ID: "T", Email: "t@example.com", Role: domain.AccountRoleTrainer, Status: domain.AccountStatusActive})
	h.store.PutAccount(domain.Account{ID: "C", Email: "c@example.com", Role: domain.AccountRoleClient, Status: domain.AccountStatusActive})
	h.inviteAndAccept(t, "T", "new@example.com", "C")
	h.store.RecordActivity("C", t0.AddDate(0, 0, 27))

	h.clock.Advance(30*24*time.Hour + time.Hour)
	report, err := h.runner.Run(context.Background(), jobs.JobRetentionSweep)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobRetentionSweep, report.Job)
	require.NotNil(t, report.Sweep)
	assert.Equal(t, 1, report.Sweep.Awarded)

	// The cron wrapper runs the same job; the bonus is already paid.
	h.runner.Func(jobs.JobRetentionSweep)()
	balance, err := h.store.PointsRepository.Balance(context.Background(), "T")
	require.NoError(t, err)
	assert.Equal(t, int64(35), balance)
}

func TestJobRunner_ExpireInvitations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.PutAccount(domain.Account{ID: "T", Email: "t@example.com", Role: domain.AccountRoleTrainer, Status: domain.AccountStatusActive})
	_, err := h.svc.Invitations.CreateInvitations(ctx, domain.InviteRequest{
		SenderID: "T", Emails: []string{"a@example.com", "b@example.com"}, Role: domain.InvitationRoleClient, TTLDays: 1,
	})
	require.NoError(t, err)

	h.clock.Advance(48 * time.Hour)
	report, err := h.runner.Run(ctx, jobs.JobExpireInvitations)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Expired)
	assert.Nil(t, report.Sweep)
}

type panickingBonuses struct{ service.BonusService }

func (panickingBonuses) RunRetentionSweep(ctx context.Context) (*domain.SweepResult, error) {
	panic("boom")
}

func TestJobRunner_FuncRecoversPanics(t *testing.T) {
	h := newHarness(t)
	h.svc.Bonuses = panickingBonuses{}
	runner := jobs.NewJobRunner(h.svc, &config.Config{}, h.clock)

	assert.NotPanics(t, runner.Func(jobs.JobRetentionSweep))
	assert.NotPanics(t, runner.RunAll)
}
