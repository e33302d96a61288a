package scheduler_test

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"referral-ledger-backend/internal/config"
	"referral-ledger-backend/internal/jobs"
	"referral-ledger-backend/internal/scheduler"
)

func TestScheduler_RegistersConfiguredJobs(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{
		RetentionSweep:        "0 0 3 * * *",
		ExpireInvitations:     "0 */15 * * * *",
		ReconcileRewards:      "0 30 3 * * *",
		ReconcileAchievements: "not a cron expression",
		ReconcileVerification: "",
	}}
	s := scheduler.NewScheduler(jobs.NewJobRunner(&jobs.Services{}, cfg, clockwork.NewFakeClock()))

	assert.Equal(t, []string{jobs.JobExpireInvitations, jobs.JobRetentionSweep, jobs.JobReconcileRewards}, s.Registered())
	assert.True(t, s.IsRunning())

	s.Start()
	s.Stop()
}

func TestScheduler_NothingConfigured(t *testing.T) {
	s := scheduler.NewScheduler(jobs.NewJobRunner(&jobs.Services{}, &config.Config{}, clockwork.NewFakeClock()))
	assert.Empty(t, s.Registered())
	assert.False(t, s.IsRunning())
}
