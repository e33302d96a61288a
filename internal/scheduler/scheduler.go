package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"referral-ledger-backend/internal/jobs"
	"referral-ledger-backend/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron       *cron.Cron
	jobs       *jobs.JobRunner
	registered []string
}

// NewScheduler creates a new scheduler with the provided job runner
func NewScheduler(jobRunner *jobs.JobRunner) *Scheduler {
	// Create cron with UTC timezone and seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}

	s.registerJobs()
	return s
}

// registerJobs registers all scheduled jobs with the cron scheduler
func (s *Scheduler) registerJobs() {
	cfg := s.jobs.Config().Scheduler

	schedules := []struct {
		job  string
		spec string
	}{
		{jobs.JobExpireInvitations, cfg.ExpireInvitations},
		{jobs.JobRetentionSweep, cfg.RetentionSweep},
		{jobs.JobReconcileRewards, cfg.ReconcileRewards},
		{jobs.JobReconcileAchievements, cfg.ReconcileAchievements},
		{jobs.JobReconcileVerification, cfg.ReconcileVerification},
	}

	for _, sc := range schedules {
		if sc.spec == "" {
			logger.Info("Job disabled, no schedule configured", "job", sc.job)
			continue
		}
		if _, err := s.cron.AddFunc(sc.spec, s.jobs.Func(sc.job)); err != nil {
			logger.Error("Failed to register job", "job", sc.job, "schedule", sc.spec, "error", err)
			continue
		}
		s.registered = append(s.registered, sc.job)
	}

	logger.Info("Cron jobs registered", "jobs", s.registered)
}

// Registered returns the names of the jobs that have a valid schedule.
func (s *Scheduler) Registered() []string {
	return append([]string(nil), s.registered...)
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop gracefully stops the cron scheduler, waiting for running jobs
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// IsRunning returns true if the scheduler has jobs to run
func (s *Scheduler) IsRunning() bool {
	return len(s.cron.Entries()) > 0
}
