package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"referral-ledger-backend/internal/config"
	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/logger"
	"referral-ledger-backend/internal/service"
)

// Job names, used by the scheduler, the cronjob -run-once flag and the admin API.
const (
	JobRetentionSweep        = "retention_sweep"
	JobExpireInvitations     = "expire_invitations"
	JobReconcileRewards      = "reconcile_rewards"
	JobReconcileAchievements = "reconcile_achievements"
	JobReconcileVerification = "reconcile_verification"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services *Services
	config   *config.Config
	clock    clockwork.Clock
	jobs     map[string]func(ctx context.Context) (*Report, error)
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Invitations  service.InvitationService
	Bonuses      service.BonusService
	Achievements service.AchievementService
}

// Report is the outcome of one job run.
type Report struct {
	Job      string              `json:"job"`
	Sweep    *domain.SweepResult `json:"sweep,omitempty"`
	Expired  int64               `json:"expired,omitempty"`
	Duration time.Duration       `json:"duration_ns"`
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(services *Services, cfg *config.Config, clock clockwork.Clock) *JobRunner {
	jr := &JobRunner{
		services: services,
		config:   cfg,
		clock:    clock,
	}
	jr.jobs = map[string]func(ctx context.Context) (*Report, error){
		JobRetentionSweep:        jr.retentionSweep,
		JobExpireInvitations:     jr.expireInvitations,
		JobReconcileRewards:      jr.reconcileRewards,
		JobReconcileAchievements: jr.reconcileAchievements,
		JobReconcileVerification: jr.reconcileVerification,
	}
	return jr
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// Names lists the registered jobs in a stable order.
func (jr *JobRunner) Names() []string {
	names := make([]string, 0, len(jr.jobs))
	for name := range jr.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one job synchronously and returns its report.
func (jr *JobRunner) Run(ctx context.Context, name string) (*Report, error) {
	job, ok := jr.jobs[name]
	if !ok {
		return nil, fmt.Errorf("unknown job %q: %w", name, domain.ErrValidation)
	}

	start := jr.clock.Now()
	report, err := job(ctx)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", name, err)
	}
	report.Job = name
	report.Duration = jr.clock.Since(start)
	return report, nil
}

// Func adapts a job to the cron callback signature.
func (jr *JobRunner) Func(name string) func() {
	return func() {
		jr.runWithRecovery(name, func() {
			if _, err := jr.Run(context.Background(), name); err != nil {
				logger.Error("Job failed", "job", name, "error", err)
			}
		})
	}
}

// RunAll runs every job once, in name order (for manual execution)
func (jr *JobRunner) RunAll() {
	for _, name := range jr.Names() {
		jr.Func(name)()
	}
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName)
}
