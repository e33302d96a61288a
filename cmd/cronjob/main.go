package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"referral-ledger-backend/internal/app"
	"referral-ledger-backend/internal/config"
	"referral-ledger-backend/internal/jobs"
	"referral-ledger-backend/internal/logger"
	"referral-ledger-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'retention_sweep', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting referral ledger cronjob runner...", "log_level", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, clockwork.NewRealClock())
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.Close()

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if err := runJobOnce(ctx, a.Jobs, *runOnce); err != nil {
			logger.Error("Job failed", "job", *runOnce, "error", err)
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	queueDone := make(chan struct{})
	go func() {
		_ = a.EmailQueue.Run(ctx)
		close(queueDone)
	}()

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(a.Jobs)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	<-queueDone
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job, or all of them, synchronously
func runJobOnce(ctx context.Context, jobRunner *jobs.JobRunner, jobName string) error {
	if jobName == "all" {
		jobRunner.RunAll()
		return nil
	}

	report, err := jobRunner.Run(ctx, jobName)
	if err != nil {
		fmt.Printf("Available jobs:\n")
		for _, name := range jobRunner.Names() {
			fmt.Printf("  - %s\n", name)
		}
		fmt.Printf("  - all\n")
		return err
	}
	if report.Sweep != nil {
		fmt.Printf("%s: candidates=%d awarded=%d skipped=%d failed=%d (%s)\n", report.Job,
			report.Sweep.Candidates, report.Sweep.Awarded, report.Sweep.Skipped, report.Sweep.Failed, report.Duration)
	} else {
		fmt.Printf("%s: expired=%d (%s)\n", report.Job, report.Expired, report.Duration)
	}
	return nil
}
