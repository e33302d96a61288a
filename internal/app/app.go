// Package app wires the store, services and background workers from config.
// cmd/server and cmd/cronjob share it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"

	"referral-ledger-backend/internal/config"
	"referral-ledger-backend/internal/jobs"
	"referral-ledger-backend/internal/logger"
	"referral-ledger-backend/internal/repository"
	"referral-ledger-backend/internal/repository/memory"
	"referral-ledger-backend/internal/repository/postgres"
	"referral-ledger-backend/internal/security"
	"referral-ledger-backend/internal/service"
)

// Store is the part of a backing store the process needs beyond the
// repositories.
type Store interface {
	Ping(ctx context.Context) error
}

type repositories struct {
	invitations  repository.InvitationRepository
	points       repository.PointsRepository
	achievements repository.AchievementRepository
	teams        repository.TeamRepository
	accounts     repository.AccountDirectory
	activity     repository.ActivityLog
}

type App struct {
	Config *config.Config
	Clock  clockwork.Clock
	Store  Store
	Tokens security.TokenManager

	Points       service.PointsService
	Achievements service.AchievementService
	Invitations  service.InvitationService
	Bonuses      service.BonusService
	Teams        service.TeamService
	EmailQueue   *service.EmailQueue
	Jobs         *jobs.JobRunner

	db *sql.DB
}

// New opens the configured store and builds every service on top of it.
func New(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*App, error) {
	a := &App{Config: cfg, Clock: clock}

	repos, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	mailer := service.NewMailer(cfg.Email)
	a.EmailQueue = service.NewEmailQueue(mailer, cfg.Email.Workers, cfg.Email.QueueSize, cfg.Email.MaxRetries, clock)
	email := service.NewEmailService(a.EmailQueue, cfg.App)

	a.Points = service.NewPointsService(repos.points, repos.accounts, clock)
	a.Achievements = service.NewAchievementService(repos.invitations, repos.achievements, repos.accounts, clock)
	a.Invitations = service.NewInvitationService(repos.invitations, repos.teams, repos.accounts,
		a.Points, a.Achievements, email, clock, cfg.Invitations, cfg.Rewards)
	a.Bonuses = service.NewBonusService(repos.invitations, repos.accounts, repos.activity, a.Points, clock, cfg.Rewards)
	a.Teams = service.NewTeamService(repos.teams, repos.accounts, clock)

	a.Jobs = jobs.NewJobRunner(&jobs.Services{
		Invitations:  a.Invitations,
		Bonuses:      a.Bonuses,
		Achievements: a.Achievements,
	}, cfg, clock)
	a.Tokens = security.NewTokenManager(cfg.JWT.Secret, time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute, clock)

	logger.Info("Services initialized", "storage", cfg.Storage.Type, "email_provider", cfg.Email.Provider)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (*repositories, error) {
	cfg := a.Config
	if cfg.Storage.Type == "memory" {
		logger.Warn("Using in-memory store, data is lost on restart")
		store := memory.NewStore()
		a.Store = store
		return &repositories{
			invitations:  store.InvitationRepository,
			points:       store.PointsRepository,
			achievements: store.AchievementRepository,
			teams:        store.TeamRepository,
			accounts:     store.AccountDirectory,
			activity:     store.ActivityLog,
		}, nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store := postgres.NewStore(db)
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.Migrate {
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
		logger.Info("Database schema applied")
	}

	a.db = db
	a.Store = store
	return &repositories{
		invitations:  store.InvitationRepository,
		points:       store.PointsRepository,
		achievements: store.AchievementRepository,
		teams:        store.TeamRepository,
		accounts:     store.AccountDirectory,
		activity:     store.ActivityLog,
	}, nil
}

// Close releases the database connection, if any.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
