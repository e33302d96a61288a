package postgres

import (
	"context"
	"database/sql"
	"time"

	"referral-ledger-backend/internal/repository"
)

type activityLog struct {
	db *sql.DB
}

func NewActivityLog(db *sql.DB) repository.ActivityLog {
	return &activityLog{db: db}
}

func (r *activityLog) HasRecentActivity(ctx context.Context, accountID string, since time.Time) (bool, error) {
	var active bool
	query := `SELECT EXISTS (SELECT 1 FROM workout_logs WHERE account_id = $1 AND logged_at >= $2)`
	err := r.db.QueryRowContext(ctx, query, accountID, since).Scan(&active)
	return active, err
}
