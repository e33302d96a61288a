package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/logger"
	"referral-ledger-backend/internal/repository"
)

type achievementRepository struct {
	db *sql.DB
}

func NewAchievementRepository(db *sql.DB) repository.AchievementRepository {
	return &achievementRepository{db: db}
}

func (r *achievementRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.Achievement, error) {
	query := `SELECT account_id, achievement_type, unlocked_at, points_awarded
	          FROM achievements WHERE account_id = $1 ORDER BY unlocked_at, achievement_type`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var achievements []domain.Achievement
	for rows.Next() {
		var a domain.Achievement
		if err := rows.Scan(&a.AccountID, &a.Type, &a.UnlockedAt, &a.PointsAwarded); err != nil {
			return nil, err
		}
		achievements = append(achievements, a)
	}
	return achievements, rows.Err()
}

func (r *achievementRepository) Unlock(ctx context.Context, a *domain.Achievement, entry *domain.PointsEntry) (bool, error) {
	logger.DatabaseCall("INSERT", "achievements", "account_id", a.AccountID, "achievement", a.Type)
	var unlocked bool
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `INSERT INTO achievements (account_id, achievement_type, unlocked_at, points_awarded)
		          VALUES ($1, $2, $3, $4)
		          ON CONFLICT (account_id, achievement_type) DO NOTHING`
		res, err := tx.ExecContext(ctx, query, a.AccountID, a.Type, a.UnlockedAt, a.PointsAwarded)
		if err != nil {
			return err
		}
		if unlocked, err = rowsChanged(res); err != nil || !unlocked {
			return err
		}
		if _, err := appendEntry(ctx, tx, entry); err != nil {
			return fmt.Errorf("append unlock reward: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.DatabaseResult("INSERT", 0, err)
		return false, err
	}
	return unlocked, nil
}
