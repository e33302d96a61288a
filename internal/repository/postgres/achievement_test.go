package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/repository/postgres"
)

func TestAchievementRepository_Unlock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewAchievementRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	source := string(domain.AchievementRookieRecruiter)
	achievement := &domain.Achievement{AccountID: "trainer-1", Type: domain.AchievementRookieRecruiter, UnlockedAt: now, PointsAwarded: 50}
	entry := &domain.PointsEntry{ID: "e1", AccountID: "trainer-1", PointType: domain.PointTypeAchievementUnlock, Points: 50, Description: "Achievement unlocked: Rookie Recruiter", SourceID: &source, CreatedAt: now}

	t.Run("WritesRowAndReward", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO achievements").
			WithArgs("trainer-1", domain.AchievementRookieRecruiter, now, 50).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO points_ledger_entries").
			WithArgs("e1", "trainer-1", domain.PointTypeAchievementUnlock, 50, entry.Description, source, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		unlocked, err := repo.Unlock(ctx, achievement, entry)
		assert.NoError(t, err)
		assert.True(t, unlocked)
	})

	t.Run("AlreadyUnlocked", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO achievements").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		unlocked, err := repo.Unlock(ctx, achievement, entry)
		assert.NoError(t, err)
		assert.False(t, unlocked)
	})

	t.Run("LedgerFailureRollsBack", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO achievements").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO points_ledger_entries").
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		unlocked, err := repo.Unlock(ctx, achievement, entry)
		assert.Error(t, err)
		assert.False(t, unlocked)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
