package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/repository/postgres"
)

func TestPointsRepository_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewPointsRepository(db)
	ctx := context.Background()
	source := "inv-1"
	entry := &domain.PointsEntry{
		ID:          "33333333-3333-3333-3333-333333333333",
		AccountID:   "trainer-1",
		PointType:   domain.PointTypeClientAccepted,
		Points:      10,
		Description: "Client invitation accepted",
		SourceID:    &source,
		CreatedAt:   time.Now().UTC(),
	}

	t.Run("Created", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO points_ledger_entries").
			WithArgs(entry.ID, entry.AccountID, entry.PointType, entry.Points, entry.Description, source, entry.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		created, err := repo.Append(ctx, entry)
		assert.NoError(t, err)
		assert.True(t, created)
	})

	t.Run("DuplicateIsNoop", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO points_ledger_entries").
			WillReturnResult(sqlmock.NewResult(0, 0))

		created, err := repo.Append(ctx, entry)
		assert.NoError(t, err)
		assert.False(t, created)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPointsRepository_Balance(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewPointsRepository(db)

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(points\\), 0\\) FROM points_ledger_entries").
		WithArgs("trainer-1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(135))

	balance, err := repo.Balance(context.Background(), "trainer-1")
	assert.NoError(t, err)
	assert.Equal(t, int64(135), balance)
}

func TestPointsRepository_Summary(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewPointsRepository(db)

	mock.ExpectQuery("SELECT point_type, COALESCE\\(SUM\\(points\\), 0\\), count\\(\\*\\)").
		WithArgs("trainer-1").
		WillReturnRows(sqlmock.NewRows([]string{"point_type", "sum", "count"}).
			AddRow("CLIENT_ACCEPTED", 50, 5).
			AddRow("ACHIEVEMENT_UNLOCK", 50, 1).
			AddRow("PENALTY", -20, 1))

	summary, err := repo.Summary(context.Background(), "trainer-1")
	require.NoError(t, err)
	assert.Equal(t, int64(80), summary.Balance)
	assert.Equal(t, domain.PointTypeTotal{Points: 50, Count: 5}, summary.ByType[domain.PointTypeClientAccepted])
	assert.Equal(t, int64(-20), summary.ByType[domain.PointTypePenalty].Points)
}

func TestPointsRepository_ListEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewPointsRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM points_ledger_entries").
		WithArgs("trainer-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT id, account_id, point_type, points, description, source_id, created_at").
		WithArgs("trainer-1", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "point_type", "points", "description", "source_id", "created_at"}).
			AddRow("e2", "trainer-1", "PENALTY", -5, "late cancel", nil, now).
			AddRow("e1", "trainer-1", "CLIENT_ACCEPTED", 10, "Client invitation accepted", "inv-1", now.Add(-time.Hour)))

	entries, total, err := repo.ListEntries(context.Background(), "trainer-1", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].SourceID)
	require.NotNil(t, entries[1].SourceID)
	assert.Equal(t, "inv-1", *entries[1].SourceID)
}
