package postgres

import (
	"context"
	"database/sql"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/logger"
	"referral-ledger-backend/internal/repository"
)

type pointsRepository struct {
	db *sql.DB
}

func NewPointsRepository(db *sql.DB) repository.PointsRepository {
	return &pointsRepository{db: db}
}

// appendEntry relies on points_ledger_idempotency_uq: a duplicate keyed entry
// inserts nothing and reports false.
func appendEntry(ctx context.Context, ex execer, e *domain.PointsEntry) (bool, error) {
	query := `INSERT INTO points_ledger_entries (id, account_id, point_type, points, description, source_id, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT DO NOTHING`
	res, err := ex.ExecContext(ctx, query, e.ID, e.AccountID, e.PointType, e.Points, e.Description, e.SourceID, e.CreatedAt)
	if err != nil {
		return false, err
	}
	return rowsChanged(res)
}

func (r *pointsRepository) Append(ctx context.Context, entry *domain.PointsEntry) (bool, error) {
	logger.DatabaseCall("INSERT", "points_ledger_entries", "account_id", entry.AccountID, "point_type", entry.PointType)
	created, err := appendEntry(ctx, r.db, entry)
	if err != nil {
		logger.DatabaseResult("INSERT", 0, err)
		return false, err
	}
	if created {
		logger.DatabaseResult("INSERT", 1, nil)
	}
	return created, nil
}

func (r *pointsRepository) Exists(ctx context.Context, accountID string, pointType domain.PointType, sourceID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM points_ledger_entries WHERE account_id = $1 AND point_type = $2 AND source_id = $3)`
	err := r.db.QueryRowContext(ctx, query, accountID, pointType, sourceID).Scan(&exists)
	return exists, err
}

func (r *pointsRepository) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	query := `SELECT COALESCE(SUM(points), 0) FROM points_ledger_entries WHERE account_id = $1`
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&balance)
	return balance, err
}

func (r *pointsRepository) ListEntries(ctx context.Context, accountID string, page, pageSize int) ([]domain.PointsEntry, int, error) {
	var count int
	countQuery := `SELECT count(*) FROM points_ledger_entries WHERE account_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, accountID).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, account_id, point_type, points, description, source_id, created_at
	          FROM points_ledger_entries WHERE account_id = $1
	          ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, accountID, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []domain.PointsEntry
	for rows.Next() {
		var e domain.PointsEntry
		var sourceID sql.NullString
		if err := rows.Scan(&e.ID, &e.AccountID, &e.PointType, &e.Points, &e.Description, &sourceID, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		if sourceID.Valid {
			e.SourceID = &sourceID.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, count, nil
}

// Summary groups the ledger by type in one statement so the balance equals the
// sum of the per-type totals.
func (r *pointsRepository) Summary(ctx context.Context, accountID string) (*domain.PointsSummary, error) {
	query := `SELECT point_type, COALESCE(SUM(points), 0), count(*)
	          FROM points_ledger_entries WHERE account_id = $1 GROUP BY point_type`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &domain.PointsSummary{
		AccountID: accountID,
		ByType:    make(map[domain.PointType]domain.PointTypeTotal),
	}
	for rows.Next() {
		var pt domain.PointType
		var total domain.PointTypeTotal
		if err := rows.Scan(&pt, &total.Points, &total.Count); err != nil {
			return nil, err
		}
		summary.ByType[pt] = total
		summary.Balance += total.Points
	}
	return summary, rows.Err()
}
