package postgres

import (
	"context"
	"database/sql"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/repository"
)

type accountDirectory struct {
	db *sql.DB
}

func NewAccountDirectory(db *sql.DB) repository.AccountDirectory {
	return &accountDirectory{db: db}
}

func (r *accountDirectory) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	a := &domain.Account{}
	query := `SELECT id, email, name, role, status, trainer_verified FROM accounts WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.Email, &a.Name, &a.Role, &a.Status, &a.TrainerVerified)
	if err != nil {
		return nil, notFound(err, "account "+id)
	}
	return a, nil
}

func (r *accountDirectory) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	a := &domain.Account{}
	query := `SELECT id, email, name, role, status, trainer_verified FROM accounts WHERE LOWER(email) = LOWER($1)`
	err := r.db.QueryRowContext(ctx, query, email).Scan(&a.ID, &a.Email, &a.Name, &a.Role, &a.Status, &a.TrainerVerified)
	if err != nil {
		return nil, notFound(err, "account with email")
	}
	return a, nil
}
