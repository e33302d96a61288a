package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/repository"
)

const invitationColumns = `id, code, email, role, team_id, sender_id, receiver_id, message, status, created_at, updated_at, expires_at, accepted_at`

type invitationRepository struct {
	db *sql.DB
}

func NewInvitationRepository(db *sql.DB) repository.InvitationRepository {
	return &invitationRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner) (*domain.Invitation, error) {
	inv := &domain.Invitation{}
	var teamID, receiverID sql.NullString
	var acceptedAt sql.NullTime
	err := row.Scan(&inv.ID, &inv.Code, &inv.Email, &inv.Role, &teamID, &inv.SenderID, &receiverID,
		&inv.Message, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt, &inv.ExpiresAt, &acceptedAt)
	if err != nil {
		return nil, err
	}
	if teamID.Valid {
		inv.TeamID = &teamID.String
	}
	if receiverID.Valid {
		inv.ReceiverID = &receiverID.String
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		inv.AcceptedAt = &t
	}
	return inv, nil
}

func scanInvitations(rows *sql.Rows) ([]domain.Invitation, error) {
	defer rows.Close()
	var invs []domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invs = append(invs, *inv)
	}
	return invs, rows.Err()
}

// teamKey mirrors the COALESCE(team_id::text, '') expression of the pending index.
func teamKey(teamID *string) string {
	if teamID == nil {
		return ""
	}
	return *teamID
}

func (r *invitationRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		expire := `UPDATE invitations SET status = 'EXPIRED', updated_at = $1
		           WHERE email = $2 AND COALESCE(team_id::text, '') = $3 AND status = 'PENDING' AND expires_at < $1`
		if _, err := tx.ExecContext(ctx, expire, inv.CreatedAt, inv.Email, teamKey(inv.TeamID)); err != nil {
			return fmt.Errorf("expire stale invitations: %w", err)
		}

		query := `INSERT INTO invitations (` + invitationColumns + `)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		          ON CONFLICT DO NOTHING`
		res, err := tx.ExecContext(ctx, query, inv.ID, inv.Code, inv.Email, inv.Role, inv.TeamID, inv.SenderID,
			inv.ReceiverID, inv.Message, inv.Status, inv.CreatedAt, inv.UpdatedAt, inv.ExpiresAt, inv.AcceptedAt)
		if err != nil {
			return err
		}
		created, err := rowsChanged(res)
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("pending invitation for %s in %s: %w", inv.Email, inv.Scope(), domain.ErrConflict)
		}
		return nil
	})
}

func (r *invitationRepository) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "invitation "+id)
	}
	return inv, nil
}

func (r *invitationRepository) GetByCode(ctx context.Context, code string) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE code = $1`
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		return nil, notFound(err, "invitation code")
	}
	return inv, nil
}

func (r *invitationRepository) FindPending(ctx context.Context, email string, teamID *string, now time.Time) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations
	          WHERE email = $1 AND COALESCE(team_id::text, '') = $2 AND status = 'PENDING' AND expires_at >= $3
	          LIMIT 1`
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, query, email, teamKey(teamID), now))
	if err != nil {
		return nil, notFound(err, "pending invitation")
	}
	return inv, nil
}

func (r *invitationRepository) ListBySender(ctx context.Context, senderID string, status domain.InvitationStatus, page, pageSize int) ([]domain.Invitation, int, error) {
	where := `WHERE sender_id = $1`
	args := []any{senderID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM invitations `+where, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM invitations %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		invitationColumns, where, n+1, n+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, pageSize, offset(page, pageSize))...)
	if err != nil {
		return nil, 0, err
	}
	invs, err := scanInvitations(rows)
	if err != nil {
		return nil, 0, err
	}
	return invs, count, nil
}

func (r *invitationRepository) MarkAccepted(ctx context.Context, id, receiverID string, now time.Time) (bool, error) {
	query := `UPDATE invitations SET status = 'ACCEPTED', receiver_id = $2, accepted_at = $3, updated_at = $3
	          WHERE id = $1 AND status = 'PENDING' AND expires_at >= $3`
	res, err := r.db.ExecContext(ctx, query, id, receiverID, now)
	if err != nil {
		return false, err
	}
	return rowsChanged(res)
}

func (r *invitationRepository) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `UPDATE invitations SET status = 'EXPIRED', updated_at = $2
	          WHERE id = $1 AND status = 'PENDING' AND expires_at < $2`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, err
	}
	return rowsChanged(res)
}

func (r *invitationRepository) MarkRevoked(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `UPDATE invitations SET status = 'REVOKED', updated_at = $2 WHERE id = $1 AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, err
	}
	return rowsChanged(res)
}

func (r *invitationRepository) Reopen(ctx context.Context, id string, expiresAt, now time.Time) (bool, error) {
	var reopened bool
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		expire := `UPDATE invitations AS other SET status = 'EXPIRED', updated_at = $2
		           FROM invitations AS target
		           WHERE target.id = $1 AND other.id <> target.id AND other.email = target.email
		             AND COALESCE(other.team_id::text, '') = COALESCE(target.team_id::text, '')
		             AND other.status = 'PENDING' AND other.expires_at < $2`
		if _, err := tx.ExecContext(ctx, expire, id, now); err != nil {
			return fmt.Errorf("expire stale invitations: %w", err)
		}

		query := `UPDATE invitations SET status = 'PENDING', expires_at = $2, updated_at = $3
		          WHERE id = $1 AND status <> 'ACCEPTED'`
		res, err := tx.ExecContext(ctx, query, id, expiresAt, now)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("another invitation is pending for this email: %w", domain.ErrConflict)
			}
			return err
		}
		reopened, err = rowsChanged(res)
		return err
	})
	return reopened, err
}

func (r *invitationRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE invitations SET status = 'EXPIRED', updated_at = $1 WHERE status = 'PENDING' AND expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *invitationRepository) CountAcceptedBySender(ctx context.Context, senderID string) (domain.InvitationStats, error) {
	var stats domain.InvitationStats
	query := `SELECT role, count(*) FROM invitations WHERE sender_id = $1 AND status = 'ACCEPTED' GROUP BY role`
	rows, err := r.db.QueryContext(ctx, query, senderID)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var role domain.InvitationRole
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return stats, err
		}
		switch role {
		case domain.InvitationRoleTrainer:
			stats.TrainerAccepted = n
		case domain.InvitationRoleClient:
			stats.ClientAccepted = n
		}
	}
	return stats, rows.Err()
}

func (r *invitationRepository) ListAcceptedBetween(ctx context.Context, from, to time.Time) ([]domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations
	          WHERE status = 'ACCEPTED' AND accepted_at >= $1 AND accepted_at <= $2
	          ORDER BY accepted_at, id`
	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	return scanInvitations(rows)
}

func (r *invitationRepository) FindAcceptedByReceiver(ctx context.Context, receiverID string, role domain.InvitationRole) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations
	          WHERE receiver_id = $1 AND role = $2 AND status = 'ACCEPTED'
	          ORDER BY accepted_at LIMIT 1`
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, query, receiverID, role))
	if err != nil {
		return nil, notFound(err, "accepted invitation for "+receiverID)
	}
	return inv, nil
}

func (r *invitationRepository) ListSendersWithAccepted(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT sender_id FROM invitations WHERE status = 'ACCEPTED' ORDER BY sender_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
