package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/logger"
	"referral-ledger-backend/internal/repository"
)

const membershipColumns = `team_id, user_id, status, invited_by, joined_at, left_at`

type teamRepository struct {
	db *sql.DB
}

func NewTeamRepository(db *sql.DB) repository.TeamRepository {
	return &teamRepository{db: db}
}

func scanMembership(row rowScanner) (*domain.TeamMembership, error) {
	m := &domain.TeamMembership{}
	var invitedBy sql.NullString
	var leftAt sql.NullTime
	if err := row.Scan(&m.TeamID, &m.UserID, &m.Status, &invitedBy, &m.JoinedAt, &leftAt); err != nil {
		return nil, err
	}
	if invitedBy.Valid {
		m.InvitedBy = &invitedBy.String
	}
	if leftAt.Valid {
		t := leftAt.Time
		m.LeftAt = &t
	}
	return m, nil
}

func (r *teamRepository) Create(ctx context.Context, t *domain.Team) error {
	query := `INSERT INTO teams (id, name, owner_id, max_members, member_count, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.Name, t.OwnerID, t.MaxMembers, t.MemberCount, t.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("team %s: %w", t.ID, domain.ErrConflict)
	}
	return err
}

func (r *teamRepository) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	t := &domain.Team{}
	query := `SELECT id, name, owner_id, max_members, member_count, created_at FROM teams WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Name, &t.OwnerID, &t.MaxMembers, &t.MemberCount, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err, "team "+id)
	}
	return t, nil
}

func (r *teamRepository) GetMembership(ctx context.Context, teamID, userID string) (*domain.TeamMembership, error) {
	query := `SELECT ` + membershipColumns + ` FROM team_memberships WHERE team_id = $1 AND user_id = $2`
	m, err := scanMembership(r.db.QueryRowContext(ctx, query, teamID, userID))
	if err != nil {
		return nil, notFound(err, "membership")
	}
	return m, nil
}

func (r *teamRepository) ListMembers(ctx context.Context, teamID string, status domain.MembershipStatus) ([]domain.TeamMembership, error) {
	query := `SELECT ` + membershipColumns + ` FROM team_memberships WHERE team_id = $1`
	args := []any{teamID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY joined_at, user_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.TeamMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// lockTeam reads the team row FOR UPDATE so concurrent joins and leaves on
// the same team serialize.
func lockTeam(ctx context.Context, tx *sql.Tx, teamID string) (maxMembers, memberCount int, err error) {
	query := `SELECT max_members, member_count FROM teams WHERE id = $1 FOR UPDATE`
	err = tx.QueryRowContext(ctx, query, teamID).Scan(&maxMembers, &memberCount)
	return maxMembers, memberCount, notFound(err, "team "+teamID)
}

func lockMembership(ctx context.Context, tx *sql.Tx, teamID, userID string) (*domain.TeamMembership, error) {
	query := `SELECT ` + membershipColumns + ` FROM team_memberships WHERE team_id = $1 AND user_id = $2 FOR UPDATE`
	m, err := scanMembership(tx.QueryRowContext(ctx, query, teamID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *teamRepository) AddMember(ctx context.Context, teamID, userID string, invitedBy *string, now time.Time) (*domain.TeamMembership, error) {
	logger.DatabaseCall("UPSERT", "team_memberships", "team_id", teamID, "user_id", userID)
	var member *domain.TeamMembership
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		member, err = addMemberTx(ctx, tx, teamID, userID, invitedBy, now)
		return err
	})
	if err != nil {
		logger.DatabaseResult("UPSERT", 0, err)
		return nil, err
	}
	logger.DatabaseResult("UPSERT", 1, nil)
	return member, nil
}

// JoinByInvitation accepts a team invitation and adds the member in one
// transaction. The invitation row is locked first, then the team row.
func (r *teamRepository) JoinByInvitation(ctx context.Context, invitationID, teamID, userID string, invitedBy *string, now time.Time) (bool, error) {
	logger.DatabaseCall("UPDATE", "invitations", "invitation_id", invitationID, "team_id", teamID, "user_id", userID)
	var won bool
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		accept := `UPDATE invitations SET status = 'ACCEPTED', receiver_id = $2, accepted_at = $3, updated_at = $3
		           WHERE id = $1 AND status = 'PENDING' AND expires_at >= $3`
		res, err := tx.ExecContext(ctx, accept, invitationID, userID, now)
		if err != nil {
			return err
		}
		if won, err = rowsChanged(res); err != nil || !won {
			return err
		}

		_, err = addMemberTx(ctx, tx, teamID, userID, invitedBy, now)
		if errors.Is(err, domain.ErrAlreadyMember) {
			return nil
		}
		return err
	})
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return false, err
	}
	logger.DatabaseResult("UPDATE", 1, nil)
	return won, nil
}

func addMemberTx(ctx context.Context, tx *sql.Tx, teamID, userID string, invitedBy *string, now time.Time) (*domain.TeamMembership, error) {
	maxMembers, memberCount, err := lockTeam(ctx, tx, teamID)
	if err != nil {
		return nil, err
	}
	existing, err := lockMembership(ctx, tx, teamID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == domain.MembershipStatusActive {
		return nil, fmt.Errorf("user %s in team %s: %w", userID, teamID, domain.ErrAlreadyMember)
	}
	if memberCount >= maxMembers {
		return nil, fmt.Errorf("team %s has %d/%d members: %w", teamID, memberCount, maxMembers, domain.ErrCapacityExceeded)
	}

	upsert := `INSERT INTO team_memberships (` + membershipColumns + `)
	           VALUES ($1, $2, 'ACTIVE', $3, $4, NULL)
	           ON CONFLICT (team_id, user_id) DO UPDATE
	           SET status = 'ACTIVE', invited_by = EXCLUDED.invited_by, joined_at = EXCLUDED.joined_at, left_at = NULL
	           RETURNING ` + membershipColumns
	member, err := scanMembership(tx.QueryRowContext(ctx, upsert, teamID, userID, invitedBy, now))
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE teams SET member_count = member_count + 1 WHERE id = $1`, teamID); err != nil {
		return nil, err
	}
	return member, nil
}

func (r *teamRepository) RemoveMember(ctx context.Context, teamID, userID string, status domain.MembershipStatus, now time.Time) (*domain.TeamMembership, error) {
	if status != domain.MembershipStatusLeft && status != domain.MembershipStatusKicked {
		return nil, fmt.Errorf("membership status %q is not a removal: %w", status, domain.ErrValidation)
	}
	logger.DatabaseCall("UPDATE", "team_memberships", "team_id", teamID, "user_id", userID, "status", status)
	var member *domain.TeamMembership
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, _, err := lockTeam(ctx, tx, teamID); err != nil {
			return err
		}
		existing, err := lockMembership(ctx, tx, teamID, userID)
		if err != nil {
			return err
		}
		if existing == nil || existing.Status != domain.MembershipStatusActive {
			return fmt.Errorf("active membership of %s in team %s: %w", userID, teamID, domain.ErrNotFound)
		}

		update := `UPDATE team_memberships SET status = $3, left_at = $4
		           WHERE team_id = $1 AND user_id = $2
		           RETURNING ` + membershipColumns
		member, err = scanMembership(tx.QueryRowContext(ctx, update, teamID, userID, status, now))
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE teams SET member_count = member_count - 1 WHERE id = $1`, teamID)
		return err
	})
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return nil, err
	}
	logger.DatabaseResult("UPDATE", 1, nil)
	return member, nil
}

func (r *teamRepository) CountActive(ctx context.Context, teamID string) (int, error) {
	var n int
	query := `SELECT count(*) FROM team_memberships WHERE team_id = $1 AND status = 'ACTIVE'`
	err := r.db.QueryRowContext(ctx, query, teamID).Scan(&n)
	return n, err
}
