package domain

import "time"

type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerID     string    `json:"owner_id"`
	MaxMembers  int       `json:"max_members"`
	MemberCount int       `json:"member_count"` // Count of ACTIVE memberships
	CreatedAt   time.Time `json:"created_at"`
}

func (t *Team) Full() bool {
	return t.MemberCount >= t.MaxMembers
}

type MembershipStatus string

const (
	MembershipStatusActive  MembershipStatus = "ACTIVE"
	MembershipStatusLeft    MembershipStatus = "LEFT"
	MembershipStatusKicked  MembershipStatus = "KICKED"
	MembershipStatusPending MembershipStatus = "PENDING" // invited, no account yet
)

type TeamMembership struct {
	TeamID    string           `json:"team_id"`
	UserID    string           `json:"user_id"`
	Status    MembershipStatus `json:"status"`
	InvitedBy *string          `json:"invited_by,omitempty"`
	JoinedAt  time.Time        `json:"joined_at"`
	LeftAt    *time.Time       `json:"left_at,omitempty"`
}
