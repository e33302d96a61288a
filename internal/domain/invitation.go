package domain

import (
	"regexp"
	"strings"
	"time"
)

type InvitationRole string

const (
	InvitationRoleClient  InvitationRole = "CLIENT"
	InvitationRoleTrainer InvitationRole = "TRAINER"
)

func (r InvitationRole) Valid() bool {
	return r == InvitationRoleClient || r == InvitationRoleTrainer
}

type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "PENDING"
	InvitationStatusAccepted InvitationStatus = "ACCEPTED"
	InvitationStatusRevoked  InvitationStatus = "REVOKED"
	InvitationStatusExpired  InvitationStatus = "EXPIRED"
)

// PlatformScope is the scope key of invitations that are not bound to a team.
const PlatformScope = "platform"

type Invitation struct {
	ID         string           `json:"id"`
	Code       string           `json:"code"`
	Email      string           `json:"email"`
	Role       InvitationRole   `json:"role"`
	TeamID     *string          `json:"team_id,omitempty"`
	SenderID   string           `json:"sender_id"`
	ReceiverID *string          `json:"receiver_id,omitempty"`
	Message    string           `json:"message,omitempty"`
	Status     InvitationStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	ExpiresAt  time.Time        `json:"expires_at"`
	AcceptedAt *time.Time       `json:"accepted_at,omitempty"`
}

// IsExpired reports whether the invitation is past its expiry at now.
// Only meaningful while the invitation is PENDING.
func (i *Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

func (i *Invitation) IsTeamScoped() bool {
	return i.TeamID != nil && *i.TeamID != ""
}

// Scope returns the key the pending-uniqueness invariant is enforced on
// together with the email.
func (i *Invitation) Scope() string {
	return InvitationScope(i.TeamID)
}

func InvitationScope(teamID *string) string {
	if teamID == nil || *teamID == "" {
		return PlatformScope
	}
	return "team:" + *teamID
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// InviteOutcome is the per-email result of a bulk invitation request.
type InviteOutcome string

const (
	InviteOutcomeCreated                  InviteOutcome = "CREATED"
	InviteOutcomeSkippedAlreadyInvited    InviteOutcome = "SKIPPED_ALREADY_INVITED"
	InviteOutcomeSkippedAlreadyRegistered InviteOutcome = "SKIPPED_ALREADY_REGISTERED"
	InviteOutcomeSkippedAlreadyMember     InviteOutcome = "SKIPPED_ALREADY_MEMBER"
	InviteOutcomeInvalidEmail             InviteOutcome = "INVALID_EMAIL"
)

type InviteResult struct {
	Email      string        `json:"email"`
	Outcome    InviteOutcome `json:"outcome"`
	Invitation *Invitation   `json:"invitation,omitempty"`
}

type BulkInviteResult struct {
	Results []InviteResult `json:"results"`
	Created int            `json:"created"`
	Skipped int            `json:"skipped"`
	Invalid int            `json:"invalid"`
}

func (r *BulkInviteResult) Add(res InviteResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case InviteOutcomeCreated:
		r.Created++
	case InviteOutcomeInvalidEmail:
		r.Invalid++
	default:
		r.Skipped++
	}
}

type InviteRequest struct {
	SenderID string         `json:"sender_id"`
	Emails   []string       `json:"emails"`
	Role     InvitationRole `json:"role"`
	TeamID   *string        `json:"team_id,omitempty"`
	Message  string         `json:"message,omitempty"`
	TTLDays  int            `json:"ttl_days"`
}

// AcceptResult describes the outcome of an acceptance attempt. AlreadyAccepted
// is set when the invitation had already been accepted, either earlier or by a
// concurrent caller that won the transition.
type AcceptResult struct {
	Invitation      *Invitation       `json:"invitation"`
	AlreadyAccepted bool              `json:"already_accepted"`
	Reward          *PointsEntry      `json:"reward,omitempty"`
	Unlocked        []AchievementType `json:"unlocked,omitempty"`
}
