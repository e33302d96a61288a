// Package memory is an in-process implementation of the repository
// interfaces. It enforces the same uniqueness and atomicity rules as the
// Postgres schema and backs local runs and service tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/repository"
)

type ledgerKey struct {
	accountID string
	pointType domain.PointType
	sourceID  string
}

type achievementKey struct {
	accountID string
	kind      domain.AchievementType
}

type membershipKey struct {
	teamID string
	userID string
}

// state is shared by every repository of a Store; one mutex covers all of
// it so multi-row changes are atomic.
type state struct {
	mu           sync.Mutex
	invitations  map[string]*domain.Invitation
	ledger       []domain.PointsEntry
	ledgerKeys   map[ledgerKey]struct{}
	achievements map[achievementKey]domain.Achievement
	teams        map[string]*domain.Team
	memberships  map[membershipKey]*domain.TeamMembership
	accounts     map[string]*domain.Account
	activity     map[string][]time.Time
}

type Store struct {
	state *state
	repository.InvitationRepository
	repository.PointsRepository
	repository.AchievementRepository
	repository.TeamRepository
	repository.AccountDirectory
	repository.ActivityLog
}

func NewStore() *Store {
	s := &state{
		invitations:  make(map[string]*domain.Invitation),
		ledgerKeys:   make(map[ledgerKey]struct{}),
		achievements: make(map[achievementKey]domain.Achievement),
		teams:        make(map[string]*domain.Team),
		memberships:  make(map[membershipKey]*domain.TeamMembership),
		accounts:     make(map[string]*domain.Account),
		activity:     make(map[string][]time.Time),
	}
	return &Store{
		state:                 s,
		InvitationRepository:  &invitationRepository{s},
		PointsRepository:      &pointsRepository{s},
		AchievementRepository: &achievementRepository{s},
		TeamRepository:        &teamRepository{s},
		AccountDirectory:      &accountDirectory{s},
		ActivityLog:           &activityLog{s},
	}
}

// Ping always succeeds.
func (st *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// PutAccount registers or replaces an account in the directory.
func (st *Store) PutAccount(a domain.Account) {
	st.state.mu.Lock()
	defer st.state.mu.Unlock()
	a.Email = domain.NormalizeEmail(a.Email)
	st.state.accounts[a.ID] = &a
}

// RecordActivity logs a workout for the account at the given time.
func (st *Store) RecordActivity(accountID string, at time.Time) {
	st.state.mu.Lock()
	defer st.state.mu.Unlock()
	st.state.activity[accountID] = append(st.state.activity[accountID], at)
}

// Entries returns a copy of every ledger entry in insertion order.
func (st *Store) Entries() []domain.PointsEntry {
	st.state.mu.Lock()
	defer st.state.mu.Unlock()
	return append([]domain.PointsEntry(nil), st.state.ledger...)
}

func teamKey(teamID *string) string {
	if teamID == nil {
		return ""
	}
	return *teamID
}

func paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		return nil
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

type invitationRepository struct{ s *state }

func (r *invitationRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	scope := teamKey(inv.TeamID)
	for _, other := range r.s.invitations {
		if other.Code == inv.Code || other.ID == inv.ID {
			return fmt.Errorf("invitation %s: %w", inv.ID, domain.ErrConflict)
		}
		if other.Email != inv.Email || teamKey(other.TeamID) != scope || other.Status != domain.InvitationStatusPending {
			continue
		}
		if other.ExpiresAt.Before(inv.CreatedAt) {
			other.Status = domain.InvitationStatusExpired
			other.UpdatedAt = inv.CreatedAt
			continue
		}
		return fmt.Errorf("pending invitation for %s in %s: %w", inv.Email, inv.Scope(), domain.ErrConflict)
	}
	stored := *inv
	r.s.invitations[inv.ID] = &stored
	return nil
}

func (r *invitationRepository) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invitations[id]
	if !ok {
		return nil, fmt.Errorf("invitation %s: %w", id, domain.ErrNotFound)
	}
	out := *inv
	return &out, nil
}

func (r *invitationRepository) GetByCode(ctx context.Context, code string) (*domain.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inv := range r.s.invitations {
		if inv.Code == code {
			out := *inv
			return &out, nil
		}
	}
	return nil, fmt.Errorf("invitation code: %w", domain.ErrNotFound)
}

func (r *invitationRepository) FindPending(ctx context.Context, email string, teamID *string, now time.Time) (*domain.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	scope := teamKey(teamID)
	for _, inv := range r.s.invitations {
		if inv.Email == email && teamKey(inv.TeamID) == scope &&
			inv.Status == domain.InvitationStatusPending && !inv.ExpiresAt.Before(now) {
			out := *inv
			return &out, nil
		}
	}
	return nil, fmt.Errorf("pending invitation: %w", domain.ErrNotFound)
}

func (r *invitationRepository) ListBySender(ctx context.Context, senderID string, status domain.InvitationStatus, page, pageSize int) ([]domain.Invitation, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var matched []domain.Invitation
	for _, inv := range r.s.invitations {
		if inv.SenderID == senderID && (status == "" || inv.Status == status) {
			matched = append(matched, *inv)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return paginate(matched, page, pageSize), len(matched), nil
}

func (r *invitationRepository) MarkAccepted(ctx context.Context, id, receiverID string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invitations[id]
	if !ok || inv.Status != domain.InvitationStatusPending || inv.ExpiresAt.Before(now) {
		return false, nil
	}
	at := now
	receiver := receiverID
	inv.Status = domain.InvitationStatusAccepted
	inv.ReceiverID = &receiver
	inv.AcceptedAt = &at
	inv.UpdatedAt = now
	return true, nil
}

func (r *invitationRepository) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invitations[id]
	if !ok || inv.Status != domain.InvitationStatusPending || !inv.ExpiresAt.Before(now) {
		return false, nil
	}
	inv.Status = domain.InvitationStatusExpired
	inv.UpdatedAt = now
	return true, nil
}

func (r *invitationRepository) MarkRevoked(ctx context.Context, id string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invitations[id]
	if !ok || inv.Status != domain.InvitationStatusPending {
		return false, nil
	}
	inv.Status = domain.InvitationStatusRevoked
	inv.UpdatedAt = now
	return true, nil
}

func (r *invitationRepository) Reopen(ctx context.Context, id string, expiresAt, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invitations[id]
	if !ok || inv.Status == domain.InvitationStatusAccepted {
		return false, nil
	}
	scope := teamKey(inv.TeamID)
	for _, other := range r.s.invitations {
		if other.ID == id || other.Email != inv.Email || teamKey(other.TeamID) != scope || other.Status != domain.InvitationStatusPending {
			continue
		}
		if other.ExpiresAt.Before(now) {
			other.Status = domain.InvitationStatusExpired
			other.UpdatedAt = now
			continue
		}
		return false, fmt.Errorf("another invitation is pending for this email: %w", domain.ErrConflict)
	}
	inv.Status = domain.InvitationStatusPending
	inv.ExpiresAt = expiresAt
	inv.UpdatedAt = now
	return true, nil
}

func (r *invitationRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, inv := range r.s.invitations {
		if inv.Status == domain.InvitationStatusPending && inv.ExpiresAt.Before(now) {
			inv.Status = domain.InvitationStatusExpired
			inv.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *invitationRepository) CountAcceptedBySender(ctx context.Context, senderID string) (domain.InvitationStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var stats domain.InvitationStats
	for _, inv := range r.s.invitations {
		if inv.SenderID != senderID || inv.Status != domain.InvitationStatusAccepted {
			continue
		}
		switch inv.Role {
		case domain.InvitationRoleTrainer:
			stats.TrainerAccepted++
		case domain.InvitationRoleClient:
			stats.ClientAccepted++
		}
	}
	return stats, nil
}

func (r *invitationRepository) ListAcceptedBetween(ctx context.Context, from, to time.Time) ([]domain.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Invitation
	for _, inv := range r.s.invitations {
		if inv.Status != domain.InvitationStatusAccepted || inv.AcceptedAt == nil {
			continue
		}
		if inv.AcceptedAt.Before(from) || inv.AcceptedAt.After(to) {
			continue
		}
		out = append(out, *inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AcceptedAt.Equal(*out[j].AcceptedAt) {
			return out[i].AcceptedAt.Before(*out[j].AcceptedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *invitationRepository) FindAcceptedByReceiver(ctx context.Context, receiverID string, role domain.InvitationRole) (*domain.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *domain.Invitation
	for _, inv := range r.s.invitations {
		if inv.Status != domain.InvitationStatusAccepted || inv.Role != role || inv.ReceiverID == nil || *inv.ReceiverID != receiverID {
			continue
		}
		if found == nil || inv.AcceptedAt.Before(*found.AcceptedAt) {
			found = inv
		}
	}
	if found == nil {
		return nil, fmt.Errorf("accepted invitation for %s: %w", receiverID, domain.ErrNotFound)
	}
	out := *found
	return &out, nil
}

func (r *invitationRepository) ListSendersWithAccepted(ctx context.Context) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := make(map[string]struct{})
	var ids []string
	for _, inv := range r.s.invitations {
		if inv.Status != domain.InvitationStatusAccepted {
			continue
		}
		if _, ok := seen[inv.SenderID]; !ok {
			seen[inv.SenderID] = struct{}{}
			ids = append(ids, inv.SenderID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type pointsRepository struct{ s *state }

// appendLocked mirrors the partial unique index: only keyed types with a
// source are deduplicated. Callers hold s.mu.
func (s *state) appendLocked(e *domain.PointsEntry) bool {
	if e.PointType.Keyed() && e.SourceID != nil {
		key := ledgerKey{e.AccountID, e.PointType, *e.SourceID}
		if _, dup := s.ledgerKeys[key]; dup {
			return false
		}
		s.ledgerKeys[key] = struct{}{}
	}
	s.ledger = append(s.ledger, *e)
	return true
}

func (r *pointsRepository) Append(ctx context.Context, entry *domain.PointsEntry) (bool, error) {
	if entry.Points == 0 || strings.TrimSpace(entry.Description) == "" {
		return false, fmt.Errorf("ledger entry rejected: %w", domain.ErrValidation)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.appendLocked(entry), nil
}

func (r *pointsRepository) Exists(ctx context.Context, accountID string, pointType domain.PointType, sourceID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.ledger {
		if e.AccountID == accountID && e.PointType == pointType && e.SourceID != nil && *e.SourceID == sourceID {
			return true, nil
		}
	}
	return false, nil
}

func (r *pointsRepository) Balance(ctx context.Context, accountID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var balance int64
	for _, e := range r.s.ledger {
		if e.AccountID == accountID {
			balance += int64(e.Points)
		}
	}
	return balance, nil
}

func (r *pointsRepository) ListEntries(ctx context.Context, accountID string, page, pageSize int) ([]domain.PointsEntry, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var entries []domain.PointsEntry
	for i := len(r.s.ledger) - 1; i >= 0; i-- {
		if r.s.ledger[i].AccountID == accountID {
			entries = append(entries, r.s.ledger[i])
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return paginate(entries, page, pageSize), len(entries), nil
}

func (r *pointsRepository) Summary(ctx context.Context, accountID string) (*domain.PointsSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	summary := &domain.PointsSummary{
		AccountID: accountID,
		ByType:    make(map[domain.PointType]domain.PointTypeTotal),
	}
	for _, e := range r.s.ledger {
		if e.AccountID != accountID {
			continue
		}
		total := summary.ByType[e.PointType]
		total.Points += int64(e.Points)
		total.Count++
		summary.ByType[e.PointType] = total
		summary.Balance += int64(e.Points)
	}
	return summary, nil
}

type achievementRepository struct{ s *state }

func (r *achievementRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.Achievement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Achievement
	for k, a := range r.s.achievements {
		if k.accountID == accountID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UnlockedAt.Equal(out[j].UnlockedAt) {
			return out[i].UnlockedAt.Before(out[j].UnlockedAt)
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

func (r *achievementRepository) Unlock(ctx context.Context, a *domain.Achievement, entry *domain.PointsEntry) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := achievementKey{a.AccountID, a.Type}
	if _, ok := r.s.achievements[key]; ok {
		return false, nil
	}
	r.s.achievements[key] = *a
	r.s.appendLocked(entry)
	return true, nil
}

type teamRepository struct{ s *state }

func (r *teamRepository) Create(ctx context.Context, t *domain.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.teams[t.ID]; ok {
		return fmt.Errorf("team %s: %w", t.ID, domain.ErrConflict)
	}
	stored := *t
	r.s.teams[t.ID] = &stored
	return nil
}

func (r *teamRepository) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.teams[id]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", id, domain.ErrNotFound)
	}
	out := *t
	return &out, nil
}

func (r *teamRepository) GetMembership(ctx context.Context, teamID, userID string) (*domain.TeamMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memberships[membershipKey{teamID, userID}]
	if !ok {
		return nil, fmt.Errorf("membership: %w", domain.ErrNotFound)
	}
	out := *m
	return &out, nil
}

func (r *teamRepository) ListMembers(ctx context.Context, teamID string, status domain.MembershipStatus) ([]domain.TeamMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.TeamMembership
	for k, m := range r.s.memberships {
		if k.teamID == teamID && (status == "" || m.Status == status) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r *teamRepository) AddMember(ctx context.Context, teamID, userID string, invitedBy *string, now time.Time) (*domain.TeamMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, err := r.s.addMemberLocked(teamID, userID, invitedBy, now)
	if err != nil {
		return nil, err
	}
	out := *m
	return &out, nil
}

func (r *teamRepository) JoinByInvitation(ctx context.Context, invitationID, teamID, userID string, invitedBy *string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invitations[invitationID]
	if !ok || inv.Status != domain.InvitationStatusPending || inv.ExpiresAt.Before(now) {
		return false, nil
	}
	if _, err := r.s.addMemberLocked(teamID, userID, invitedBy, now); err != nil && !errors.Is(err, domain.ErrAlreadyMember) {
		return false, err
	}
	at := now
	receiver := userID
	inv.Status = domain.InvitationStatusAccepted
	inv.ReceiverID = &receiver
	inv.AcceptedAt = &at
	inv.UpdatedAt = now
	return true, nil
}

// addMemberLocked activates a membership within capacity. Callers hold s.mu.
func (s *state) addMemberLocked(teamID, userID string, invitedBy *string, now time.Time) (*domain.TeamMembership, error) {
	t, ok := s.teams[teamID]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", teamID, domain.ErrNotFound)
	}
	key := membershipKey{teamID, userID}
	if m, ok := s.memberships[key]; ok && m.Status == domain.MembershipStatusActive {
		return nil, fmt.Errorf("user %s in team %s: %w", userID, teamID, domain.ErrAlreadyMember)
	}
	if t.Full() {
		return nil, fmt.Errorf("team %s has %d/%d members: %w", teamID, t.MemberCount, t.MaxMembers, domain.ErrCapacityExceeded)
	}
	m := &domain.TeamMembership{
		TeamID:    teamID,
		UserID:    userID,
		Status:    domain.MembershipStatusActive,
		InvitedBy: invitedBy,
		JoinedAt:  now,
	}
	s.memberships[key] = m
	t.MemberCount++
	return m, nil
}

func (r *teamRepository) RemoveMember(ctx context.Context, teamID, userID string, status domain.MembershipStatus, now time.Time) (*domain.TeamMembership, error) {
	if status != domain.MembershipStatusLeft && status != domain.MembershipStatusKicked {
		return nil, fmt.Errorf("membership status %q is not a removal: %w", status, domain.ErrValidation)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.teams[teamID]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", teamID, domain.ErrNotFound)
	}
	m, ok := r.s.memberships[membershipKey{teamID, userID}]
	if !ok || m.Status != domain.MembershipStatusActive {
		return nil, fmt.Errorf("active membership of %s in team %s: %w", userID, teamID, domain.ErrNotFound)
	}
	left := now
	m.Status = status
	m.LeftAt = &left
	t.MemberCount--
	out := *m
	return &out, nil
}

func (r *teamRepository) CountActive(ctx context.Context, teamID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for k, m := range r.s.memberships {
		if k.teamID == teamID && m.Status == domain.MembershipStatusActive {
			n++
		}
	}
	return n, nil
}

type accountDirectory struct{ s *state }

func (r *accountDirectory) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	out := *a
	return &out, nil
}

func (r *accountDirectory) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = domain.NormalizeEmail(email)
	for _, a := range r.s.accounts {
		if a.Email == email {
			out := *a
			return &out, nil
		}
	}
	return nil, fmt.Errorf("account with email: %w", domain.ErrNotFound)
}

type activityLog struct{ s *state }

func (r *activityLog) HasRecentActivity(ctx context.Context, accountID string, since time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, at := range r.s.activity[accountID] {
		if !at.Before(since) {
			return true, nil
		}
	}
	return false, nil
}
