package domain

import "time"

type PointType string

const (
	PointTypeClientAccepted           PointType = "CLIENT_ACCEPTED"
	PointTypeTrainerAccepted          PointType = "TRAINER_ACCEPTED"
	PointTypeAchievementUnlock        PointType = "ACHIEVEMENT_UNLOCK"
	PointTypeBonusRetention           PointType = "BONUS_RETENTION"
	PointTypeBonusTrainerVerification PointType = "BONUS_TRAINER_VERIFICATION"
	PointTypeManualAdjustment         PointType = "MANUAL_ADJUSTMENT"
	PointTypePenalty                  PointType = "PENALTY"
	PointTypeCorrection               PointType = "CORRECTION"
)

func (t PointType) Valid() bool {
	switch t {
	case PointTypeClientAccepted, PointTypeTrainerAccepted, PointTypeAchievementUnlock,
		PointTypeBonusRetention, PointTypeBonusTrainerVerification,
		PointTypeManualAdjustment, PointTypePenalty, PointTypeCorrection:
		return true
	}
	return false
}

// Keyed reports whether at most one entry may exist per (account, type, source).
func (t PointType) Keyed() bool {
	switch t {
	case PointTypeClientAccepted, PointTypeTrainerAccepted, PointTypeAchievementUnlock,
		PointTypeBonusRetention, PointTypeBonusTrainerVerification:
		return true
	}
	return false
}

// Manual reports whether the type may be appended by an administrator.
func (t PointType) Manual() bool {
	return t == PointTypeManualAdjustment || t == PointTypePenalty || t == PointTypeCorrection
}

// KeyedPointTypes lists the types covered by the ledger idempotency index.
var KeyedPointTypes = []PointType{
	PointTypeClientAccepted,
	PointTypeTrainerAccepted,
	PointTypeAchievementUnlock,
	PointTypeBonusRetention,
	PointTypeBonusTrainerVerification,
}

// PointsEntry is one immutable ledger row. Points is positive for credit,
// negative for debit.
type PointsEntry struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	PointType   PointType `json:"point_type"`
	Points      int       `json:"points"`
	Description string    `json:"description"`
	SourceID    *string   `json:"source_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type PointTypeTotal struct {
	Points int64 `json:"points"`
	Count  int   `json:"count"`
}

type PointsSummary struct {
	AccountID string                       `json:"account_id"`
	Balance   int64                        `json:"balance"`
	ByType    map[PointType]PointTypeTotal `json:"by_type"`
}

type AppendRequest struct {
	AccountID   string    `json:"account_id"`
	PointType   PointType `json:"point_type"`
	Points      int       `json:"points"`
	Description string    `json:"description"`
	SourceID    *string   `json:"source_id,omitempty"`
}
