package domain

import "time"

type AchievementType string

const (
	AchievementRookieRecruiter  AchievementType = "ROOKIE_RECRUITER"
	AchievementTalentScout      AchievementType = "TALENT_SCOUT"
	AchievementCommunityBuilder AchievementType = "COMMUNITY_BUILDER"
	AchievementGrowthChampion   AchievementType = "GROWTH_CHAMPION"
	AchievementTrainerMagnet    AchievementType = "TRAINER_MAGNET"
	AchievementClientConnector  AchievementType = "CLIENT_CONNECTOR"
)

type AchievementMetric string

const (
	MetricTotalAccepted   AchievementMetric = "TOTAL_ACCEPTED"
	MetricTrainerAccepted AchievementMetric = "TRAINER_ACCEPTED"
	MetricClientAccepted  AchievementMetric = "CLIENT_ACCEPTED"
)

type AchievementRule struct {
	Type      AchievementType   `json:"type"`
	Title     string            `json:"title"`
	Metric    AchievementMetric `json:"metric"`
	Threshold int               `json:"threshold"`
	Points    int               `json:"points"`
}

// AchievementCatalog is the fixed unlock table. Each row is evaluated
// independently against its metric.
var AchievementCatalog = []AchievementRule{
	{Type: AchievementRookieRecruiter, Title: "Rookie Recruiter", Metric: MetricTotalAccepted, Threshold: 5, Points: 50},
	{Type: AchievementTalentScout, Title: "Talent Scout", Metric: MetricTotalAccepted, Threshold: 15, Points: 150},
	{Type: AchievementCommunityBuilder, Title: "Community Builder", Metric: MetricTotalAccepted, Threshold: 50, Points: 500},
	{Type: AchievementGrowthChampion, Title: "Growth Champion", Metric: MetricTotalAccepted, Threshold: 100, Points: 1000},
	{Type: AchievementTrainerMagnet, Title: "Trainer Magnet", Metric: MetricTrainerAccepted, Threshold: 10, Points: 200},
	{Type: AchievementClientConnector, Title: "Client Connector", Metric: MetricClientAccepted, Threshold: 25, Points: 300},
}

type Achievement struct {
	AccountID     string          `json:"account_id"`
	Type          AchievementType `json:"type"`
	UnlockedAt    time.Time       `json:"unlocked_at"`
	PointsAwarded int             `json:"points_awarded"`
}

// InvitationStats holds accepted-invitation counts for one sender, split by the
// role the invitation was issued for.
type InvitationStats struct {
	TrainerAccepted int `json:"trainer_accepted"`
	ClientAccepted  int `json:"client_accepted"`
}

func (s InvitationStats) TotalAccepted() int {
	return s.TrainerAccepted + s.ClientAccepted
}

func (s InvitationStats) Value(metric AchievementMetric) int {
	switch metric {
	case MetricTrainerAccepted:
		return s.TrainerAccepted
	case MetricClientAccepted:
		return s.ClientAccepted
	default:
		return s.TotalAccepted()
	}
}

type AchievementProgress struct {
	AchievementRule
	Current    int        `json:"current"`
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}
