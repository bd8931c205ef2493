package domain

import "time"

// UserSummary is one user's line in the competition standings.
type UserSummary struct {
	User       User        `json:"user"`
	Hardware   Hardware    `json:"hardware"`
	Stats      UserTcStats `json:"stats"`
	RankInTeam int         `json:"rankInTeam"`
}

// RetiredUserSummary is a retired user's line, kept so the team total
// still reflects work done before the user left.
type RetiredUserSummary struct {
	DisplayName string      `json:"displayName"`
	Stats       UserTcStats `json:"stats"`
}

// TeamSummary aggregates one team's standings: active users, retired
// snapshots, and the team totals used for ranking.
type TeamSummary struct {
	Team                  Team                 `json:"team"`
	Rank                  int                  `json:"rank"`
	ActiveUsers           []UserSummary        `json:"activeUsers"`
	RetiredUsers          []RetiredUserSummary `json:"retiredUsers"`
	TotalPoints           int64                `json:"totalPoints"`
	TotalMultipliedPoints int64                `json:"totalMultipliedPoints"`
	TotalUnits            int64                `json:"totalUnits"`
}

// CompetitionSummary is the full ranked standings at one moment in time.
type CompetitionSummary struct {
	GeneratedAt time.Time     `json:"generatedAt"`
	Teams       []TeamSummary `json:"teams"`
}

// TotalMultipliedPoints sums the competition points across all teams.
func (c CompetitionSummary) TotalMultipliedPoints() int64 {
	var total int64
	for _, t := range c.Teams {
		total += t.TotalMultipliedPoints
	}
	return total
}
