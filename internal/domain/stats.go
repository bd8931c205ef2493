package domain

import (
	"math"
	"time"
)

// UserStats is a raw cumulative snapshot reported by the external
// computation network: lifetime points and completed work units for one
// user. Values are non-decreasing except when the remote account is reset.
type UserStats struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	Points    int64     `json:"points"`
	Units     int64     `json:"units"`
}

// IsEmpty reports whether the snapshot carries no recorded work.
func (s UserStats) IsEmpty() bool {
	return s.Points == 0 && s.Units == 0
}

// EmptyUserStats returns the zero baseline for a user who has no
// recorded snapshot yet.
func EmptyUserStats(userID string) UserStats {
	return UserStats{UserID: userID, Timestamp: time.Now().UTC()}
}

// OffsetTcStats is an additive correction applied after the raw delta is
// computed. It preserves continuity across a re-baseline and carries manual
// admin adjustments. At most one offset exists per user.
type OffsetTcStats struct {
	UserID                 string `json:"userId"`
	PointsOffset           int64  `json:"pointsOffset"`
	MultipliedPointsOffset int64  `json:"multipliedPointsOffset"`
	UnitsOffset            int64  `json:"unitsOffset"`
}

// IsZero reports whether the offset changes nothing.
func (o OffsetTcStats) IsZero() bool {
	return o.PointsOffset == 0 && o.MultipliedPointsOffset == 0 && o.UnitsOffset == 0
}

// Accumulate returns the offset with another offset added on top.
func (o OffsetTcStats) Accumulate(other OffsetTcStats) OffsetTcStats {
	return OffsetTcStats{
		UserID:                 o.UserID,
		PointsOffset:           o.PointsOffset + other.PointsOffset,
		MultipliedPointsOffset: o.MultipliedPointsOffset + other.MultipliedPointsOffset,
		UnitsOffset:            o.UnitsOffset + other.UnitsOffset,
	}
}

// UserTcStats is the reported competition delta for a user as of one parse
// cycle: raw points since the baseline, multiplied points with the hardware
// multiplier baked in at computation time, and completed units. Rows form an
// append-only hourly time series.
type UserTcStats struct {
	UserID           string    `json:"userId"`
	Timestamp        time.Time `json:"timestamp"`
	Points           int64     `json:"points"`
	MultipliedPoints int64     `json:"multipliedPoints"`
	Units            int64     `json:"units"`
}

// IsZero reports whether the user has no competition progress.
func (s UserTcStats) IsZero() bool {
	return s.Points == 0 && s.MultipliedPoints == 0 && s.Units == 0
}

// AsOffset converts reported stats into an offset that reproduces them.
// Used when re-baselining: the new baseline erases the raw delta, and this
// offset restores the already-earned competition points.
func (s UserTcStats) AsOffset() OffsetTcStats {
	return OffsetTcStats{
		UserID:                 s.UserID,
		PointsOffset:           s.Points,
		MultipliedPointsOffset: s.MultipliedPoints,
		UnitsOffset:            s.Units,
	}
}

// ComputeTcStats converts a raw total, a baseline, an offset and a hardware
// multiplier into reported competition stats. Negative intermediate deltas
// (remote account resets) are clamped to zero, and every reported component
// is clamped to zero again after the offset is applied.
func ComputeTcStats(userID string, timestamp time.Time, total, initial UserStats, offset OffsetTcStats, multiplier float64) UserTcStats {
	points := clampNonNegative(total.Points - initial.Points)
	multiplied := int64(math.Round(float64(points) * multiplier))
	units := clampNonNegative(total.Units - initial.Units)

	return UserTcStats{
		UserID:           userID,
		Timestamp:        timestamp,
		Points:           clampNonNegative(points + offset.PointsOffset),
		MultipliedPoints: clampNonNegative(multiplied + offset.MultipliedPointsOffset),
		Units:            clampNonNegative(units + offset.UnitsOffset),
	}
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// RetiredUserTcStats is an immutable snapshot taken when a user leaves a
// team or is deleted, so the team keeps credit for the work already done.
type RetiredUserTcStats struct {
	ID          string      `json:"id"`
	TeamID      string      `json:"teamId"`
	DisplayName string      `json:"displayName"`
	RetiredAt   time.Time   `json:"retiredAt"`
	Stats       UserTcStats `json:"stats"`
}

// HistoricStats is one bucket of the historic diff output: the activity
// within a single hour, day or month rather than a cumulative value.
type HistoricStats struct {
	Timestamp        time.Time `json:"timestamp"`
	Points           int64     `json:"points"`
	MultipliedPoints int64     `json:"multipliedPoints"`
	Units            int64     `json:"units"`
}

// MonthlyResult is a frozen snapshot of the full competition standings for
// one (year, month). Created at most once per period, never mutated.
type MonthlyResult struct {
	Year      int                `json:"year"`
	Month     time.Month         `json:"month"`
	CreatedAt time.Time          `json:"createdAt"`
	Summary   CompetitionSummary `json:"summary"`
}
