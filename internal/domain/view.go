package domain

// UserView is a user with its referenced hardware and team attached.
// The cache layer stores these denormalized views, so a hardware or team
// update must refresh every cached view that references it.
type UserView struct {
	User     User     `json:"user"`
	Hardware Hardware `json:"hardware"`
	Team     Team     `json:"team"`
}

// Multiplier returns the hardware multiplier in effect for this user.
func (v UserView) Multiplier() float64 {
	return v.Hardware.Multiplier
}
