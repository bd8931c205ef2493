// Package domain contains the core types of the team competition:
// the entities being tracked (hardware, teams, users) and the stats
// records derived from the external computation network.
package domain

import "time"

// Hardware is a piece of folding hardware with a points multiplier.
// Raw points earned on this hardware are scaled by Multiplier when
// converted into competition points.
type Hardware struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Multiplier float64   `json:"multiplier"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Team is a competing team. Its existence is independent of its users.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ForumLink   string    `json:"forumLink,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// User is a competition participant. FoldingName and Passkey identify the
// user on the external computation network; HardwareID and TeamID tie the
// user into the competition. A user with a blank passkey is skipped during
// stats parsing.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	FoldingName string    `json:"foldingName"`
	Passkey     string    `json:"passkey"`
	HardwareID  string    `json:"hardwareId"`
	TeamID      string    `json:"teamId"`
	IsCaptain   bool      `json:"isCaptain"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasPasskey reports whether the user can be queried on the external network.
func (u *User) HasPasskey() bool {
	return u.Passkey != ""
}
