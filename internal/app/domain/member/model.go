package member

import "time"

// Member is a wallet address enrolled in a loyalty program. XP totals and
// tiers are derived from the chain, not stored here.
type Member struct {
	ID          string
	ProgramID   string
	Address     string
	DisplayName string
	ProfileID   string
	EnrolledAt  time.Time
	UpdatedAt   time.Time
}
