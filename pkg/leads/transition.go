package leads

import "time"

// TransitionState tracks an optimistic status change.
type TransitionState string

const (
	TransitionPending    TransitionState = "PENDING"
	TransitionConfirmed  TransitionState = "CONFIRMED"
	TransitionRolledBack TransitionState = "ROLLED_BACK"
)

// Transition records one Classify call from the optimistic move to its
// server outcome. PENDING moves to exactly one of CONFIRMED or ROLLED_BACK.
type Transition struct {
	ID        string
	LeadID    string
	From      Status
	To        Status
	State     TransitionState
	StartedAt time.Time
	SettledAt time.Time
	Err       error

	lead       Lead
	origIndex  int
	prevCursor string

	// neighbours holds the NEW ids before the move, excluding the lead
	// itself, split at origIndex.
	before, after []string
}

// Settled reports whether the server has answered.
func (t Transition) Settled() bool {
	return t.State == TransitionConfirmed || t.State == TransitionRolledBack
}
