package xp

import "time"

// Delta is a single decoded XP adjustment from a confirmed transaction.
type Delta struct {
	TxID   string
	Round  uint64
	Time   time.Time
	Points int64
	Reason string
}

// Event is a Delta applied to the ledger, annotated with the running state
// after application.
type Event struct {
	TxID   string
	Round  uint64
	Time   time.Time
	Points int64
	Reason string
	Total  uint64
	Tier   string
}

// TierChange records a tier upgrade detected during replay.
type TierChange struct {
	TxID  string
	Round uint64
	Time  time.Time
	From  string
	To    string
}

// Ledger is the reconstructed XP state for one member in one program.
type Ledger struct {
	ProgramID   string
	Address     string
	Total       uint64
	Tier        string
	Events      []Event
	TierChanges []TierChange
	LastRound   uint64
	SyncedAt    time.Time
}
