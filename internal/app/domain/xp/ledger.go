// Package xp reconstructs member XP ledgers by replaying confirmed
// transaction deltas into a running total and tier state.
package xp

import (
	"sort"

	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/program"
)

// DetermineTier returns the name of the highest tier whose threshold the
// total meets. An empty ladder yields an empty tier.
func DetermineTier(tiers []program.Tier, total uint64) string {
	name := ""
	for _, tier := range tiers {
		if total >= tier.MinXP {
			name = tier.Name
		}
	}
	return name
}

func tierIndex(tiers []program.Tier, name string) int {
	for i, tier := range tiers {
		if tier.Name == name {
			return i
		}
	}
	return -1
}

// Replay folds deltas into a ledger. Deltas are applied in (round, txid)
// order so the result is deterministic regardless of input order. Negative
// deltas clamp the running total at zero. A tier upgrade is recorded each
// time the derived tier rises; downgrades adjust the tier silently.
func Replay(programID, address string, tiers []program.Tier, deltas []Delta) Ledger {
	ordered := make([]Delta, len(deltas))
	copy(ordered, deltas)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Round != ordered[j].Round {
			return ordered[i].Round < ordered[j].Round
		}
		return ordered[i].TxID < ordered[j].TxID
	})

	ledger := Ledger{
		ProgramID: programID,
		Address:   address,
		Tier:      DetermineTier(tiers, 0),
	}

	for _, d := range ordered {
		before := ledger.Tier

		if d.Points >= 0 {
			ledger.Total += uint64(d.Points)
		} else {
			loss := uint64(-d.Points)
			if loss >= ledger.Total {
				ledger.Total = 0
			} else {
				ledger.Total -= loss
			}
		}

		ledger.Tier = DetermineTier(tiers, ledger.Total)
		if tierIndex(tiers, ledger.Tier) > tierIndex(tiers, before) {
			ledger.TierChanges = append(ledger.TierChanges, TierChange{
				TxID:  d.TxID,
				Round: d.Round,
				Time:  d.Time,
				From:  before,
				To:    ledger.Tier,
			})
		}

		ledger.Events = append(ledger.Events, Event{
			TxID:   d.TxID,
			Round:  d.Round,
			Time:   d.Time,
			Points: d.Points,
			Reason: d.Reason,
			Total:  ledger.Total,
			Tier:   ledger.Tier,
		})
		if d.Round > ledger.LastRound {
			ledger.LastRound = d.Round
		}
	}

	return ledger
}
