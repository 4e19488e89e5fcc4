package pass

import "time"

// Status is the lifecycle state of a loyalty pass.
type Status string

const (
	// StatusIssued means the pass asset is minted but still held by the
	// operator pending the member's claim.
	StatusIssued  Status = "issued"
	StatusClaimed Status = "claimed"
	StatusRevoked Status = "revoked"
)

// Pass is a per-member loyalty pass, backed on-chain by a
// supply-1/decimals-0 Algorand Standard Asset minted under a program.
type Pass struct {
	ID            string
	ProgramID     string
	AssetID       uint64
	MemberAddress string
	Status        Status
	MintTxID      string
	ClaimTxID     string
	RevokeTxID    string
	IssuedAt      time.Time
	ClaimedAt     time.Time
	RevokedAt     time.Time
}
