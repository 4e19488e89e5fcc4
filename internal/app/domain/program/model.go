package program

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a loyalty program.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Tier is a named XP threshold bucket. MinXP is the cumulative XP required
// to reach the tier.
type Tier struct {
	Name  string
	MinXP uint64
}

// Program represents a brand's loyalty program, backed on-chain by a
// supply-1/decimals-0 Algorand Standard Asset.
type Program struct {
	ID          string
	OwnerID     string
	Name        string
	UnitName    string
	Description string
	AssetID     uint64
	MintTxID    string
	MetadataURL string
	ImageCID    string
	Tiers       []Tier
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DefaultTiers is the tier ladder applied when a program does not configure
// its own.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "Bronze", MinXP: 0},
		{Name: "Silver", MinXP: 500},
		{Name: "Gold", MinXP: 1500},
	}
}

// ValidateTiers checks that a tier ladder is usable: at least one tier, the
// first starting at zero, thresholds strictly ascending, names unique and
// non-empty.
func ValidateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("at least one tier is required")
	}
	if tiers[0].MinXP != 0 {
		return fmt.Errorf("first tier must start at 0 XP")
	}
	seen := make(map[string]struct{}, len(tiers))
	for i, tier := range tiers {
		name := strings.TrimSpace(tier.Name)
		if name == "" {
			return fmt.Errorf("tier %d: name is required", i)
		}
		if _, dup := seen[strings.ToLower(name)]; dup {
			return fmt.Errorf("tier name %q duplicated", tier.Name)
		}
		seen[strings.ToLower(name)] = struct{}{}
		if i > 0 && tier.MinXP <= tiers[i-1].MinXP {
			return fmt.Errorf("tier %q threshold must exceed %q", tier.Name, tiers[i-1].Name)
		}
	}
	return nil
}
