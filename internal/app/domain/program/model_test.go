package program

import "testing"

func TestValidateTiers(t *testing.T) {
	if err := ValidateTiers(DefaultTiers()); err != nil {
		t.Fatalf("default tiers invalid: %v", err)
	}

	cases := map[string][]Tier{
		"empty":          nil,
		"nonzero start":  {{Name: "Bronze", MinXP: 10}},
		"unordered":      {{Name: "Bronze", MinXP: 0}, {Name: "Silver", MinXP: 100}, {Name: "Gold", MinXP: 100}},
		"duplicate name": {{Name: "Bronze", MinXP: 0}, {Name: "bronze", MinXP: 100}},
		"blank name":     {{Name: "Bronze", MinXP: 0}, {Name: "  ", MinXP: 100}},
	}
	for name, tiers := range cases {
		if err := ValidateTiers(tiers); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
