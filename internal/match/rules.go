package match

import (
	"fmt"
)

// UnitRule matches signatures that are count × Base for count in
// [MinCount, MaxCount]. Confidence starts at Start for MinCount and drops by
// Decay per extra unit.
type UnitRule struct {
	Base     int     `mapstructure:"base" json:"base"`
	MinCount int     `mapstructure:"min_count" json:"min_count"`
	MaxCount int     `mapstructure:"max_count" json:"max_count"`
	Start    float64 `mapstructure:"start" json:"start"`
	Decay    float64 `mapstructure:"decay" json:"decay"`
}

// Count returns how many units sig holds for base, or false when sig is not
// an in-range multiple.
func (r UnitRule) Count(sig, base int) (int, bool) {
	if base <= 0 || sig <= 0 || sig%base != 0 {
		return 0, false
	}
	c := sig / base
	return c, c >= r.MinCount && c <= r.MaxCount
}

// Confidence is Start - Decay·(count-MinCount), clamped to [0,1].
func (r UnitRule) Confidence(count int) float64 {
	c := r.Start - r.Decay*float64(count-r.MinCount)
	return max(0, min(1, c))
}

// Validate checks that the rule is usable and that its confidence stays
// positive and strictly decreasing over the whole count range. needBase is
// false for rules whose bases come from the database.
func (r UnitRule) Validate(needBase bool) error {
	switch {
	case needBase && r.Base <= 0:
		return fmt.Errorf("base must be positive, got %d", r.Base)
	case r.MinCount < 1 || r.MaxCount < r.MinCount:
		return fmt.Errorf("invalid count range [%d,%d]", r.MinCount, r.MaxCount)
	case r.Start <= 0 || r.Start > 1:
		return fmt.Errorf("start confidence %.3f outside (0,1]", r.Start)
	case r.Decay <= 0:
		return fmt.Errorf("decay must be positive, got %.4f", r.Decay)
	case r.Start-r.Decay*float64(r.MaxCount-r.MinCount) <= 0:
		return fmt.Errorf("confidence reaches zero before count %d", r.MaxCount)
	}
	return nil
}

// Rules is the matcher configuration.
type Rules struct {
	SalvageUnit int      `mapstructure:"salvage_unit" json:"salvage_unit"`
	GroundSmall UnitRule `mapstructure:"ground_small" json:"ground_small"`
	GroundLarge UnitRule `mapstructure:"ground_large" json:"ground_large"`
	// Deposit applies to every space and surface deposit in the database;
	// its Base is unused.
	Deposit UnitRule `mapstructure:"deposit" json:"deposit"`
}

// DefaultRules returns the stock rule set.
func DefaultRules() Rules {
	return Rules{
		SalvageUnit: 2000,
		GroundSmall: UnitRule{Base: 120, MinCount: 1, MaxCount: 50, Start: 0.9, Decay: 0.006},
		GroundLarge: UnitRule{Base: 620, MinCount: 1, MaxCount: 30, Start: 0.9, Decay: 0.01},
		Deposit:     UnitRule{MinCount: 1, MaxCount: 100, Start: 0.9, Decay: 0.004},
	}
}

// Validate checks every rule.
func (r Rules) Validate() error {
	if r.SalvageUnit <= 0 {
		return fmt.Errorf("salvage unit must be positive, got %d", r.SalvageUnit)
	}
	if err := r.GroundSmall.Validate(true); err != nil {
		return fmt.Errorf("ground_small: %w", err)
	}
	if err := r.GroundLarge.Validate(true); err != nil {
		return fmt.Errorf("ground_large: %w", err)
	}
	if err := r.Deposit.Validate(false); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	return nil
}
