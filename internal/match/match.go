// Package match interprets a signature value: exact lookups, salvage panel
// multiples, ground deposits and repeated mineable units, ranked by
// confidence.
package match

import (
	"fmt"
	"sort"

	"sigscan/internal/sigdb"
	"sigscan/internal/value"
)

// Category classifies a match.
type Category string

const (
	CategoryKnown          Category = "known"
	CategorySalvage        Category = "salvage"
	CategorySpaceDeposit   Category = "space_deposit"
	CategorySurfaceDeposit Category = "surface_deposit"
	CategoryGroundSmall    Category = "ground_deposit_small"
	CategoryGroundLarge    Category = "ground_deposit_large"
	CategoryShip           Category = "ship"
)

// Match is one interpretation of a signature.
type Match struct {
	Category       Category        `json:"category"`
	Name           string          `json:"name"`
	Signature      int             `json:"signature"`
	Count          int             `json:"count,omitempty"`
	BaseSignature  int             `json:"base_signature,omitempty"`
	Confidence     float64         `json:"confidence"`
	RockType       string          `json:"rock_type,omitempty"`
	EstimatedValue float64         `json:"estimated_value,omitempty"`
	Composition    []value.Mineral `json:"composition,omitempty"`
	Minerals       []string        `json:"possible_minerals,omitempty"`
	Manufacturer   string          `json:"manufacturer,omitempty"`
	Axis           string          `json:"axis,omitempty"`
}

// Valuer estimates a rock type's value. *value.Estimator implements it.
type Valuer interface {
	Estimate(rockType string) (value.Estimate, bool)
}

// Matcher applies Rules to a Database. It holds no mutable state and is
// safe for concurrent use.
type Matcher struct {
	db     *sigdb.Database
	rules  Rules
	valuer Valuer
}

// New creates a Matcher. db may be nil (no table lookups) and valuer may be
// nil (no value annotations).
func New(db *sigdb.Database, rules Rules, valuer Valuer) *Matcher {
	if db == nil {
		db = sigdb.Empty()
	}
	return &Matcher{db: db, rules: rules, valuer: valuer}
}

// Match returns every interpretation of sig, highest confidence first, with
// at most one match per (category, name).
func (m *Matcher) Match(sig int) []Match {
	if sig <= 0 {
		return nil
	}
	var out []Match

	if name, ok := m.db.Exact[sig]; ok {
		mt := Match{Category: CategoryKnown, Name: name, Signature: sig, Confidence: 1}
		m.annotate(&mt, sig, 1)
		out = append(out, mt)
	}

	for _, s := range m.db.Ships[sig] {
		out = append(out, Match{
			Category:     CategoryShip,
			Name:         s.Ship,
			Signature:    sig,
			Confidence:   1,
			Manufacturer: s.Manufacturer,
			Axis:         s.Axis,
		})
	}

	if unit := m.rules.SalvageUnit; unit > 0 && sig >= unit && sig%unit == 0 {
		n := sig / unit
		out = append(out, Match{
			Category:      CategorySalvage,
			Name:          fmt.Sprintf("Salvage (%d panels)", n),
			Signature:     sig,
			Count:         n,
			BaseSignature: unit,
			Confidence:    1,
		})
	}

	out = m.ground(out, sig, CategoryGroundSmall, "Small", m.rules.GroundSmall, m.db.Ground.SmallBase)
	out = m.ground(out, sig, CategoryGroundLarge, "Large", m.rules.GroundLarge, m.db.Ground.LargeBase)

	rule := m.rules.Deposit
	for _, d := range m.db.Deposits {
		count, ok := rule.Count(sig, d.Signature)
		if !ok {
			continue
		}
		cat := CategorySpaceDeposit
		if d.Kind == sigdb.KindSurface {
			cat = CategorySurfaceDeposit
		}
		mt := Match{
			Category:      cat,
			Name:          d.Name,
			Signature:     sig,
			Count:         count,
			BaseSignature: d.Signature,
			Confidence:    rule.Confidence(count),
		}
		m.annotate(&mt, d.Signature, count)
		out = append(out, mt)
	}

	return rank(out)
}

func (m *Matcher) ground(out []Match, sig int, cat Category, label string, rule UnitRule, dbBase int) []Match {
	base := rule.Base
	if dbBase > 0 {
		base = dbBase
	}
	count, ok := rule.Count(sig, base)
	if !ok {
		return out
	}
	return append(out, Match{
		Category:      cat,
		Name:          fmt.Sprintf("%s Ground Deposit (%dx)", label, count),
		Signature:     sig,
		Count:         count,
		BaseSignature: base,
		Confidence:    rule.Confidence(count),
		Minerals:      append([]string(nil), m.db.Ground.Minerals...),
	})
}

// annotate adds rock type, value and composition for a base signature with
// a known rock type. The value scales with the unit count.
func (m *Matcher) annotate(mt *Match, base, count int) {
	rock, ok := m.db.Rock(base)
	if !ok {
		return
	}
	mt.RockType = rock.Type
	if m.valuer == nil {
		return
	}
	est, ok := m.valuer.Estimate(rock.Type)
	if !ok {
		return
	}
	if est.Total > 0 {
		mt.EstimatedValue = est.Total * float64(count)
	}
	mt.Composition = est.Composition
}

// rank sorts by confidence (stable, so rule order breaks ties) and keeps
// the first match per (category, name).
func rank(ms []Match) []Match {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Confidence > ms[j].Confidence })

	type key struct {
		cat  Category
		name string
	}
	seen := make(map[key]bool, len(ms))
	out := ms[:0]
	for _, mt := range ms {
		k := key{mt.Category, mt.Name}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, mt)
	}
	return out
}
