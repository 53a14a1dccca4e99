// Package value estimates what a matched deposit is worth from composition,
// price and density tables.
package value

import (
	"strings"
	"time"
)

// Ore is one mineral entry of a rock composition.
type Ore struct {
	Prob   float64 `json:"prob"`
	MedPct float64 `json:"medPct"`
	MinPct float64 `json:"minPct,omitempty"`
	MaxPct float64 `json:"maxPct,omitempty"`
}

// Mass is the deposit mass distribution.
type Mass struct {
	Min float64 `json:"min"`
	Med float64 `json:"med"`
	Max float64 `json:"max"`
}

// Rock is the survey data for one rock type in one system.
type Rock struct {
	Mass  Mass           `json:"mass"`
	Ores  map[string]Ore `json:"ores"`
	Scans int            `json:"scans,omitempty"`
	Users int            `json:"users,omitempty"`
}

// RockTable is system → rock type → survey data.
type RockTable map[string]map[string]Rock

// DefaultDensities returns mineral densities in kg per SCU.
func DefaultDensities() map[string]float64 {
	return map[string]float64{
		"AGRICIUM":      239.71,
		"ALUMINUM":      89.88,
		"BERYL":         91.41,
		"BEXALITE":      230.03,
		"BORASE":        149.60,
		"COPPER":        298.37,
		"CORUNDUM":      133.85,
		"GOLD":          643.57,
		"HEPHAESTANITE": 106.54,
		"ICE":           33.19,
		"INERTMATERIAL": 33.21,
		"IRON":          262.42,
		"LARANITE":      383.09,
		"QUANTANIUM":    681.26,
		"QUARTZ":        88.30,
		"RICCITE":       53.28,
		"SILICON":       77.82,
		"STILERON":      158.20,
		"TARANITE":      339.67,
		"TIN":           192.04,
		"TITANIUM":      149.61,
		"TUNGSTEN":      642.94,
		"LINDINIUM":     200.00,
		"TORITE":        200.00,
	}
}

// DefaultInert lists minerals that are never valued.
func DefaultInert() []string { return []string{"INERTMATERIAL"} }

var nameMappings = map[string]string{
	"INERT MATERIALS": "INERTMATERIAL",
	"QUANTAINIUM":     "QUANTANIUM",
	"RAW ICE":         "ICE",
}

// NormalizeOreName maps a price feed commodity name to the composition
// table spelling: upper case, " (ORE)"/" (RAW)" stripped, known renames.
func NormalizeOreName(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	for _, suffix := range []string{" (ORE)", " (RAW)"} {
		if strings.HasSuffix(n, suffix) {
			n = strings.TrimSuffix(n, suffix)
			break
		}
	}
	if m, ok := nameMappings[n]; ok {
		return m
	}
	return n
}

// Tables is an immutable snapshot of everything the estimator needs. Build a
// new one with NewTables to change anything.
type Tables struct {
	rocks     RockTable
	prices    map[string]float64
	densities map[string]float64
	inert     map[string]bool
	fetchedAt time.Time
}

// NewTables copies its inputs. Nil densities or inert select the defaults.
// Price names are normalized with NormalizeOreName.
func NewTables(rocks RockTable, prices, densities map[string]float64, inert []string, fetchedAt time.Time) *Tables {
	if densities == nil {
		densities = DefaultDensities()
	}
	if inert == nil {
		inert = DefaultInert()
	}

	t := &Tables{
		rocks:     make(RockTable, len(rocks)),
		prices:    make(map[string]float64, len(prices)),
		densities: make(map[string]float64, len(densities)),
		inert:     make(map[string]bool, len(inert)),
		fetchedAt: fetchedAt,
	}
	for sys, types := range rocks {
		cp := make(map[string]Rock, len(types))
		for name, r := range types {
			ores := make(map[string]Ore, len(r.Ores))
			for ore, o := range r.Ores {
				ores[strings.ToUpper(ore)] = o
			}
			r.Ores = ores
			cp[strings.ToUpper(name)] = r
		}
		t.rocks[strings.ToUpper(sys)] = cp
	}
	for name, p := range prices {
		t.prices[NormalizeOreName(name)] = p
	}
	for name, d := range densities {
		t.densities[strings.ToUpper(name)] = d
	}
	for _, name := range inert {
		t.inert[strings.ToUpper(name)] = true
	}
	return t
}

// Rock returns the survey data for a rock type in a system.
func (t *Tables) Rock(system, rockType string) (Rock, bool) {
	r, ok := t.rocks[strings.ToUpper(system)][strings.ToUpper(rockType)]
	return r, ok
}

// Systems lists the systems with survey data.
func (t *Tables) Systems() []string {
	out := make([]string, 0, len(t.rocks))
	for s := range t.rocks {
		out = append(out, s)
	}
	return out
}

// Price returns the price per SCU of a mineral, 0 if unknown.
func (t *Tables) Price(mineral string) float64 {
	name := strings.ToUpper(strings.TrimSpace(mineral))
	if p, ok := t.prices[name]; ok {
		return p
	}
	for _, v := range []string{strings.ReplaceAll(name, "_", " "), strings.ReplaceAll(name, " ", "")} {
		if p, ok := t.prices[v]; ok {
			return p
		}
	}
	return 0
}

// Density returns a mineral's density, 0 if unknown.
func (t *Tables) Density(mineral string) float64 {
	return t.densities[strings.ToUpper(strings.TrimSpace(mineral))]
}

// Inert reports whether a mineral is excluded from valuation.
func (t *Tables) Inert(mineral string) bool {
	return t.inert[strings.ToUpper(strings.TrimSpace(mineral))]
}

// HasPrices reports whether any price is known.
func (t *Tables) HasPrices() bool { return len(t.prices) > 0 }

// FetchedAt is when the prices were obtained.
func (t *Tables) FetchedAt() time.Time { return t.fetchedAt }

// with returns a copy of t with new rocks and prices, keeping densities and
// the inert set.
func (t *Tables) with(rocks RockTable, prices map[string]float64, fetchedAt time.Time) *Tables {
	inert := make([]string, 0, len(t.inert))
	for n := range t.inert {
		inert = append(inert, n)
	}
	return NewTables(rocks, prices, t.densities, inert, fetchedAt)
}
