package value

import (
	"sort"
	"strings"
)

// DefaultRefineryYield is the share of ore volume left after refining.
const DefaultRefineryYield = 0.5

// Mineral is one composition line. Value assumes the mineral spawns: it is
// not weighted by Probability.
type Mineral struct {
	Name           string  `json:"name"`
	Probability    float64 `json:"prob"`
	MedianFraction float64 `json:"medPct"`
	Price          float64 `json:"price"`
	Density        float64 `json:"density"`
	Value          float64 `json:"value"`
}

// Estimate is the valuation of one rock. Total is the expected value: the
// sum of each mineral's value weighted by its spawn probability.
type Estimate struct {
	System      string    `json:"system"`
	RockType    string    `json:"rock_type"`
	MedianMass  float64   `json:"median_mass"`
	Total       float64   `json:"total"`
	Composition []Mineral `json:"composition"`
}

// ClampYield limits a refinery yield to [0,1].
func ClampYield(y float64) float64 {
	return max(0, min(1, y))
}

// MineralValue is mass × fraction / density × price × yield, or 0 when the
// density or price is unknown.
func MineralValue(mass, fraction, density, price, yield float64) float64 {
	if density <= 0 || price <= 0 {
		return 0
	}
	return mass * fraction / density * price * yield
}

// Compute values rock with the given tables and refinery yield. Inert
// minerals and minerals with zero probability or fraction are left out.
// Composition is sorted by price, highest first.
func Compute(rock Rock, t *Tables, yield float64) Estimate {
	yield = ClampYield(yield)
	est := Estimate{MedianMass: rock.Mass.Med}

	for name, ore := range rock.Ores {
		if t.Inert(name) || ore.Prob <= 0 || ore.MedPct <= 0 {
			continue
		}
		price := t.Price(name)
		density := t.Density(name)
		v := MineralValue(rock.Mass.Med, ore.MedPct, density, price, yield)

		est.Composition = append(est.Composition, Mineral{
			Name:           displayName(name),
			Probability:    ore.Prob,
			MedianFraction: ore.MedPct,
			Price:          price,
			Density:        density,
			Value:          v,
		})
		est.Total += v * ore.Prob
	}

	sort.SliceStable(est.Composition, func(i, j int) bool {
		a, b := est.Composition[i], est.Composition[j]
		if a.Price != b.Price {
			return a.Price > b.Price
		}
		return a.Name < b.Name
	})
	return est
}

func displayName(s string) string {
	s = strings.ToLower(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Estimator values rock types for one system using the current tables of
// a Store.
type Estimator struct {
	store  *Store
	system string
	yield  float64
}

// NewEstimator creates an estimator. yield is clamped to [0,1].
func NewEstimator(store *Store, system string, yield float64) *Estimator {
	return &Estimator{store: store, system: strings.ToUpper(system), yield: ClampYield(yield)}
}

// Yield returns the refinery yield in use.
func (e *Estimator) Yield() float64 { return e.yield }

// Estimate values rockType. It reports false when there is no survey data
// for it; missing prices or densities only zero the affected minerals.
func (e *Estimator) Estimate(rockType string) (Estimate, bool) {
	t := e.store.Load()
	if t == nil {
		return Estimate{}, false
	}
	rock, ok := t.Rock(e.system, rockType)
	if !ok {
		return Estimate{}, false
	}
	est := Compute(rock, t, e.yield)
	est.System = e.system
	est.RockType = strings.ToUpper(rockType)
	return est, true
}
