package value

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sigscan/internal/errs"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMineralValueScenario(t *testing.T) {
	rock := Rock{
		Mass: Mass{Med: 1000},
		Ores: map[string]Ore{"TESTIUM": {Prob: 1, MedPct: 0.5}},
	}
	tables := NewTables(nil, map[string]float64{"TESTIUM": 50}, map[string]float64{"TESTIUM": 100}, nil, time.Time{})

	est := Compute(rock, tables, 0.5)

	require.Len(t, est.Composition, 1)
	assert.InDelta(t, 125.0, est.Composition[0].Value, 1e-9)
	assert.InDelta(t, 125.0, est.Total, 1e-9)
	assert.Equal(t, "Testium", est.Composition[0].Name)
	assert.InDelta(t, 125.0, MineralValue(1000, 0.5, 100, 50, 0.5), 1e-9)
}

func TestComputeWeightedTotalUnweightedEntries(t *testing.T) {
	rock := Rock{
		Mass: Mass{Med: 2000},
		Ores: map[string]Ore{
			"GOLD":          {Prob: 0.25, MedPct: 0.4},
			"QUARTZ":        {Prob: 0.5, MedPct: 0.2},
			"INERTMATERIAL": {Prob: 1, MedPct: 0.6},
			"NEVER":         {Prob: 0, MedPct: 0.3},
			"TRACE":         {Prob: 0.2, MedPct: 0},
		},
	}
	prices := map[string]float64{"GOLD": 7, "QUARTZ": 2, "INERT MATERIALS": 1}
	densities := map[string]float64{"GOLD": 100, "QUARTZ": 50, "INERTMATERIAL": 10}
	tables := NewTables(nil, prices, densities, nil, time.Time{})

	est := Compute(rock, tables, 1)

	gold := 2000 * 0.4 / 100 * 7.0
	quartz := 2000 * 0.2 / 50 * 2.0
	require.Len(t, est.Composition, 2)
	assert.Equal(t, "Gold", est.Composition[0].Name, "sorted by price")
	assert.InDelta(t, gold, est.Composition[0].Value, 1e-9)
	assert.InDelta(t, quartz, est.Composition[1].Value, 1e-9)
	assert.InDelta(t, gold*0.25+quartz*0.5, est.Total, 1e-9)
}

func TestComputeMissingDataIsZero(t *testing.T) {
	rock := Rock{
		Mass: Mass{Med: 1000},
		Ores: map[string]Ore{
			"NOPRICE":   {Prob: 1, MedPct: 0.5},
			"NODENSITY": {Prob: 1, MedPct: 0.5},
		},
	}
	tables := NewTables(nil, map[string]float64{"NODENSITY": 10}, map[string]float64{"NOPRICE": 10}, nil, time.Time{})

	est := Compute(rock, tables, 0.5)
	require.Len(t, est.Composition, 2)
	for _, m := range est.Composition {
		assert.Zero(t, m.Value, m.Name)
	}
	assert.Zero(t, est.Total)
}

func TestComputeClampsYield(t *testing.T) {
	rock := Rock{Mass: Mass{Med: 100}, Ores: map[string]Ore{"GOLD": {Prob: 1, MedPct: 1}}}
	tables := NewTables(nil, map[string]float64{"GOLD": 1}, map[string]float64{"GOLD": 1}, nil, time.Time{})

	assert.InDelta(t, 100, Compute(rock, tables, 3).Total, 1e-9)
	assert.Zero(t, Compute(rock, tables, -1).Total)
}

func TestNormalizeOreName(t *testing.T) {
	tests := map[string]string{
		"Inert Materials":   "INERTMATERIAL",
		"Quantainium (Raw)": "QUANTANIUM",
		"Raw Ice":           "ICE",
		"Laranite (Ore)":    "LARANITE",
		"  gold ":           "GOLD",
		"Hephaestanite":     "HEPHAESTANITE",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeOreName(in), in)
	}
}

func TestTablesPriceVariations(t *testing.T) {
	tables := NewTables(nil, map[string]float64{"INERTMATERIAL": 1, "RAW ICE": 2, "FOO BAR": 3}, nil, nil, time.Time{})

	assert.Equal(t, 1.0, tables.Price("inertmaterial"))
	assert.Equal(t, 2.0, tables.Price("ice"))
	assert.Equal(t, 3.0, tables.Price("FOO_BAR"))
	assert.Zero(t, tables.Price("unobtainium"))
	assert.Equal(t, 681.26, tables.Density("Quantanium"))
	assert.True(t, tables.Inert("InertMaterial"))
	assert.True(t, tables.HasPrices())
}

func TestTablesAreCopies(t *testing.T) {
	prices := map[string]float64{"GOLD": 7}
	rocks := RockTable{"stanton": {"etype": {Mass: Mass{Med: 1}, Ores: map[string]Ore{"gold": {Prob: 1, MedPct: 1}}}}}
	tables := NewTables(rocks, prices, nil, nil, time.Time{})

	prices["GOLD"] = 1000
	rocks["stanton"]["etype"].Ores["gold"] = Ore{}

	assert.Equal(t, 7.0, tables.Price("GOLD"))
	r, ok := tables.Rock("Stanton", "EType")
	require.True(t, ok)
	assert.Equal(t, Ore{Prob: 1, MedPct: 1}, r.Ores["GOLD"])
}

func testRocks() RockTable {
	return RockTable{
		"STANTON": {
			"ETYPE": {
				Mass: Mass{Min: 500, Med: 1000, Max: 3000},
				Ores: map[string]Ore{"GOLD": {Prob: 0.5, MedPct: 0.5}},
			},
		},
	}
}

func TestEstimator(t *testing.T) {
	tables := NewTables(testRocks(), map[string]float64{"GOLD": 100}, map[string]float64{"GOLD": 50}, nil, time.Time{})
	est := NewEstimator(NewStore(tables, zerolog.Nop()), "stanton", 0.5)

	e, ok := est.Estimate("etype")
	require.True(t, ok)
	assert.Equal(t, "STANTON", e.System)
	assert.Equal(t, "ETYPE", e.RockType)
	assert.InDelta(t, 500, e.Composition[0].Value, 1e-9)
	assert.InDelta(t, 250, e.Total, 1e-9)

	_, ok = est.Estimate("QTYPE")
	assert.False(t, ok)

	assert.Equal(t, 1.0, NewEstimator(nil, "x", 2).Yield())
}

type fakeSource struct {
	snap Snapshot
	err  error
}

func (f fakeSource) Fetch(context.Context) (Snapshot, error) { return f.snap, f.err }

func TestStoreRefreshSwaps(t *testing.T) {
	store := NewStore(nil, zerolog.Nop())
	old := store.Load()
	require.NotNil(t, old)
	assert.False(t, old.HasPrices())

	_, err := store.Refresh(context.Background(), fakeSource{snap: Snapshot{
		Rocks:  testRocks(),
		Prices: map[string]float64{"Gold (Ore)": 9},
	}})
	require.NoError(t, err)

	cur := store.Load()
	assert.NotSame(t, old, cur)
	assert.Equal(t, 9.0, cur.Price("GOLD"))
	assert.False(t, old.HasPrices(), "old snapshot unchanged")
	assert.Equal(t, 643.57, cur.Density("GOLD"), "densities carried over")
}

func TestStoreRefreshFailureKeepsTables(t *testing.T) {
	tables := NewTables(testRocks(), map[string]float64{"GOLD": 1}, nil, nil, time.Time{})
	store := NewStore(tables, zerolog.Nop())

	_, err := store.Refresh(context.Background(), fakeSource{err: errors.New("connection refused")})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeNetwork))
	assert.Same(t, tables, store.Load())

	_, err = store.Refresh(context.Background(), fakeSource{err: errs.New(errs.CodeExternalData, "bad json")})
	assert.True(t, errs.Is(err, errs.CodeExternalData))
}

func TestStoreRefreshCanceled(t *testing.T) {
	tables := NewTables(testRocks(), map[string]float64{"GOLD": 1}, nil, nil, time.Time{})
	store := NewStore(tables, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Refresh(ctx, FileSource{RockTypesPath: "rock_types.json"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, errs.CodeUnknown, errs.CodeOf(err))
	assert.Same(t, tables, store.Load())

	_, err = store.Refresh(context.Background(), fakeSource{err: context.DeadlineExceeded})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errs.Is(err, errs.CodeNetwork))
}

func TestStoreConcurrentReads(t *testing.T) {
	store := NewStore(NewTables(testRocks(), map[string]float64{"GOLD": 1}, nil, nil, time.Time{}), zerolog.Nop())
	est := NewEstimator(store, "STANTON", 0.5)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if i%2 == 0 {
					_, _ = store.Refresh(context.Background(), fakeSource{snap: Snapshot{Rocks: testRocks(), Prices: map[string]float64{"GOLD": float64(j)}}})
				} else {
					_, ok := est.Estimate("ETYPE")
					assert.True(t, ok)
				}
			}
		}(i)
	}
	wg.Wait()
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

const rockTypesJSON = `{"STANTON": {"ETYPE": {"mass": {"min": 500, "med": 1000, "max": 3000},
  "ores": {"GOLD": {"prob": 0.5, "medPct": 0.5}, "INERTMATERIAL": {"prob": 1, "medPct": 0.5}},
  "scans": 12, "users": 3}}}`

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	src := FileSource{
		RockTypesPath: writeFile(t, dir, "rock_types.json", rockTypesJSON),
		PricesPath:    writeFile(t, dir, "prices.json", `{"timestamp": 1700000000.5, "ore_prices": {"GOLD": 7}, "refinery_yield": 0.8}`),
		MaxAge:        30 * time.Minute,
		now:           func() time.Time { return time.Unix(1700000000, 0).Add(10 * time.Minute) },
	}

	snap, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, snap.Rocks["STANTON"]["ETYPE"].Mass.Med)
	assert.Equal(t, 12, snap.Rocks["STANTON"]["ETYPE"].Scans)
	assert.Equal(t, map[string]float64{"GOLD": 7}, snap.Prices)
	assert.Equal(t, 0.8, snap.RefineryYield)
	assert.Equal(t, int64(1700000000), snap.FetchedAt.Unix())
	assert.False(t, snap.Stale)

	src.now = func() time.Time { return time.Unix(1700000000, 0).Add(2 * time.Hour) }
	snap, err = src.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Stale)
}

func TestFileSourceMissingPrices(t *testing.T) {
	dir := t.TempDir()
	src := FileSource{
		RockTypesPath: writeFile(t, dir, "rock_types.json", rockTypesJSON),
		PricesPath:    filepath.Join(dir, "missing.json"),
	}
	snap, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Prices)
}

func TestFileSourceErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := FileSource{RockTypesPath: filepath.Join(dir, "nope.json")}.Fetch(context.Background())
	assert.True(t, errs.Is(err, errs.CodeExternalData))

	_, err = FileSource{RockTypesPath: writeFile(t, dir, "bad.json", "[")}.Fetch(context.Background())
	assert.True(t, errs.Is(err, errs.CodeExternalData))

	_, err = FileSource{
		RockTypesPath: writeFile(t, dir, "rocks.json", rockTypesJSON),
		PricesPath:    writeFile(t, dir, "prices.json", "{"),
	}.Fetch(context.Background())
	assert.True(t, errs.Is(err, errs.CodeExternalData))
}
