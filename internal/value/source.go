package value

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"math"
	"os"
	"time"

	"sigscan/internal/errs"
)

// PriceCache is the on-disk price cache.
type PriceCache struct {
	Timestamp     float64            `json:"timestamp"`
	OrePrices     map[string]float64 `json:"ore_prices"`
	RefineryYield *float64           `json:"refinery_yield,omitempty"`
}

// FileSource reads the rock composition file and the price cache from disk.
type FileSource struct {
	RockTypesPath string
	PricesPath    string
	// MaxAge marks older price caches as stale. Zero disables the check.
	MaxAge time.Duration
	now    func() time.Time
}

// Fetch reads both files. A missing or unreadable composition file is an
// error. A missing price cache yields no prices.
func (f FileSource) Fetch(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	data, err := os.ReadFile(f.RockTypesPath)
	if err != nil {
		return snap, errs.Wrap(err, errs.CodeExternalData, "read rock types").With("path", f.RockTypesPath)
	}
	if err := json.Unmarshal(data, &snap.Rocks); err != nil {
		return snap, errs.Wrap(err, errs.CodeExternalData, "parse rock types").With("path", f.RockTypesPath)
	}

	if f.PricesPath == "" {
		return snap, nil
	}
	data, err = os.ReadFile(f.PricesPath)
	if errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return snap, errs.Wrap(err, errs.CodeExternalData, "read price cache").With("path", f.PricesPath)
	}

	var cache PriceCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return snap, errs.Wrap(err, errs.CodeExternalData, "parse price cache").With("path", f.PricesPath)
	}
	snap.Prices = cache.OrePrices
	if cache.Timestamp > 0 {
		sec, frac := math.Modf(cache.Timestamp)
		snap.FetchedAt = time.Unix(int64(sec), int64(frac*1e9))
	}
	if cache.RefineryYield != nil {
		snap.RefineryYield = ClampYield(*cache.RefineryYield)
	}

	now := time.Now
	if f.now != nil {
		now = f.now
	}
	if f.MaxAge > 0 && now().Sub(snap.FetchedAt) > f.MaxAge {
		snap.Stale = true
	}
	return snap, nil
}
