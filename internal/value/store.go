package value

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"sigscan/internal/errs"

	"github.com/rs/zerolog"
)

// Snapshot is what a PriceSource delivers.
type Snapshot struct {
	Rocks     RockTable
	Prices    map[string]float64
	FetchedAt time.Time
	// RefineryYield is the yield stored alongside the prices, 0 if none.
	RefineryYield float64
	// Stale is set when the prices are older than the source accepts.
	Stale bool
}

// PriceSource provides composition and price data. Implementations return
// coded errors (errs.CodeNetwork for unreachable services,
// errs.CodeExternalData for bad data).
type PriceSource interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// Store holds the current Tables. Readers always see a complete snapshot;
// a refresh builds new Tables and swaps the pointer.
type Store struct {
	cur atomic.Pointer[Tables]
	log zerolog.Logger
}

// NewStore creates a store holding t, which may be nil.
func NewStore(t *Tables, log zerolog.Logger) *Store {
	s := &Store{log: log}
	if t == nil {
		t = NewTables(nil, nil, nil, nil, time.Time{})
	}
	s.cur.Store(t)
	return s
}

// Load returns the current tables.
func (s *Store) Load() *Tables { return s.cur.Load() }

// Swap replaces the current tables.
func (s *Store) Swap(t *Tables) { s.cur.Store(t) }

// Refresh fetches from src and swaps in new tables. On failure the current
// tables stay in place and the error is returned; uncoded errors are
// reported as errs.CodeNetwork, except context cancellation which is
// returned as is.
func (s *Store) Refresh(ctx context.Context, src PriceSource) (Snapshot, error) {
	snap, err := src.Fetch(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.log.Debug().Err(err).Msg("price refresh canceled")
			return Snapshot{}, err
		}
		if errs.CodeOf(err) == errs.CodeUnknown {
			err = errs.Wrap(err, errs.CodeNetwork, "fetch prices")
		}
		s.log.Warn().Err(err).Msg("price refresh failed, keeping current tables")
		return Snapshot{}, err
	}

	if snap.Stale {
		s.log.Warn().Time("fetched_at", snap.FetchedAt).Msg("price data is stale")
	}
	if len(snap.Prices) == 0 {
		s.log.Warn().Msg("no ore prices available, values will be zero")
	}

	s.Swap(s.Load().with(snap.Rocks, snap.Prices, snap.FetchedAt))
	s.log.Debug().
		Int("systems", len(snap.Rocks)).
		Int("prices", len(snap.Prices)).
		Msg("pricing tables refreshed")
	return snap, nil
}
