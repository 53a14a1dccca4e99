// Package app wires configuration, lookup tables, OCR and the scan pipeline
// into the service the command line drives.
package app

import (
	"context"
	"image"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sigscan/internal/anchor"
	"sigscan/internal/config"
	"sigscan/internal/errs"
	"sigscan/internal/match"
	"sigscan/internal/ocr"
	"sigscan/internal/scan"
	"sigscan/internal/sigdb"
	"sigscan/internal/value"
	"sigscan/pkg/geometry"

	"github.com/rs/zerolog"
)

// App holds the loaded tables and the pipeline built from a Config.
type App struct {
	Config  *config.Config
	DB      *sigdb.Database
	Store   *value.Store
	Matcher *match.Matcher
	Reader  *ocr.Reader
	Scanner *scan.Scanner

	source     value.PriceSource
	recognizer ocr.Recognizer
	gaze       scan.GazeProvider
	closer     io.Closer
	estimator  atomic.Pointer[value.Estimator]
	log        zerolog.Logger

	mu        sync.RWMutex
	listeners map[EventType][]EventListener
}

// Option configures an App.
type Option func(*App)

// WithRecognizer replaces the Tesseract backend.
func WithRecognizer(r ocr.Recognizer) Option {
	return func(a *App) { a.recognizer = r }
}

// WithPriceSource replaces the file-based price source.
func WithPriceSource(src value.PriceSource) Option {
	return func(a *App) { a.source = src }
}

// WithGaze enables the gaze strategy ahead of all others.
func WithGaze(p scan.GazeProvider) Option {
	return func(a *App) { a.gaze = p }
}

// New builds an App. Missing or corrupt data files degrade the service
// with a warning; only an invalid configuration is an error.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strategies, err := cfg.Strategies()
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeConfig, "invalid ocr.strategies")
	}

	a := &App{
		Config:    cfg,
		log:       log,
		listeners: make(map[EventType][]EventListener),
	}
	for _, o := range opts {
		o(a)
	}

	a.DB = a.loadDatabase()

	if a.source == nil {
		a.source = value.FileSource{
			RockTypesPath: cfg.Pricing.RockTypes,
			PricesPath:    cfg.Pricing.Prices,
			MaxAge:        cfg.Pricing.MaxAge,
		}
	}
	a.Store = value.NewStore(value.NewTables(nil, nil, densities(cfg.Pricing.Densities), nil, time.Time{}), log)
	a.estimator.Store(value.NewEstimator(a.Store, cfg.Pricing.System, cfg.Pricing.RefineryYield))
	if _, err := a.RefreshPrices(ctx); err != nil {
		log.Warn().Err(err).Msg("pricing unavailable, deposit values will be zero")
	}

	if a.recognizer == nil {
		t := ocr.NewTesseract(cfg.TesseractOptions(), log)
		a.recognizer, a.closer = t, t
	}
	a.Reader = ocr.NewReader(a.recognizer,
		ocr.WithStrategies(strategies...),
		ocr.WithNormalizeParams(cfg.NormalizeParams()),
		ocr.WithExtractor(cfg.Extractor()),
		ocr.WithLogger(log),
	)

	a.Matcher = match.New(a.DB, cfg.Matching, a)

	scanOpts := []scan.Option{scan.WithStrategies(a.strategies()...), scan.WithLogger(log)}
	if cfg.Debug.Enabled {
		scanOpts = append(scanOpts, scan.WithDebugDir(cfg.Debug.Dir))
	}
	a.Scanner = scan.New(a.Reader, a.Matcher, scanOpts...)

	log.Debug().
		Strs("strategies", a.Scanner.Strategies()).
		Str("system", cfg.Pricing.System).
		Msg("scanner ready")
	return a, nil
}

func (a *App) loadDatabase() *sigdb.Database {
	path := a.Config.Database
	db, err := sigdb.Load(path)
	if err != nil {
		a.log.Warn().Err(err).Str("path", path).Msg("signature database unavailable, using rules only")
		return sigdb.Empty()
	}
	a.log.Debug().Str("path", path).Str("db", db.String()).Msg("signature database loaded")
	return db
}

// densities merges configured overrides into the built-in densities.
func densities(overrides map[string]float64) map[string]float64 {
	d := value.DefaultDensities()
	for name, v := range overrides {
		d[strings.ToUpper(name)] = v
	}
	return d
}

func (a *App) strategies() []scan.Strategy {
	d := a.Config.Detection
	var out []scan.Strategy
	if a.gaze != nil {
		out = append(out, scan.NewGaze(a.gaze))
	}
	if d.FixedRegion != nil {
		out = append(out, scan.FixedRegion{Region: *d.FixedRegion})
	}
	if c := d.Calibration; c != nil {
		out = append(out, scan.CalibratedAnchor{
			Center:   geometry.Point2D{X: c.CircleX, Y: c.CircleY},
			Diameter: c.CircleDiameter,
			Params:   d.Params,
		})
	}
	if d.Mode != config.ModeCross {
		out = append(out, scan.NewDetected("ring", anchor.NewRingDetector(anchor.DefaultRingParams(), a.log), d.Params))
	}
	if d.Mode != config.ModeRing {
		out = append(out, scan.NewDetected("cross", anchor.NewCrossDetector(anchor.DefaultCrossParams(), a.log), d.Params))
	}
	return out
}

// Estimate values a rock type with the current tables and yield. It makes
// App a match.Valuer.
func (a *App) Estimate(rockType string) (value.Estimate, bool) {
	return a.estimator.Load().Estimate(rockType)
}

// Yield returns the refinery yield in use.
func (a *App) Yield() float64 { return a.estimator.Load().Yield() }

// RefreshPrices reloads the pricing tables. A refinery yield stored with
// the prices replaces the configured one. On failure the previous tables
// stay in use.
func (a *App) RefreshPrices(ctx context.Context) (value.Snapshot, error) {
	snap, err := a.Store.Refresh(ctx, a.source)
	if err != nil {
		if ctx.Err() == nil {
			a.Emit(EventPriceRefreshFailed, err)
		}
		return snap, err
	}
	if snap.RefineryYield > 0 && snap.RefineryYield != a.Yield() {
		a.estimator.Store(value.NewEstimator(a.Store, a.Config.Pricing.System, snap.RefineryYield))
		a.log.Debug().Float64("yield", snap.RefineryYield).Msg("using refinery yield from price cache")
	}
	a.Emit(EventPricesRefreshed, snap)
	return snap, nil
}

// Scan scans a screenshot file.
func (a *App) Scan(ctx context.Context, path string) (scan.Result, error) {
	res, err := a.Scanner.ScanFile(ctx, path)
	if err == nil {
		a.Emit(EventScanComplete, res)
	}
	return res, err
}

// ScanImage scans an already decoded screenshot.
func (a *App) ScanImage(ctx context.Context, img image.Image, source string) (scan.Result, error) {
	res, err := a.Scanner.ScanImage(ctx, img, source)
	if err == nil {
		a.Emit(EventScanComplete, res)
	}
	return res, err
}

// Match interprets a signature without OCR.
func (a *App) Match(sig int) []match.Match {
	return a.Matcher.Match(sig)
}

// Close releases the OCR backend.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
