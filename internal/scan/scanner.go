// Package scan runs the detection pipeline over a screenshot: locate the
// readout, OCR it, and match the recovered signature.
package scan

import (
	"context"
	"image"
	"time"

	"sigscan/internal/anchor"
	"sigscan/internal/errs"
	"sigscan/internal/imageio"
	"sigscan/internal/match"
	"sigscan/internal/ocr"
	"sigscan/internal/region"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Outcome summarizes a scan. Everything but OutcomeFound is a normal
// "nothing found" result, not an error.
type Outcome string

const (
	OutcomeFound          Outcome = "found"
	OutcomeAnchorNotFound Outcome = "anchor_not_found"
	OutcomeRegionInvalid  Outcome = "region_invalid"
	OutcomeNoSignature    Outcome = "no_signature"
	OutcomeNoMatch        Outcome = "no_match"
)

// progress orders outcomes by how far the pipeline got.
func (o Outcome) progress() int {
	switch o {
	case OutcomeRegionInvalid:
		return 1
	case OutcomeNoSignature:
		return 2
	case OutcomeNoMatch, OutcomeFound:
		return 3
	}
	return 0
}

// further returns whichever of a and b got further.
func further(a, b Outcome) Outcome {
	if b.progress() > a.progress() {
		return b
	}
	return a
}

// Attempt records one strategy tried during a scan.
type Attempt struct {
	Strategy string         `json:"strategy"`
	Outcome  Outcome        `json:"outcome"`
	Region   *region.Region `json:"region,omitempty"`
	Text     string         `json:"text,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Result is the outcome of scanning one screenshot.
type Result struct {
	ID          uuid.UUID       `json:"id"`
	Source      string          `json:"source,omitempty"`
	Outcome     Outcome         `json:"outcome"`
	Method      string          `json:"method,omitempty"`
	Region      *region.Region  `json:"region,omitempty"`
	Rotation    float64         `json:"rotation,omitempty"`
	Anchor      *anchor.Anchor  `json:"anchor,omitempty"`
	Signature   int             `json:"signature,omitempty"`
	Candidates  []ocr.Candidate `json:"candidates,omitempty"`
	Text        string          `json:"text,omitempty"`
	OCRStrategy ocr.Strategy    `json:"ocr_strategy,omitempty"`
	Matches     []match.Match   `json:"matches,omitempty"`
	Attempts    []Attempt       `json:"attempts,omitempty"`
	DebugFiles  []string        `json:"debug_files,omitempty"`
	Duration    time.Duration   `json:"duration"`
}

// Signatures returns every candidate value, primary first.
func (r Result) Signatures() []int {
	if r.Signature == 0 {
		return nil
	}
	out := []int{r.Signature}
	for _, c := range r.Candidates {
		if c.Value != r.Signature {
			out = append(out, c.Value)
		}
	}
	return out
}

// Scanner runs strategies in order until one yields a signature. It keeps
// no state between scans.
type Scanner struct {
	strategies []Strategy
	reader     *ocr.Reader
	matcher    *match.Matcher
	debugDir   string
	log        zerolog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithStrategies sets the strategy order.
func WithStrategies(s ...Strategy) Option {
	return func(sc *Scanner) { sc.strategies = append([]Strategy(nil), s...) }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(sc *Scanner) { sc.log = log }
}

// WithDebugDir enables debug artifacts under dir. Empty disables them.
func WithDebugDir(dir string) Option {
	return func(sc *Scanner) { sc.debugDir = dir }
}

// DefaultStrategies is ring detection followed by cross detection.
func DefaultStrategies(log zerolog.Logger) []Strategy {
	rp := region.DefaultParams()
	return []Strategy{
		NewDetected("ring", anchor.NewRingDetector(anchor.DefaultRingParams(), log), rp),
		NewDetected("cross", anchor.NewCrossDetector(anchor.DefaultCrossParams(), log), rp),
	}
}

// New creates a Scanner.
func New(reader *ocr.Reader, matcher *match.Matcher, opts ...Option) *Scanner {
	s := &Scanner{reader: reader, matcher: matcher, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	if s.strategies == nil {
		s.strategies = DefaultStrategies(s.log)
	}
	return s
}

// Strategies returns the configured strategy names in order.
func (s *Scanner) Strategies() []string {
	names := make([]string, len(s.strategies))
	for i, st := range s.strategies {
		names[i] = st.Name()
	}
	return names
}

// ScanFile decodes path and scans it. Decode failures are
// errs.CodeInvalidInput.
func (s *Scanner) ScanFile(ctx context.Context, path string) (Result, error) {
	img, err := imageio.Decode(path)
	if err != nil {
		return Result{ID: uuid.New(), Source: path}, err
	}
	return s.ScanImage(ctx, img, path)
}

// ScanImage scans img. source is only used for reporting.
//
// An unavailable OCR backend is returned as an errs.CodeOCRUnavailable
// error. If no strategy produced a signature and OCR failed along the way,
// that failure is returned too so it is not mistaken for an empty readout.
func (s *Scanner) ScanImage(ctx context.Context, img image.Image, source string) (res Result, err error) {
	start := time.Now()
	res = Result{ID: uuid.New(), Source: source, Outcome: OutcomeAnchorNotFound}
	src := imageio.ToNRGBA(img)
	log := s.log.With().Str("scan", res.ID.String()).Logger()

	dbg := newDebugWriter(s.debugDir, res.ID, log)
	dbg.image("00_original", src)
	defer func() {
		res.Duration = time.Since(start)
		dbg.summary(&res)
		res.DebugFiles = dbg.Files()
	}()

	var ocrErr error
	for _, st := range s.strategies {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := st.Name()

		prop, err := st.Locate(ctx, src)
		if err != nil {
			return res, err
		}
		dbg.detection(name, src, prop)

		att := Attempt{Strategy: name, Outcome: prop.Outcome}
		if prop.Outcome != OutcomeFound {
			log.Debug().Str("strategy", name).Str("outcome", string(prop.Outcome)).Msg("strategy found no region")
			res.Outcome = further(res.Outcome, prop.Outcome)
			res.Attempts = append(res.Attempts, att)
			continue
		}
		r := prop.Region
		att.Region = &r
		dbg.image("03_sig_crop_"+name, prop.Crop)
		log.Debug().Str("strategy", name).Str("region", r.String()).Msg("readout region")

		reading, err := s.reader.Read(ctx, prop.Crop)
		for _, a := range reading.Attempts {
			if a.Input != nil {
				dbg.image("04_ocr_input_"+name+"_"+string(a.Strategy), a.Input)
			}
		}
		if err != nil {
			if errs.Is(err, errs.CodeOCRUnavailable) {
				res.Attempts = append(res.Attempts, att)
				return res, err
			}
			log.Warn().Err(err).Str("strategy", name).Msg("OCR failed")
			ocrErr = err
			att.Outcome, att.Error = OutcomeNoSignature, err.Error()
			res.Outcome = further(res.Outcome, OutcomeNoSignature)
			res.Attempts = append(res.Attempts, att)
			continue
		}

		att.Text = reading.Text
		sig, ok := ocr.Primary(reading.Candidates)
		if !ok {
			log.Debug().Str("strategy", name).Str("text", reading.Text).Msg("no signature in readout")
			att.Outcome = OutcomeNoSignature
			res.Outcome = further(res.Outcome, OutcomeNoSignature)
			res.Attempts = append(res.Attempts, att)
			continue
		}

		res.Method = name
		res.Region = &r
		res.Rotation = prop.Rotation
		res.Anchor = prop.Anchor
		res.Signature = sig
		res.Candidates = reading.Candidates
		res.Text = reading.Text
		res.OCRStrategy = reading.Strategy
		res.Matches = s.matcher.Match(sig)
		res.Outcome = OutcomeFound
		if len(res.Matches) == 0 {
			res.Outcome = OutcomeNoMatch
		}
		att.Outcome = res.Outcome
		res.Attempts = append(res.Attempts, att)

		log.Info().
			Str("method", name).
			Int("signature", sig).
			Int("matches", len(res.Matches)).
			Msg("signature detected")
		return res, nil
	}

	if ocrErr != nil {
		return res, ocrErr
	}
	return res, nil
}
