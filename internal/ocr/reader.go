package ocr

import (
	"context"
	"image"

	"sigscan/internal/errs"

	"github.com/rs/zerolog"
)

// Attempt records one normalization strategy tried by a Reader.
type Attempt struct {
	Strategy   Strategy
	Input      *image.NRGBA
	Text       string
	Candidates []Candidate
	Err        error
}

// Reading is the outcome of reading one region. Strategy, Text and
// Candidates come from the attempt that succeeded, or the last attempt when
// none did.
type Reading struct {
	Strategy   Strategy
	Text       string
	Candidates []Candidate
	Attempts   []Attempt
}

// Reader runs normalization strategies in order against a Recognizer and
// stops at the first one that yields a plausible signature.
type Reader struct {
	rec        Recognizer
	strategies []Strategy
	params     NormalizeParams
	extractor  Extractor
	allowlist  string
	log        zerolog.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithStrategies sets the strategy order.
func WithStrategies(s ...Strategy) ReaderOption {
	return func(r *Reader) { r.strategies = append([]Strategy(nil), s...) }
}

// WithNormalizeParams overrides the normalizer tuning.
func WithNormalizeParams(p NormalizeParams) ReaderOption {
	return func(r *Reader) { r.params = p }
}

// WithExtractor overrides the signature range.
func WithExtractor(e Extractor) ReaderOption {
	return func(r *Reader) { r.extractor = e }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) ReaderOption {
	return func(r *Reader) { r.log = log }
}

// NewReader creates a Reader. A nil recognizer is treated as Unavailable.
func NewReader(rec Recognizer, opts ...ReaderOption) *Reader {
	if rec == nil {
		rec = Unavailable{}
	}
	r := &Reader{
		rec:        rec,
		strategies: DefaultStrategies,
		params:     DefaultNormalizeParams(),
		extractor:  DefaultExtractor(),
		allowlist:  SignatureChars,
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Extractor returns the reader's signature range.
func (r *Reader) Extractor() Extractor { return r.extractor }

// Read OCRs img. An unavailable backend aborts immediately. Other backend
// failures move on to the next strategy; if every strategy failed the last
// error is returned. Finding no candidate is not an error.
func (r *Reader) Read(ctx context.Context, img image.Image) (Reading, error) {
	var reading Reading
	var lastErr error
	failures := 0

	for _, s := range r.strategies {
		att := Attempt{Strategy: s}

		input, err := Normalize(img, s, r.params)
		if err != nil {
			att.Err = errs.Wrap(err, errs.CodeInternal, "normalize region").With("strategy", string(s))
			reading.Attempts = append(reading.Attempts, att)
			lastErr = att.Err
			failures++
			continue
		}
		att.Input = input

		rec, err := r.rec.Recognize(ctx, input, r.allowlist)
		if err != nil {
			if errs.Is(err, errs.CodeOCRUnavailable) {
				return reading, err
			}
			r.log.Warn().Err(err).Str("strategy", string(s)).Msg("OCR attempt failed")
			att.Err = err
			reading.Attempts = append(reading.Attempts, att)
			lastErr = err
			failures++
			continue
		}

		att.Text = rec.Text
		att.Candidates = r.extractor.Extract(rec.Text, rec.Confidences)
		reading.Attempts = append(reading.Attempts, att)
		reading.Strategy, reading.Text, reading.Candidates = s, att.Text, att.Candidates

		r.log.Debug().
			Str("strategy", string(s)).
			Str("text", rec.Text).
			Int("candidates", len(att.Candidates)).
			Msg("OCR attempt")

		if len(att.Candidates) > 0 {
			return reading, nil
		}
	}

	if failures > 0 && failures == len(r.strategies) {
		return reading, lastErr
	}
	return reading, nil
}
