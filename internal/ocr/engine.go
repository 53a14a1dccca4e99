// Package ocr reads the signature readout: it normalizes the cropped region,
// runs a pluggable OCR backend and parses the text into signature values.
package ocr

import (
	"context"
	"image"

	"sigscan/internal/errs"
)

// SignatureChars is the allowlist for signature readouts: digits and the
// thousands separators the HUD may render.
const SignatureChars = "0123456789,."

// Recognition is the raw output of a backend. Confidences holds one value in
// [0,1] per recognized token and may be empty.
type Recognition struct {
	Text        string
	Confidences []float64
}

// Recognizer is an OCR backend. Implementations must restrict output to
// allowlist when it is non-empty.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, allowlist string) (Recognition, error)
}

// Unavailable stands in for a missing backend. Every call fails with
// errs.CodeOCRUnavailable so callers can tell "OCR disabled" apart from
// "nothing found".
type Unavailable struct {
	Reason string
}

// Recognize always fails.
func (u Unavailable) Recognize(context.Context, image.Image, string) (Recognition, error) {
	reason := u.Reason
	if reason == "" {
		reason = "no OCR backend configured"
	}
	return Recognition{}, errs.New(errs.CodeOCRUnavailable, reason)
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, img image.Image, allowlist string) (Recognition, error)

// Recognize calls f.
func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image, allowlist string) (Recognition, error) {
	return f(ctx, img, allowlist)
}
