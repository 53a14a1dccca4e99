package ocr

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"sync"

	"sigscan/internal/errs"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"
)

// TesseractOptions configures the Tesseract backend.
type TesseractOptions struct {
	Language       string
	TessdataPrefix string
	PageSegMode    gosseract.PageSegMode
}

// DefaultTesseractOptions reads a single line of English digits.
func DefaultTesseractOptions() TesseractOptions {
	return TesseractOptions{
		Language:    "eng",
		PageSegMode: gosseract.PSM_SINGLE_LINE,
	}
}

// Tesseract is a Recognizer backed by gosseract. The client is created on
// first use; if that fails the backend stays unavailable for its lifetime.
// Calls are serialized since a Tesseract client is not safe for concurrent use.
type Tesseract struct {
	opts TesseractOptions
	log  zerolog.Logger

	once    sync.Once
	initErr error

	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates a lazily initialized Tesseract backend.
func NewTesseract(opts TesseractOptions, log zerolog.Logger) *Tesseract {
	if opts.Language == "" {
		opts.Language = "eng"
	}
	return &Tesseract{opts: opts, log: log}
}

// Available initializes the client if needed and reports whether it works.
func (t *Tesseract) Available() error {
	t.once.Do(t.init)
	return t.initErr
}

func (t *Tesseract) init() {
	client := gosseract.NewClient()

	if t.opts.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.opts.TessdataPrefix); err != nil {
			client.Close()
			t.initErr = errs.Wrap(err, errs.CodeOCRUnavailable, "set tessdata prefix")
			return
		}
	}
	if err := client.SetLanguage(t.opts.Language); err != nil {
		client.Close()
		t.initErr = errs.Wrap(err, errs.CodeOCRUnavailable, "set OCR language")
		return
	}

	// Dictionaries only hurt on numbers.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	// Tesseract loads its data lazily; a probe run surfaces a missing
	// install or language pack now instead of on every scan.
	probe, err := encodePNG(image.NewGray(image.Rect(0, 0, 8, 8)))
	if err == nil {
		err = client.SetImageFromBytes(probe)
	}
	if err == nil {
		_, err = client.Text()
	}
	if err != nil {
		client.Close()
		t.initErr = errs.Wrap(err, errs.CodeOCRUnavailable, "initialize tesseract").
			With("language", t.opts.Language)
		t.log.Warn().Err(err).Msg("tesseract unavailable")
		return
	}

	t.client = client
	t.log.Debug().Str("version", gosseract.Version()).Str("language", t.opts.Language).Msg("tesseract ready")
}

// Recognize runs Tesseract on img. Token confidences come from word-level
// bounding boxes, scaled to [0,1].
func (t *Tesseract) Recognize(ctx context.Context, img image.Image, allowlist string) (Recognition, error) {
	if err := t.Available(); err != nil {
		return Recognition{}, err
	}

	buf, err := encodePNG(img)
	if err != nil {
		return Recognition{}, errs.Wrap(err, errs.CodeInternal, "encode OCR input")
	}

	type result struct {
		rec Recognition
		err error
	}
	done := make(chan result, 1)
	go func() {
		rec, err := t.recognize(buf, allowlist)
		done <- result{rec, err}
	}()

	select {
	case r := <-done:
		return r.rec, r.err
	case <-ctx.Done():
		return Recognition{}, errs.Wrap(ctx.Err(), errs.CodeOCRFailed, "OCR canceled")
	}
}

func (t *Tesseract) recognize(buf []byte, allowlist string) (Recognition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return Recognition{}, errs.New(errs.CodeOCRUnavailable, "tesseract closed")
	}
	if err := t.client.SetPageSegMode(t.opts.PageSegMode); err != nil {
		return Recognition{}, errs.Wrap(err, errs.CodeOCRFailed, "set page segmentation mode")
	}
	if err := t.client.SetWhitelist(allowlist); err != nil {
		return Recognition{}, errs.Wrap(err, errs.CodeOCRFailed, "set whitelist")
	}
	if err := t.client.SetImageFromBytes(buf); err != nil {
		return Recognition{}, errs.Wrap(err, errs.CodeOCRFailed, "set image")
	}

	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err == nil && len(boxes) > 0 {
		words := make([]string, 0, len(boxes))
		confs := make([]float64, 0, len(boxes))
		for _, b := range boxes {
			w := strings.TrimSpace(b.Word)
			if w == "" {
				continue
			}
			words = append(words, w)
			confs = append(confs, b.Confidence/100)
		}
		return Recognition{Text: strings.Join(words, " "), Confidences: confs}, nil
	}

	text, err := t.client.Text()
	if err != nil {
		return Recognition{}, errs.Wrap(err, errs.CodeOCRFailed, "OCR failed")
	}
	return Recognition{Text: strings.Join(strings.Fields(text), " ")}, nil
}

// Close releases the Tesseract client. A closed backend is not reopened;
// later calls fail with CodeOCRUnavailable.
func (t *Tesseract) Close() error {
	t.once.Do(func() {})
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
