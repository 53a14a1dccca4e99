package ocr

import (
	"regexp"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

var (
	groupedPattern = regexp.MustCompile(`\b\d{1,3}[,.]\d{3}\b`)
	barePattern    = regexp.MustCompile(`\b\d{3,6}\b`)
)

// Candidate is a plausible signature value parsed from OCR text.
type Candidate struct {
	Value      int     `json:"value"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Extractor parses OCR text into signature candidates within [Min, Max].
type Extractor struct {
	Min int
	Max int
}

// DefaultExtractor accepts 100 to 200,000.
func DefaultExtractor() Extractor {
	return Extractor{Min: 100, Max: 200000}
}

// Extract finds thousands-grouped numbers first, then bare 3-6 digit runs
// in the remaining text. Values outside the range are dropped and each value
// is reported once, in order of appearance. The candidate confidence is the
// mean of the token confidences.
func (e Extractor) Extract(text string, confidences []float64) []Candidate {
	conf := 0.0
	if len(confidences) > 0 {
		conf = stat.Mean(confidences, nil)
	}

	seen := make(map[int]bool)
	var out []Candidate
	add := func(raw string) {
		digits := strings.NewReplacer(",", "", ".", "").Replace(raw)
		v, err := strconv.Atoi(digits)
		if err != nil || v < e.Min || v > e.Max || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, Candidate{Value: v, Text: raw, Confidence: conf})
	}

	rest := []byte(text)
	for _, loc := range groupedPattern.FindAllStringIndex(text, -1) {
		add(text[loc[0]:loc[1]])
		for i := loc[0]; i < loc[1]; i++ {
			rest[i] = ' '
		}
	}
	for _, m := range barePattern.FindAllString(string(rest), -1) {
		add(m)
	}
	return out
}

// Primary returns the largest candidate value, or false if there is none.
func Primary(cands []Candidate) (int, bool) {
	if len(cands) == 0 {
		return 0, false
	}
	best := cands[0].Value
	for _, c := range cands[1:] {
		best = max(best, c.Value)
	}
	return best, true
}
