package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"sigscan/internal/match"
	"sigscan/internal/scan"
)

func printResult(w io.Writer, res scan.Result) {
	switch res.Outcome {
	case scan.OutcomeFound, scan.OutcomeNoMatch:
		fmt.Fprintf(w, "%s: signature %s via %s", res.Source, groupThousands(res.Signature), res.Method)
		if sigs := res.Signatures(); len(sigs) > 1 {
			other := make([]string, len(sigs)-1)
			for i, s := range sigs[1:] {
				other[i] = groupThousands(s)
			}
			fmt.Fprintf(w, " (also read %s)", strings.Join(other, ", "))
		}
		fmt.Fprintln(w)
		printMatches(w, res.Matches)
	default:
		fmt.Fprintf(w, "%s: no signature (%s)\n", res.Source, strings.ReplaceAll(string(res.Outcome), "_", " "))
	}
	if len(res.DebugFiles) > 0 {
		fmt.Fprintf(w, "  debug files in %s\n", filepath.Dir(res.DebugFiles[0]))
	}
}

func printMatches(w io.Writer, ms []match.Match) {
	if len(ms) == 0 {
		fmt.Fprintln(w, "  no matches")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, m := range ms {
		fmt.Fprintf(tw, "  %3.0f%%\t%s\t%s\t%s\n", m.Confidence*100, m.Category, m.Name, detail(m))
	}
	tw.Flush()
}

// detail is the trailing column of a match line.
func detail(m match.Match) string {
	var parts []string
	switch m.Category {
	case match.CategorySpaceDeposit, match.CategorySurfaceDeposit:
		parts = append(parts, fmt.Sprintf("x%d", m.Count))
	case match.CategoryShip:
		parts = append(parts, m.Manufacturer, m.Axis+" axis")
	}
	if m.RockType != "" {
		parts = append(parts, m.RockType)
	}
	if m.EstimatedValue > 0 {
		parts = append(parts, "~"+groupThousands(int(m.EstimatedValue+0.5))+" aUEC")
	}
	if len(m.Minerals) > 0 {
		parts = append(parts, strings.Join(m.Minerals, "/"))
	}
	return strings.Join(parts, "  ")
}

// groupThousands formats n the way the HUD shows it ("12,345").
func groupThousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
