package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"strconv"
	"strings"

	"sigscan/internal/app"
	"sigscan/internal/config"
	"sigscan/internal/errs"
	"sigscan/internal/match"
	"sigscan/internal/scan"
	"sigscan/internal/watch"
)

func (e *env) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("sigscan "+name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func (e *env) open(ctx context.Context) (*app.App, int) {
	a, err := app.New(ctx, e.cfg, e.log, e.opts...)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to start")
		return nil, exitCode(err)
	}
	return a, exitOK
}

func (e *env) close(a *app.App) {
	if err := a.Close(); err != nil {
		e.log.Warn().Err(err).Msg("failed to release OCR backend")
	}
}

func (e *env) scan(ctx context.Context, args []string) int {
	fs := e.flags("scan")
	asJSON := fs.Bool("json", false, "print results as JSON")
	debug := fs.Bool("debug", false, "write debug artifacts under debug.dir")
	fixed := fs.String("region", "", "read this region x1,y1,x2,y2 before detecting the reticle")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(e.stderr, "sigscan scan: no screenshots given")
		return exitError
	}

	if *debug {
		e.cfg.Debug.Enabled = true
	}
	if *fixed != "" {
		r, err := config.ParseRegion(*fixed)
		if err != nil {
			e.log.Error().Err(err).Msg("invalid --region")
			return exitError
		}
		e.cfg.Detection.FixedRegion = &r
	}

	a, code := e.open(ctx)
	if a == nil {
		return code
	}
	defer e.close(a)

	status := exitOK
	results := []scan.Result{}
	for _, path := range fs.Args() {
		res, err := a.Scan(ctx, path)
		if err != nil {
			e.log.Error().Err(err).Str("path", path).Msg("scan failed")
			status = max(status, exitCode(err))
			if errs.Is(err, errs.CodeOCRUnavailable) || ctx.Err() != nil {
				break
			}
			continue
		}
		if *asJSON {
			results = append(results, res)
		} else {
			printResult(e.stdout, res)
		}
	}

	if *asJSON {
		if err := writeJSON(e.stdout, results); err != nil {
			e.log.Error().Err(err).Msg("failed to write results")
			return exitError
		}
	}
	return status
}

// matchOutput is one entry of `sigscan match --json`.
type matchOutput struct {
	Signature int           `json:"signature"`
	Matches   []match.Match `json:"matches"`
}

func (e *env) match(ctx context.Context, args []string) int {
	fs := e.flags("match")
	asJSON := fs.Bool("json", false, "print matches as JSON")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(e.stderr, "sigscan match: no signatures given")
		return exitError
	}

	sigs := make([]int, 0, fs.NArg())
	for _, s := range fs.Args() {
		n, err := parseSignature(s)
		if err != nil {
			e.log.Error().Err(err).Msg("invalid signature")
			return exitError
		}
		sigs = append(sigs, n)
	}

	a, code := e.open(ctx)
	if a == nil {
		return code
	}
	defer e.close(a)

	out := make([]matchOutput, 0, len(sigs))
	for _, sig := range sigs {
		ms := a.Match(sig)
		if ms == nil {
			ms = []match.Match{}
		}
		out = append(out, matchOutput{Signature: sig, Matches: ms})
	}

	if *asJSON {
		if err := writeJSON(e.stdout, out); err != nil {
			e.log.Error().Err(err).Msg("failed to write matches")
			return exitError
		}
		return exitOK
	}
	for _, o := range out {
		fmt.Fprintf(e.stdout, "%s:\n", groupThousands(o.Signature))
		printMatches(e.stdout, o.Matches)
	}
	return exitOK
}

// parseSignature accepts plain or thousands-grouped values ("1,900",
// "1.900").
func parseSignature(s string) (int, error) {
	clean := strings.NewReplacer(",", "", ".", "", " ", "").Replace(s)
	n, err := strconv.Atoi(clean)
	if err != nil || n <= 0 {
		return 0, errs.Newf(errs.CodeInvalidInput, "%q is not a signature", s)
	}
	return n, nil
}

func (e *env) watch(ctx context.Context, args []string) int {
	fs := e.flags("watch")
	dir := fs.String("dir", e.cfg.Watch.Dir, "screenshot folder")
	asJSON := fs.Bool("json", false, "print one JSON result per line")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if *dir == "" {
		fmt.Fprintln(e.stderr, "sigscan watch: no folder given, use --dir or watch.dir")
		return exitError
	}

	a, code := e.open(ctx)
	if a == nil {
		return code
	}
	defer e.close(a)

	if r := app.NewPriceRefresher(a, e.cfg.Pricing.RefreshInterval); r != nil {
		r.Start(ctx)
		defer r.Stop()
	}

	opts := watch.DefaultOptions()
	if e.cfg.Watch.Settle > 0 {
		opts.Settle = e.cfg.Watch.Settle
	}
	opts.SkipDuplicates = e.cfg.Watch.SkipDuplicates

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Set on the watcher's worker goroutine; read after Run has returned.
	var fatal error
	handle := func(ctx context.Context, path string, img *image.NRGBA) error {
		res, err := a.ScanImage(ctx, img, path)
		if err != nil {
			if errs.Is(err, errs.CodeOCRUnavailable) {
				fatal = err
				cancel()
			}
			return err
		}
		if *asJSON {
			return writeJSONLine(e.stdout, res)
		}
		printResult(e.stdout, res)
		return nil
	}

	w := watch.New(*dir, opts, handle, e.log)
	if err := w.Run(ctx); err != nil {
		e.log.Error().Err(err).Msg("watch failed")
		return exitCode(err)
	}
	return exitCode(fatal)
}
