// Package watch scans screenshots as they appear in a folder.
package watch

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sigscan/internal/errs"
	"sigscan/internal/imageio"

	"github.com/corona10/goimagehash"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Extensions are the file types picked up, lower case.
var Extensions = []string{".png", ".jpg", ".jpeg", ".webp", ".bmp", ".tif", ".tiff"}

// IsImage reports whether path has a watched extension.
func IsImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Handler processes one new screenshot.
type Handler func(ctx context.Context, path string, img *image.NRGBA) error

// Options tunes a Watcher.
type Options struct {
	// Settle is the poll interval while waiting for a file's size to stop
	// changing.
	Settle time.Duration
	// SettleTries bounds how many polls a file gets before it is skipped.
	SettleTries int
	// SkipDuplicates drops a screenshot whose pixels equal the previous
	// one's. Frames differing only in the readout share a pHash, so a hash
	// match alone never counts.
	SkipDuplicates bool
	// MaxHashDistance is the largest pHash distance worth a pixel compare.
	MaxHashDistance int
	// QueueSize bounds pending files; events beyond it are dropped.
	QueueSize int
}

// DefaultOptions returns the stock settings.
func DefaultOptions() Options {
	return Options{
		Settle:      200 * time.Millisecond,
		SettleTries: 25,
		QueueSize:   64,
	}
}

// Watcher feeds new screenshots in a folder to a Handler, one at a time.
type Watcher struct {
	dir    string
	opts   Options
	handle Handler
	log    zerolog.Logger

	ready    chan struct{}
	mu       sync.Mutex
	pending  map[string]bool
	lastHash *goimagehash.ImageHash
	last     *image.NRGBA
}

// New creates a Watcher for dir.
func New(dir string, opts Options, handle Handler, log zerolog.Logger) *Watcher {
	if opts.SettleTries <= 0 {
		opts.SettleTries = DefaultOptions().SettleTries
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	return &Watcher{
		dir:     dir,
		opts:    opts,
		handle:  handle,
		log:     log.With().Str("dir", dir).Logger(),
		ready:   make(chan struct{}),
		pending: make(map[string]bool),
	}
}

// Ready is closed once the folder is being watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run watches until ctx ends. It returns an error only if the folder cannot
// be watched; handler failures are logged. Run may be called once.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(err, errs.CodeInternal, "failed to create file watcher")
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return errs.Wrap(err, errs.CodeInvalidInput, "cannot watch folder").With("dir", w.dir)
	}

	queue := make(chan string, w.opts.QueueSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.work(ctx, queue)
	}()
	defer func() {
		close(queue)
		wg.Wait()
	}()

	w.log.Info().Msg("watching for screenshots")
	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !IsImage(ev.Name) {
				continue
			}
			w.enqueue(queue, ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("file watcher error")
		}
	}
}

func (w *Watcher) enqueue(queue chan<- string, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending[path] {
		return
	}
	select {
	case queue <- path:
		w.pending[path] = true
	default:
		w.log.Warn().Str("path", path).Msg("scan queue full, dropping screenshot")
	}
}

func (w *Watcher) done(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()
}

func (w *Watcher) work(ctx context.Context, queue <-chan string) {
	for path := range queue {
		if ctx.Err() == nil && w.settle(ctx, path) {
			w.process(ctx, path)
		}
		w.done(path)
	}
}

// settle waits until path has a stable, non-zero size.
func (w *Watcher) settle(ctx context.Context, path string) bool {
	last := int64(-1)
	for i := 0; i < w.opts.SettleTries; i++ {
		info, err := os.Stat(path)
		if err != nil {
			w.log.Debug().Err(err).Str("path", path).Msg("screenshot vanished")
			return false
		}
		size := info.Size()
		if size > 0 && size == last {
			return true
		}
		last = size
		select {
		case <-ctx.Done():
			return false
		case <-time.After(w.opts.Settle):
		}
	}
	w.log.Warn().Str("path", path).Msg("screenshot never finished writing")
	return false
}

func (w *Watcher) process(ctx context.Context, path string) {
	img, err := imageio.Decode(path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("cannot read screenshot")
		return
	}
	if w.opts.SkipDuplicates && w.duplicate(img) {
		w.log.Debug().Str("path", path).Msg("skipping duplicate screenshot")
		return
	}
	if err := w.handle(ctx, path, img); err != nil {
		w.log.Error().Err(err).Str("path", path).Msg("scan failed")
	}
}

// duplicate reports whether img repeats the previous screenshot exactly.
func (w *Watcher) duplicate(img *image.NRGBA) bool {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return false
	}
	prevHash, prev := w.lastHash, w.last
	w.lastHash, w.last = hash, img
	if prevHash == nil {
		return false
	}
	if dist, err := prevHash.Distance(hash); err != nil || dist > w.opts.MaxHashDistance {
		return false
	}
	return samePixels(prev, img)
}

func samePixels(a, b *image.NRGBA) bool {
	if a.Bounds().Size() != b.Bounds().Size() {
		return false
	}
	if a.Stride == b.Stride && a.Rect == b.Rect {
		return bytes.Equal(a.Pix, b.Pix)
	}
	w, h := a.Bounds().Dx()*4, a.Bounds().Dy()
	for y := 0; y < h; y++ {
		ra := a.Pix[a.PixOffset(a.Rect.Min.X, a.Rect.Min.Y+y):][:w]
		rb := b.Pix[b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y+y):][:w]
		if !bytes.Equal(ra, rb) {
			return false
		}
	}
	return true
}
