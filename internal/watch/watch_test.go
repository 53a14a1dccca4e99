package watch

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sigscan/internal/errs"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImage(t *testing.T) {
	for path, want := range map[string]bool{
		"shot.png":         true,
		"Shot.PNG":         true,
		"a/b/c.jpeg":       true,
		"x.webp":           true,
		"scan.tiff":        true,
		"notes.txt":        false,
		"archive.png.part": false,
		"noext":            false,
	} {
		assert.Equal(t, want, IsImage(path), path)
	}
}

// halves returns a 64x64 image whose left (or top) half is white.
func halves(vertical bool) *image.NRGBA {
	img := imaging.New(64, 64, color.NRGBA{0, 0, 0, 255})
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if (vertical && x < 32) || (!vertical && y < 32) {
				img.Set(x, y, color.NRGBA{255, 255, 255, 255})
			}
		}
	}
	return img
}

// withReadout returns a copy of img with a small bright patch standing in for
// the signature digits; n shifts the patch so readouts differ.
func withReadout(img *image.NRGBA, n int) *image.NRGBA {
	out := imaging.Clone(img)
	for y := 40; y < 43; y++ {
		for x := 40 + n; x < 43+n; x++ {
			out.Set(x, y, color.NRGBA{255, 160, 40, 255})
		}
	}
	return out
}

// saveAtomically writes img next to path and renames it into place so the
// watcher never sees a half-written file.
func saveAtomically(t *testing.T, path string, img image.Image) {
	t.Helper()
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	require.NoError(t, imaging.Save(img, tmp))
	require.NoError(t, os.Rename(tmp, path))
}

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(_ context.Context, path string, img *image.NRGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
	if img == nil {
		return errs.New(errs.CodeInternal, "nil image")
	}
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func startWatcher(t *testing.T, dir string, opts Options, rec *recorder) (cancel func()) {
	t.Helper()
	w := New(dir, opts, rec.handle, zerolog.Nop())

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}

	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	}
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.Settle = 20 * time.Millisecond
	return opts
}

func TestWatcherScansNewScreenshots(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	stop := startWatcher(t, dir, fastOptions(), rec)
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))
	saveAtomically(t, filepath.Join(dir, "first.png"), halves(true))

	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"first.png"}, rec.seen())
}

func TestWatcherSkipsDuplicates(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	opts := fastOptions()
	opts.SkipDuplicates = true
	stop := startWatcher(t, dir, opts, rec)
	defer stop()

	saveAtomically(t, filepath.Join(dir, "a.png"), halves(true))
	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 5*time.Second, 20*time.Millisecond)

	saveAtomically(t, filepath.Join(dir, "b.png"), halves(true))
	saveAtomically(t, filepath.Join(dir, "c.png"), halves(false))

	require.Eventually(t, func() bool { return len(rec.seen()) == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"a.png", "c.png"}, rec.seen())
}

func TestWatcherScansChangedReadout(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	opts := fastOptions()
	opts.SkipDuplicates = true
	stop := startWatcher(t, dir, opts, rec)
	defer stop()

	saveAtomically(t, filepath.Join(dir, "a.png"), withReadout(halves(true), 0))
	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 5*time.Second, 20*time.Millisecond)
	saveAtomically(t, filepath.Join(dir, "b.png"), withReadout(halves(true), 4))
	require.Eventually(t, func() bool { return len(rec.seen()) == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"a.png", "b.png"}, rec.seen())
}

func TestWatcherKeepsDuplicatesWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	opts := fastOptions()
	opts.SkipDuplicates = false
	stop := startWatcher(t, dir, opts, rec)
	defer stop()

	saveAtomically(t, filepath.Join(dir, "a.png"), halves(true))
	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 5*time.Second, 20*time.Millisecond)
	saveAtomically(t, filepath.Join(dir, "b.png"), halves(true))
	require.Eventually(t, func() bool { return len(rec.seen()) == 2 }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcherMissingFolder(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "nope"), fastOptions(), (&recorder{}).handle, zerolog.Nop())
	err := w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInvalidInput))
}

func TestSettle(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, fastOptions(), (&recorder{}).handle, zerolog.Nop())

	path := filepath.Join(dir, "x.png")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	assert.True(t, w.settle(context.Background(), path))

	assert.False(t, w.settle(context.Background(), filepath.Join(dir, "missing.png")))

	empty := filepath.Join(dir, "empty.png")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	w.opts.SettleTries = 3
	assert.False(t, w.settle(context.Background(), empty), "zero-size files never settle")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, w.settle(ctx, empty))
}

func TestDuplicate(t *testing.T) {
	w := New(t.TempDir(), fastOptions(), (&recorder{}).handle, zerolog.Nop())

	assert.False(t, w.duplicate(halves(true)), "first image is never a duplicate")
	assert.True(t, w.duplicate(halves(true)))
	assert.False(t, w.duplicate(halves(false)))
	assert.False(t, w.duplicate(halves(true)))

	assert.False(t, w.duplicate(withReadout(halves(true), 0)), "readout changed")
	assert.True(t, w.duplicate(withReadout(halves(true), 0)))
	assert.False(t, w.duplicate(withReadout(halves(true), 4)), "readout changed again")
}

func TestDefaultOptionsKeepDuplicates(t *testing.T) {
	assert.False(t, DefaultOptions().SkipDuplicates)
}
