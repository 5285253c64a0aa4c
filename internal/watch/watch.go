// Package watch re-checks a collection manifest whenever it or one of its
// layer files changes on disk.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/papapumpkin/strata/internal/catalog"
	"github.com/papapumpkin/strata/internal/fault"
	"github.com/papapumpkin/strata/internal/forge"
	"github.com/papapumpkin/strata/internal/log"
)

// DefaultDebounce is how long a file must be quiet before it is re-checked.
const DefaultDebounce = 100 * time.Millisecond

// Result is the outcome of checking the manifest after a change.
type Result struct {
	File     string // file whose change triggered the check
	Name     string // collection name, when the manifest parsed
	Editions int
	Errs     []error
}

// OK reports whether the manifest checked clean.
func (r Result) OK() bool { return len(r.Errs) == 0 }

// CheckFunc checks the manifest at path.
type CheckFunc func(path string) Result

// Watcher monitors a manifest and its layers directory using fsnotify.
// Layer directories are watched recursively; directories created later are
// picked up as they appear.
type Watcher struct {
	Manifest string
	Results  <-chan Result // Read-only external channel

	results  chan Result // Internal write channel
	done     chan struct{}
	watcher  *fsnotify.Watcher
	check    CheckFunc
	debounce time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithCheck replaces the manifest check.
func WithCheck(fn CheckFunc) Option { return func(w *Watcher) { w.check = fn } }

// WithDebounce sets the quiet period before a re-check.
func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounce = d } }

// New creates a watcher for the manifest at path.
func New(path string, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ch := make(chan Result, 16)
	w := &Watcher{
		Manifest: path,
		Results:  ch,
		results:  ch,
		done:     make(chan struct{}),
		watcher:  fw,
		check:    Check,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching the manifest directory and layersDir. An empty or
// missing layersDir watches the manifest alone.
func (w *Watcher) Start(layersDir string) error {
	if err := w.watcher.Add(filepath.Dir(w.Manifest)); err != nil {
		return err
	}
	if layersDir != "" {
		if err := w.addTree(layersDir); err != nil {
			return err
		}
	}

	go w.loop()
	return nil
}

// Stop closes the watcher and channels.
func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done // Wait for loop to exit
	close(w.results)
}

// Run forwards results to fn until ctx is canceled, then stops the watcher.
func (w *Watcher) Run(ctx context.Context, fn func(Result)) {
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-w.Results:
			fn(r)
		}
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				return err
			}
			log.Debug(log.CatWatch, "watching", "dir", path)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer close(w.done)

	// Debounce: the manifest is checked once per quiet period however many
	// files changed.
	var pending string
	var last time.Time
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				if pending != "" {
					w.emit(pending)
				}
				return
			}

			if event.Has(fsnotify.Create) && isDir(event.Name) {
				if err := w.addTree(event.Name); err != nil {
					log.Warn(log.CatWatch, "watch add failed", "dir", event.Name, "error", err)
				}
			}
			if !w.relevant(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending, last = event.Name, time.Now()
			}

		case <-ticker.C:
			if pending != "" && time.Since(last) >= w.debounce {
				w.emit(pending)
				pending = ""
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are non-fatal.
			log.Warn(log.CatWatch, "watch error", "error", err)
		}
	}
}

// relevant filters out files that never affect the collection: the run
// state file, temp files and editor droppings in the manifest directory.
func (w *Watcher) relevant(name string) bool {
	base := filepath.Base(name)
	if base == forge.StateFileName || strings.HasSuffix(base, ".tmp") || strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	if filepath.Dir(name) == filepath.Dir(w.Manifest) && !isDir(name) {
		return filepath.Clean(name) == filepath.Clean(w.Manifest)
	}
	return true
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (w *Watcher) emit(file string) {
	r := w.check(w.Manifest)
	r.File = file
	log.Info(log.CatWatch, "manifest checked", "trigger", file, "errors", len(r.Errs))
	w.results <- r
}

// Check loads, builds and reconciles the manifest at path with a fixed seed
// and reports every problem found.
func Check(path string) Result {
	m, err := catalog.LoadManifest(path)
	if err != nil {
		return Result{Errs: []error{err}}
	}
	r := Result{Name: m.Collection.Name, Editions: m.Collection.Size}
	col, err := m.Build()
	if err != nil {
		r.Errs = fault.Split(err)
		return r
	}
	if _, err := forge.New(col, forge.WithSeed(1)).Prepare(context.Background()); err != nil {
		r.Errs = fault.Split(err)
	}
	return r
}
