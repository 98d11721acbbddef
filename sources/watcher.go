package sources

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sublatesublate-design/legal-database/logger"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before it is handled
const DefaultDebounce = 500 * time.Millisecond

// Handler is called once per settled law text
type Handler func(ctx context.Context, path string)

// Watcher reports law texts created or rewritten under a directory
type Watcher struct {
	root     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	handle   Handler
	log      *logger.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewWatcher watches root and every non-hidden directory below it
func NewWatcher(root string, debounce time.Duration, handle Handler, log *logger.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logger.Nop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		debounce: debounce,
		watcher:  fsw,
		handle:   handle,
		log:      log.Component("watcher"),
		pending:  make(map[string]time.Time),
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("failed to watch directory")
		}
		return nil
	})
}

// Run handles events until ctx is done, then closes the watcher
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	w.log.Info().Str("root", w.root).Dur("debounce", w.debounce).Msg("watching for law texts")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.record(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("watcher error")

		case now := <-ticker.C:
			for _, path := range w.settled(now) {
				w.handle(ctx, path)
			}
		}
	}
}

func (w *Watcher) record(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addRecursive(path); err != nil {
				w.log.Warn().Err(err).Str("path", path).Msg("failed to watch new directory")
			}
			return
		}
	}
	if !strings.EqualFold(filepath.Ext(path), Extension) {
		return
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.log.Info().Str("path", path).Msg("law text removed; purge it explicitly to drop the law")
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// settled drains the paths quiet for at least the debounce delay
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}
