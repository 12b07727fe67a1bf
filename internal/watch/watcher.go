// Package watch turns a directory into a drop folder: video files that land
// in it are handed, one at a time, to a handler once they stop changing.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/ffcrop/internal/config"
	"github.com/mantonx/ffcrop/internal/logger"
)

// scratchPrefix marks diagnostic scratch files, which are never inputs
const scratchPrefix = "ffcrop-"

// Handler processes one settled file. Errors are logged and do not stop the watcher.
type Handler func(ctx context.Context, path string) error

// pendingFile tracks a file that is still being written
type pendingFile struct {
	lastEvent time.Time
	size      int64
}

// Watcher monitors a single directory
type Watcher struct {
	logger       hclog.Logger
	dir          string
	extensions   map[string]bool
	ignoreSuffix string
	settle       time.Duration
	handler      Handler

	mu      sync.Mutex
	pending map[string]*pendingFile
	ready   chan string
}

// New creates a watcher for dir. Files whose stem ends in ignoreSuffix are
// skipped so that outputs written into the folder are not picked up again.
func New(log hclog.Logger, dir string, cfg config.WatchConfig, ignoreSuffix string, handler Handler) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	exts := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = true
	}

	settle := cfg.Settle
	if settle <= 0 {
		settle = time.Second
	}

	return &Watcher{
		logger:       logger.OrNull(log).Named("watch"),
		dir:          dir,
		extensions:   exts,
		ignoreSuffix: ignoreSuffix,
		settle:       settle,
		handler:      handler,
		pending:      make(map[string]*pendingFile),
		ready:        make(chan string, 64),
	}, nil
}

// Accept reports whether path is a candidate input
func (w *Watcher) Accept(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, scratchPrefix) {
		return false
	}

	ext := strings.ToLower(filepath.Ext(base))
	if len(w.extensions) > 0 && !w.extensions[ext] {
		return false
	}

	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if w.ignoreSuffix != "" && strings.HasSuffix(stem, w.ignoreSuffix) {
		return false
	}
	return true
}

// Run watches until ctx is done. The handler runs on a single goroutine, so
// files are processed sequentially in the order they settle.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to add watch for %s: %w", w.dir, err)
	}

	w.logger.Info("watching directory", "dir", w.dir, "settle", w.settle)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.processReady(ctx)
	}()

	ticker := time.NewTicker(w.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				w.logger.Info("file watcher events channel closed")
				wg.Wait()
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-fsw.Errors:
			if !ok {
				wg.Wait()
				return nil
			}
			w.logger.Error("file watcher error", "error", err)

		case now := <-ticker.C:
			w.promoteSettled(ctx, now)

		case <-ctx.Done():
			w.logger.Info("watcher stopped", "dir", w.dir)
			wg.Wait()
			return nil
		}
	}
}

func (w *Watcher) tickInterval() time.Duration {
	interval := w.settle / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}

// handleEvent records activity on accepted files
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			w.mu.Lock()
			delete(w.pending, event.Name)
			w.mu.Unlock()
		}
		return
	}
	if !w.Accept(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pending[event.Name]
	if !ok {
		p = &pendingFile{size: -1}
		w.pending[event.Name] = p
		w.logger.Debug("file detected", "path", event.Name)
	}
	p.lastEvent = time.Now()
}

// promoteSettled queues files that saw no events for the settle period and
// whose size did not change since the previous check.
func (w *Watcher) promoteSettled(ctx context.Context, now time.Time) {
	w.mu.Lock()
	var settled []string
	for path, p := range w.pending {
		if now.Sub(p.lastEvent) < w.settle {
			continue
		}

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			delete(w.pending, path)
			continue
		}
		if info.Size() != p.size {
			p.size = info.Size()
			p.lastEvent = now
			continue
		}

		delete(w.pending, path)
		settled = append(settled, path)
	}
	w.mu.Unlock()

	for _, path := range settled {
		select {
		case w.ready <- path:
			w.logger.Debug("file settled", "path", path)
		case <-ctx.Done():
			return
		}
	}
}

// processReady runs the handler for each settled file in turn
func (w *Watcher) processReady(ctx context.Context) {
	for {
		select {
		case path := <-w.ready:
			w.logger.Info("processing file", "path", path)
			if err := w.handler(ctx, path); err != nil {
				w.logger.Error("failed to process file", "path", path, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
