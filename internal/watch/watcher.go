// Package watch monitors a directory and ingests contract documents as they
// appear or change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/caselight/cqa-go/internal/ingestion"
	"github.com/caselight/cqa-go/internal/logging"
)

// DefaultDebounce is how long a file must stay quiet before it is ingested.
// Editors and downloads produce bursts of write events for a single save.
const DefaultDebounce = 500 * time.Millisecond

var watchedExtensions = []string{".txt", ".md"}

// Ingestor indexes a single document file.
type Ingestor interface {
	Ingest(ctx context.Context, path string) (*ingestion.Result, error)
}

// Watcher ingests supported files from a directory as they are created or
// modified.
type Watcher struct {
	ingestor Ingestor
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New constructs a Watcher. A non-positive debounce uses DefaultDebounce.
func New(ingestor Ingestor, debounce time.Duration) (*Watcher, error) {
	if ingestor == nil {
		return nil, fmt.Errorf("watch: ingestor is required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		ingestor: ingestor,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Run ingests the directory's existing supported files, then blocks watching
// for new ones until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	log := logging.FromContext(ctx)

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch: %s is not a directory", dir)
	}

	w.ingestExisting(ctx, dir)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: starting watcher: %w", err)
	}
	defer fw.Close() //nolint:errcheck
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch: watching %s: %w", dir, err)
	}

	log.Info("watching directory", slog.String("dir", dir), slog.Duration("debounce", w.debounce))

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !isSupported(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", slog.Any("error", err))
		}
	}
}

// ingestExisting indexes the supported files already present in dir.
func (w *Watcher) ingestExisting(ctx context.Context, dir string) {
	log := logging.FromContext(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("failed to list directory", slog.String("dir", dir), slog.Any("error", err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !isSupported(path) {
			continue
		}
		w.ingest(ctx, path)
	}
}

// schedule queues path for ingestion after the debounce window. Repeated
// events for the same path reset the timer.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		w.ingest(ctx, path)
	})
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	log := logging.FromContext(ctx)

	res, err := w.ingestor.Ingest(ctx, path)
	if err != nil {
		log.Warn("ingest failed", slog.String("path", path), slog.Any("error", err))
		return
	}
	log.Info("ingested document",
		slog.String("path", path),
		slog.String("source", res.Source),
		slog.Int("chunks", res.ChunkCount),
	)
}

func isSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range watchedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
