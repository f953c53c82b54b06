// Package notify watches a drop-in directory and ingests documents as they
// appear, so field devices can pick up new reference material by copying a
// file rather than re-running the bootstrap.
package notify

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fieldaid/fieldaid/internal/ingest"
	"github.com/fieldaid/fieldaid/pkg/types"
)

// settleDelay is how long the watcher waits after the last write event
// before ingesting a file, so partially copied documents are not read.
const settleDelay = 500 * time.Millisecond

// AddFunc ingests one settled document from the drop-in directory.
type AddFunc func(ctx context.Context, r *os.File, meta types.DocumentMetadata) (*ingest.AddResult, error)

// Watcher ingests documents dropped into a directory.
type Watcher struct {
	dir     string
	ingest  func(ctx context.Context, path string) error
	watcher *fsnotify.Watcher
}

// New creates a watcher over dir. add is called for each settled file.
func New(dir string, add AddFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("notify: failed to create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("notify: failed to watch %q: %w", dir, err)
	}

	w := &Watcher{dir: dir, watcher: fw}
	w.ingest = func(ctx context.Context, path string) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		name := filepath.Base(path)
		meta := types.DocumentMetadata{
			Source:        name,
			Format:        ingest.InferFormat(name),
			Category:      "dropped",
			Priority:      3,
			LanguageCode:  "en",
			FieldSuitable: true,
		}
		result, err := add(ctx, f, meta)
		if err != nil {
			return err
		}
		log.Printf("notify: ingested %q: %d entries", name, result.EntriesAdded)
		return nil
	}
	return w, nil
}

// Run processes events until ctx is canceled. Write bursts for the same
// file are coalesced: ingestion happens settleDelay after the last event.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	pending := make(map[string]*time.Timer)
	done := make(chan string)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case path := <-done:
			delete(pending, path)
			if err := w.ingest(ctx, path); err != nil {
				log.Printf("notify: failed to ingest %q: %v", filepath.Base(path), err)
			}

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			path := event.Name
			if timer, exists := pending[path]; exists {
				timer.Reset(settleDelay)
				continue
			}
			pending[path] = time.AfterFunc(settleDelay, func() {
				select {
				case done <- path:
				case <-ctx.Done():
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("notify: watch error: %v", err)
		}
	}
}
