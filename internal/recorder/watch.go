package recorder

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchTrigger fires on filesystem change events under WorkDir. Events
// inside one debounce window coalesce into a single firing.
type WatchTrigger struct {
	WorkDir        string
	IgnorePatterns []string
	Debounce       time.Duration // defaults to 500ms
}

// Run starts a recursive fsnotify watcher and fires (debounced) on Write,
// Create, Remove and Rename events until ctx is cancelled. Watcher errors
// are non-fatal; the watcher keeps running.
func (t *WatchTrigger) Run(ctx context.Context, fire TriggerFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Walk the tree and add a watcher for every subdirectory.
	if err := filepath.WalkDir(t.WorkDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if internalDirs[d.Name()] {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	}); err != nil {
		return err
	}

	patterns, _ := loadIgnorePatterns(t.WorkDir, t.IgnorePatterns)

	debounce := t.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	db := NewDebouncer(debounce, func() { fire("watch") })
	defer db.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			rel, err := filepath.Rel(t.WorkDir, event.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if isIgnored(rel, patterns) || internalDirs[filepath.Base(event.Name)] {
				continue
			}
			db.Trigger()

			// Watch newly created directories too.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Non-fatal; continue watching.
		}
	}
}
