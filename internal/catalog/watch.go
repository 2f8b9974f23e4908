package catalog

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watch drops the cache whenever check metadata under the providers
// directory changes. It blocks until ctx is done.
func (c *Catalog) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		c.logger.Error("failed to create fsnotify watcher", "error", err)
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			c.logger.Warn("catalog watcher close failed", "error", err)
		}
	}()

	if err := addTree(w, c.root); err != nil {
		c.logger.Error("failed to watch providers directory", "providers_dir", c.root, "error", err)
		return err
	}
	c.logger.Info("catalog.watch.start", "providers_dir", c.root)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		c.Reload()
		c.logger.Info("catalog.reload", "providers_dir", c.root)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("catalog.watch.stop")
			return nil
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if e.Has(fsnotify.Create) {
				// New provider or service directories need their own watch.
				_ = addTree(w, e.Name)
			}
			if !relevant(e) {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
			mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("catalog watcher error", "error", err)
		}
	}
}

func relevant(e fsnotify.Event) bool {
	if e.Has(fsnotify.Chmod) && !e.Has(fsnotify.Write) {
		return false
	}
	base := filepath.Base(e.Name)
	if strings.HasSuffix(base, metadataSuffix) || base == providerMeta {
		return true
	}
	// Directory renames and removals do not carry a suffix.
	return e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename) || e.Has(fsnotify.Create)
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})
}
