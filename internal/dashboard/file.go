package dashboard

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// File is a source reading a snapshot exported by the analytics pipeline to a file.
// Files with a .toml extension are decoded as TOML, anything else as YAML, which includes JSON.
type File struct {
	snapshot *Snapshot
	lock     sync.RWMutex
	path     string

	log *slog.Logger
}

type fileOptions struct {
	logger *slog.Logger
}

// FileOptions represents an optional function to override File default values.
type FileOptions func(*fileOptions)

// NewFile creates a file source for path. Nothing is read until Load or Watch is called.
func NewFile(path string, args ...FileOptions) *File {
	opts := fileOptions{
		logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &File{
		path: filepath.Clean(path),
		log:  opts.logger,
	}
}

// Load reads the snapshot file and replaces the served snapshot.
// On error, the previously loaded snapshot is kept.
func (f *File) Load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("reading dashboard snapshot: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("dashboard snapshot %s is empty", f.path)
	}

	var s Snapshot
	if strings.EqualFold(filepath.Ext(f.path), ".toml") {
		err = toml.Unmarshal(data, &s)
	} else {
		err = yaml.Unmarshal(data, &s)
	}
	if err != nil {
		return fmt.Errorf("decoding dashboard snapshot %s: %w", f.path, err)
	}

	f.lock.Lock()
	f.snapshot = &s
	f.lock.Unlock()

	f.log.Info("Dashboard snapshot loaded", "path", f.path, "total_scanned", s.Stats.TotalScanned, "logs", len(s.RecentLogs))
	return nil
}

// Fetch returns the last loaded snapshot.
func (f *File) Fetch(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	f.lock.RLock()
	defer f.lock.RUnlock()
	if f.snapshot == nil {
		return Snapshot{}, ErrNoSnapshot
	}
	return f.snapshot.clone(), nil
}

// Watch starts watching the snapshot file for changes, and reloads it whenever it is rewritten.
//
// It returns two channels: one for changes which result in a successful load and another for unrecoverable watcher errors.
func (f *File) Watch(ctx context.Context) (changes <-chan struct{}, errors <-chan error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", dir, err)
	}

	f.log.Info("Watching dashboard snapshot directory", "dir", dir)
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	if err := f.Load(); err != nil {
		f.log.Warn("Error loading initial dashboard snapshot", "err", err)
	}

	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				f.log.Info("Dashboard snapshot watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != f.path {
					continue
				}

				f.log.Debug("Dashboard snapshot changed. Reloading...")
				if err := f.Load(); err != nil {
					f.log.Warn("Error reloading dashboard snapshot", "err", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
					return
				}
				f.log.Warn("Watcher error", "err", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}
