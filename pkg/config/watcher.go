package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/keepsake/pkg/logger"
	"github.com/papercomputeco/keepsake/pkg/memory"
)

// MemorySettings returns the runtime-tunable memory settings carried by cfg.
func (c *Config) MemorySettings() memory.Settings {
	return memory.Settings{
		Enabled:         c.Memory.Enabled,
		ExtractionModel: c.LLM.Model,
		EmbeddingModel:  c.Embedding.Model,
	}
}

// Watcher keeps the latest config.toml contents in memory and reloads them
// whenever the file changes on disk.
type Watcher struct {
	path     string
	current  atomic.Pointer[Config]
	fsw      *fsnotify.Watcher
	onChange func(*Config)
	logger   *slog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithOnChange registers a callback invoked after every successful reload.
func WithOnChange(fn func(*Config)) WatcherOption {
	return func(w *Watcher) { w.onChange = fn }
}

// WithWatcherLogger sets the logger used to report reload failures.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher starts watching the directory holding path. initial seeds the
// current config; when nil, path is loaded immediately.
func NewWatcher(path string, initial *Config, opts ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watching config: empty path")
	}

	w := &Watcher{
		path:   filepath.Clean(path),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if initial == nil {
		cfg, err := loadFile(w.path)
		if err != nil {
			return nil, err
		}
		initial = cfg
	}
	w.current.Store(initial)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	// Editors often replace the file instead of writing in place, so watch
	// the parent directory and filter by name.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching config dir: %w", err)
	}
	w.fsw = fsw

	return w, nil
}

// Config returns the most recently loaded config.
func (w *Watcher) Config() *Config {
	return w.current.Load()
}

// Settings returns the memory settings of the most recently loaded config.
func (w *Watcher) Settings() memory.Settings {
	return w.current.Load().MemorySettings()
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// Reload re-reads the config file now.
func (w *Watcher) Reload() error {
	cfg, err := loadFile(w.path)
	if err != nil {
		return err
	}

	w.current.Store(cfg)
	if w.onChange != nil {
		w.onChange(cfg)
	}
	return nil
}

func (w *Watcher) reload() {
	if err := w.Reload(); err != nil {
		// The last good config stays current.
		w.logger.Warn("config reload failed", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
}

// Close stops watching the file system.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
