package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads Config on file change, publishing the new snapshot
// via an atomic pointer swap so readers never observe a half-applied
// config. Uses fsnotify rather than polling: the profile pool and
// function-call marker need to pick up an operator edit immediately.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	logger  *zap.Logger
	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewWatcher loads the config once and creates the fsnotify watcher; no
// watch is armed until Start is given a directory (fsnotify watches
// directories more reliably than files across editors that
// write-then-rename). path is stored but not read by the reload, which
// re-runs Load.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:   path,
		logger: logger.With(zap.String("component", "config-watcher")),
		fsw:    fsw,
		stopCh: make(chan struct{}),
	}
	w.current.Store(cfg)
	return w, nil
}

// Config returns the latest loaded snapshot (thread-safe, lock-free).
func (w *Watcher) Config() *Config {
	return w.current.Load()
}

// Start watches the config directory, reloading on any write/create/rename
// event. Runs until Stop is called.
func (w *Watcher) Start(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.logger.Info("config watcher started", zap.String("dir", dir))
	go w.loop()
	return nil
}

// Stop halts the watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	_ = w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load()
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous snapshot", zap.Error(err))
		return
	}
	w.current.Store(cfg)
	w.logger.Info("config reloaded")
}
