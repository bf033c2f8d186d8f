package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/log"
)

// Watcher re-reads the config file when it changes on disk and hands the
// reloaded config to the registered callback. Only hot-reloadable tunables
// (log level, policy limits, breaker thresholds) should be applied from the
// callback; structural settings need a restart.
type Watcher struct {
	path     string
	onChange func(*Config)
	fw       *fsnotify.Watcher
	stopCh   chan struct{}
}

// NewWatcher creates a watcher for the given config path.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files on save and
	// the inode-level watch would be lost.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		fw:       fw,
		stopCh:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.fw.Close()
}

func (w *Watcher) run() {
	logger := log.WithComponent("config-watcher")

	var debounce *time.Timer
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			// Editors fire bursts of events per save; collapse them.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				cfg, err := Load(w.path)
				if err != nil {
					logger.Error().Err(err).Msg("config reload failed, keeping previous config")
					return
				}
				logger.Info().Str("path", w.path).Msg("config reloaded")
				w.onChange(cfg)
			})
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("config watch error")
		case <-w.stopCh:
			return
		}
	}
}
